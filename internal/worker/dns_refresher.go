package worker

import (
	"context"
	"time"

	"github.com/rs/dnscache"
)

const defaultDNSRefresh = 5 * time.Minute

// DNSRefresher keeps the backend's cached DNS answers current and drops
// hosts that are no longer looked up.
type DNSRefresher struct {
	resolver *dnscache.Resolver
	interval time.Duration
}

// NewDNSRefresher creates a refresher. interval <= 0 uses 5m.
func NewDNSRefresher(resolver *dnscache.Resolver, interval time.Duration) *DNSRefresher {
	if interval <= 0 {
		interval = defaultDNSRefresh
	}
	return &DNSRefresher{resolver: resolver, interval: interval}
}

// Run refreshes the resolver on every tick until ctx is cancelled.
func (d *DNSRefresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.resolver.Refresh(true)
		}
	}
}
