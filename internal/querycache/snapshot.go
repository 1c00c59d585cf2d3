package querycache

import (
	"encoding/json"
	"errors"
	"fmt"

	catalog "github.com/eugener/celeste/internal"
)

// The snapshot is a JSON array of [key, entry] pairs in insertion order:
//
//	[["products|cat:5", {"value": [...], "timestamp": 1700000000000}], ...]
//
// Timestamps are Unix milliseconds.

type snapshotEntry struct {
	Value     []catalog.Product `json:"value"`
	Timestamp int64             `json:"timestamp"`
}

type snapshotPair struct {
	Key   string
	Entry snapshotEntry
}

func (p snapshotPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Key, p.Entry})
}

func (p *snapshotPair) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("snapshot pair has %d elements, want 2", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.Key); err != nil {
		return fmt.Errorf("snapshot key: %w", err)
	}
	if p.Key == "" {
		return errors.New("snapshot key is empty")
	}
	if err := json.Unmarshal(raw[1], &p.Entry); err != nil {
		return fmt.Errorf("snapshot entry %q: %w", p.Key, err)
	}
	return nil
}

func encodeSnapshot(entries []keyedEntry) ([]byte, error) {
	pairs := make([]snapshotPair, len(entries))
	for i, e := range entries {
		pairs[i] = snapshotPair{
			Key: e.key,
			Entry: snapshotEntry{
				Value:     e.products,
				Timestamp: e.storedAt.UnixMilli(),
			},
		}
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) ([]snapshotPair, error) {
	var pairs []snapshotPair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return pairs, nil
}
