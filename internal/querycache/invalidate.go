package querycache

import (
	"slices"

	catalog "github.com/eugener/celeste/internal"
)

// ProductScope optionally widens a product invalidation to the category and
// store the product belongs to.
type ProductScope struct {
	CategoryID string
	StoreID    string
}

// InvalidateAll removes every entry and returns how many were removed.
func (c *Cache) InvalidateAll() int {
	n := c.Len()
	c.store.InvalidateAll()
	c.changed()
	return n
}

// InvalidateCategory removes entries that may list products of categoryID:
// keys filtered on that category, product detail keys whose product is in it
// (or carries no category data), and listings with no category filter.
// Entries filtered on other categories are kept.
func (c *Cache) InvalidateCategory(categoryID string) int {
	if categoryID == "" {
		return 0
	}
	return c.removeWhere(func(k Key, e entry) bool {
		return matchCategory(k, e, categoryID)
	})
}

// InvalidateStore removes entries filtered on storeID and every entry without
// a store filter, since store-level prices and stock are not visible in the
// cached payload.
func (c *Cache) InvalidateStore(storeID string) int {
	if storeID == "" {
		return 0
	}
	return c.removeWhere(func(k Key, _ entry) bool {
		return matchStore(k, storeID)
	})
}

// InvalidateProduct removes entries whose key references productID or whose
// cached value contains it, plus the category and store entries named by scope.
func (c *Cache) InvalidateProduct(productID string, scope ProductScope) int {
	if productID == "" && scope.CategoryID == "" && scope.StoreID == "" {
		return 0
	}
	return c.removeWhere(func(k Key, e entry) bool {
		if productID != "" {
			if k.Has(ParamProduct, productID) || containsProduct(e.products, productID) {
				return true
			}
		}
		if scope.CategoryID != "" && matchCategory(k, e, scope.CategoryID) {
			return true
		}
		return scope.StoreID != "" && matchStore(k, scope.StoreID)
	})
}

func (c *Cache) removeWhere(match func(Key, entry) bool) int {
	var doomed []string
	for k, e := range c.store.All() {
		if match(ParseKey(k), e) {
			doomed = append(doomed, k)
		}
	}
	for _, k := range doomed {
		c.store.Invalidate(k)
	}
	if len(doomed) > 0 {
		c.changed()
	}
	return len(doomed)
}

func matchCategory(k Key, e entry, categoryID string) bool {
	if k.Scoped(ParamCategory) {
		return k.Has(ParamCategory, categoryID)
	}
	if k.Scoped(ParamProduct) {
		for i := range e.products {
			p := &e.products[i]
			if len(p.Categories) == 0 || p.InCategory(categoryID) {
				return true
			}
		}
		return len(e.products) == 0
	}
	return true
}

func matchStore(k Key, storeID string) bool {
	if k.Scoped(ParamStores) {
		return k.Has(ParamStores, storeID)
	}
	return true
}

func containsProduct(products []catalog.Product, productID string) bool {
	return slices.ContainsFunc(products, func(p catalog.Product) bool {
		return string(p.ID) == productID
	})
}
