// Package catalog lists the items the storefront sells.
package catalog

import (
	"sort"

	"github.com/shopspring/decimal"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Item is a purchasable collectible.
type Item struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Icon  string          `json:"icon"`
}

// Catalog is an immutable set of items minted from one collection.
type Catalog struct {
	collectionID string
	items        map[string]Item
}

var defaultPrice = decimal.RequireFromString("0.53")

// Default returns the storefront's three items for the given collection.
func Default(collectionID string) *Catalog {
	return New(collectionID, []Item{
		{ID: "gods-sword", Name: "God's sword", Price: defaultPrice, Icon: "/sword.svg"},
		{ID: "elves-axe-silver", Name: "Elves axe - Silver", Price: defaultPrice, Icon: "/axe.svg"},
		{ID: "magic-potion", Name: "Magic potion", Price: defaultPrice, Icon: "/elixir.svg"},
	})
}

// New builds a catalog from items. Later items replace earlier ones with the
// same ID.
func New(collectionID string, items []Item) *Catalog {
	c := &Catalog{collectionID: collectionID, items: make(map[string]Item, len(items))}
	for _, it := range items {
		c.items[it.ID] = it
	}
	return c
}

// Lookup returns the item with the given ID.
func (c *Catalog) Lookup(id string) (Item, error) {
	it, ok := c.items[id]
	if !ok {
		return Item{}, apperrors.NotFound("item", id)
	}
	return it, nil
}

// Items returns every item ordered by name.
func (c *Catalog) Items() []Item {
	out := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CollectionLocator returns the order API locator of the collection.
func (c *Catalog) CollectionLocator() string {
	return "crossmint:" + c.collectionID
}
