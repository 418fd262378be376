package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// OfferItem is an immutable catalog entry shown on an upsell page
type OfferItem struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	ImageRef string
}

// offerItemJSON is the wire shape read by the payment display page
type offerItemJSON struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Price json.Number `json:"price"`
	Img   string      `json:"img"`
}

// MarshalJSON encodes the price as a plain JSON number
func (o OfferItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(offerItemJSON{
		ID:    o.ID,
		Name:  o.Name,
		Price: json.Number(o.Price.String()),
		Img:   o.ImageRef,
	})
}

// UnmarshalJSON decodes the wire shape produced by MarshalJSON
func (o *OfferItem) UnmarshalJSON(data []byte) error {
	var raw offerItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	price, err := decimal.NewFromString(raw.Price.String())
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", raw.Price, err)
	}
	*o = OfferItem{ID: raw.ID, Name: raw.Name, Price: price, ImageRef: raw.Img}
	return nil
}

// Catalog errors
var (
	ErrEmptyCatalog     = errors.New("catalog must contain at least one offer")
	ErrEmptyOfferID     = errors.New("offer id cannot be empty")
	ErrDuplicateOfferID = errors.New("offer id is not unique within the catalog")
	ErrNegativePrice    = errors.New("offer price cannot be negative")
	ErrUnknownOfferID   = errors.New("offer id is not in the catalog")
)

// Catalog is the ordered, read-only list of offers for one page
type Catalog struct {
	items []OfferItem
	index map[string]int
}

// NewCatalog validates the items and builds a catalog preserving their order
func NewCatalog(items []OfferItem) (*Catalog, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		items: make([]OfferItem, len(items)),
		index: make(map[string]int, len(items)),
	}
	for i, item := range items {
		if item.ID == "" {
			return nil, ErrEmptyOfferID
		}
		if _, dup := c.index[item.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOfferID, item.ID)
		}
		if item.Price.IsNegative() {
			return nil, fmt.Errorf("%w: %s", ErrNegativePrice, item.ID)
		}
		c.items[i] = item
		c.index[item.ID] = i
	}
	return c, nil
}

// Items returns a copy of the catalog entries in display order
func (c *Catalog) Items() []OfferItem {
	out := make([]OfferItem, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of offers
func (c *Catalog) Len() int {
	return len(c.items)
}

// First returns the first offer, which single-offer pages feature
func (c *Catalog) First() OfferItem {
	return c.items[0]
}

// Has reports whether id belongs to the catalog
func (c *Catalog) Has(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Lookup returns the offer with the given id
func (c *Catalog) Lookup(id string) (OfferItem, bool) {
	i, ok := c.index[id]
	if !ok {
		return OfferItem{}, false
	}
	return c.items[i], true
}

// Selected returns the catalog entries contained in the selection, in catalog order
func (c *Catalog) Selected(sel *Selection) []OfferItem {
	out := make([]OfferItem, 0, sel.Len())
	for _, item := range c.items {
		if sel.Contains(item.ID) {
			out = append(out, item)
		}
	}
	return out
}

// Total sums the price of every selected offer without rounding
func (c *Catalog) Total(sel *Selection) decimal.Decimal {
	return SumPrices(c.Selected(sel))
}

// SumPrices adds up item prices exactly
func SumPrices(items []OfferItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price)
	}
	return total
}
