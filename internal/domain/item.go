package domain

import "math/big"

// Item is a purchasable catalog entry read from the marketplace contract.
// Index is only stable within one catalog snapshot.
type Item struct {
	Index       uint64   `json:"index"`
	Owner       string   `json:"owner"`
	Name        string   `json:"name"`
	Image       string   `json:"image"`
	Description string   `json:"description"`
	Collection  string   `json:"collection"`
	Price       *big.Int `json:"price"` // base units, 18 decimals
	Sold        uint64   `json:"sold"`
}

// NewItem is the seller input for listing a new item. Price is already in base units.
type NewItem struct {
	Name        string
	Image       string
	Description string
	Collection  string
	Price       *big.Int
}

// CartEntry is a value copy of an Item held in the cart.
type CartEntry struct {
	Index       uint64   `json:"index"`
	Owner       string   `json:"owner"`
	Name        string   `json:"name"`
	Image       string   `json:"image"`
	Description string   `json:"description"`
	Collection  string   `json:"collection"`
	Price       *big.Int `json:"price"`
	Sold        uint64   `json:"sold"`
}

// EntryFromItem copies item into a CartEntry. The price is copied, not shared.
func EntryFromItem(item Item) CartEntry {
	return CartEntry{
		Index:       item.Index,
		Owner:       item.Owner,
		Name:        item.Name,
		Image:       item.Image,
		Description: item.Description,
		Collection:  item.Collection,
		Price:       CopyAmount(item.Price),
		Sold:        item.Sold,
	}
}

// Clone returns a copy of the entry that does not share its price.
func (e CartEntry) Clone() CartEntry {
	e.Price = CopyAmount(e.Price)
	return e
}

// CopyAmount returns a fresh copy of v, treating nil as zero.
func CopyAmount(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
