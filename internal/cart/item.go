// Package cart holds the local view of a shopper's cart.
//
// A Manager owns the line items and the totals computed from them. It never
// talks to the network: callers hand it already-parsed items, either one by
// one (offline mode) or as a whole server snapshot.
package cart

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// LineItem is one product entry in the cart.
type LineItem struct {
	// ID is the local matching key.
	ID int64 `json:"id"`
	// RemoteProductID is the backend product key. When set it is used for
	// every server call instead of ID.
	RemoteProductID string `json:"remote_product_id,omitempty"`

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Image       string `json:"image,omitempty"`

	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// BackendID returns the identifier to send to the remote cart service.
func (li LineItem) BackendID() string {
	if li.RemoteProductID != "" {
		return li.RemoteProductID
	}
	return strconv.FormatInt(li.ID, 10)
}

// Subtotal returns price × quantity.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}
