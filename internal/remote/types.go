// Package remote wraps the storefront REST services: cart, catalog, orders,
// users and login. Each wrapper maps raw server JSON into typed values and
// reports non-2xx answers as *errors.APIError.
package remote

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/vetclinic/storefront/internal/cart"
)

// Product is a catalog entry.
type Product struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageURL    string          `json:"image_url,omitempty"`
}

// InStock reports whether at least one unit can be ordered.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// LineItem converts p into a cart line item. A numeric product id becomes
// the local ID; anything else is left to the caller via fallbackID.
func (p Product) LineItem(fallbackID int64) cart.LineItem {
	id := fallbackID
	if n, err := strconv.ParseInt(p.ProductID, 10, 64); err == nil && n > 0 {
		id = n
	}
	return cart.LineItem{
		ID:              id,
		RemoteProductID: p.ProductID,
		Name:            p.Name,
		Description:     p.Description,
		Category:        p.Category,
		Image:           p.ImageURL,
		Price:           p.Price,
	}
}

// Order is one entry of a shopper's order history.
type Order struct {
	OrderNumber string          `json:"order_number"`
	Date        string          `json:"date"`
	Status      string          `json:"status"`
	Total       decimal.Decimal `json:"total"`
	ImageURL    string          `json:"image_url,omitempty"`
}

// DefaultOrderStatus is shown for orders whose status the server omits.
const DefaultOrderStatus = "Pendiente de pago"

// User is the authenticated shopper.
type User struct {
	UserID int64  `json:"user_id"`
	CartID int64  `json:"cart_id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// LoginResult is a successful login.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// ParseError reports a server payload that does not match the expected shape.
type ParseError struct {
	Resource string
	Index    int
	Field    string
	Reason   string
}

func (e *ParseError) Error() string {
	if e.Index < 0 {
		if e.Field == "" {
			return fmt.Sprintf("%s: parse payload: %s", e.Resource, e.Reason)
		}
		return fmt.Sprintf("%s: parse %s: %s", e.Resource, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: parse entry %d: %s: %s", e.Resource, e.Index, e.Field, e.Reason)
}

// ParseProducts maps a product list payload.
func ParseProducts(raw []byte) ([]Product, error) {
	root, err := parseArray("catalog", raw)
	if err != nil {
		return nil, err
	}
	entries := root.Array()
	out := make([]Product, 0, len(entries))
	for i, entry := range entries {
		p, err := parseProduct(i, entry)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ParseProduct maps a single product payload.
func ParseProduct(raw []byte) (Product, error) {
	if !gjson.ValidBytes(raw) {
		return Product{}, &ParseError{Resource: "catalog", Index: -1, Reason: "invalid JSON"}
	}
	return parseProduct(-1, gjson.ParseBytes(raw))
}

func parseProduct(idx int, entry gjson.Result) (Product, error) {
	fail := func(field, reason string) (Product, error) {
		return Product{}, &ParseError{Resource: "catalog", Index: idx, Field: field, Reason: reason}
	}
	if !entry.IsObject() {
		return fail("", "expected an object")
	}
	id, err := cart.RequireString(entry, "product_id")
	if err != nil {
		return fail("product_id", err.Error())
	}
	name, err := cart.RequireString(entry, "name")
	if err != nil {
		return fail("name", err.Error())
	}
	price, err := cart.ParseDecimal(entry.Get("price"))
	if err != nil {
		return fail("price", err.Error())
	}
	if price.IsNegative() {
		return fail("price", "must not be negative")
	}

	stock := 0
	if s := entry.Get("stock"); s.Exists() && s.Type != gjson.Null {
		n, convErr := strconv.Atoi(strings.TrimSpace(s.String()))
		if convErr != nil {
			return fail("stock", "not an integer")
		}
		stock = n
	}

	return Product{
		ProductID:   id,
		Name:        name,
		Description: cart.OptionalString(entry, "description"),
		Category:    cart.OptionalString(entry, "category_name", "category"),
		Price:       price,
		Stock:       stock,
		ImageURL:    cart.OptionalString(entry, "image_url"),
	}, nil
}

// ParseOrders maps the order history payload. The total is required; the
// order number falls back to PED-<n> and the status to DefaultOrderStatus.
func ParseOrders(raw []byte) ([]Order, error) {
	root, err := parseArray("orders", raw)
	if err != nil {
		return nil, err
	}
	entries := root.Array()
	out := make([]Order, 0, len(entries))
	for i, entry := range entries {
		o, err := parseOrder(i, entry)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// ParseOrder maps the answer to an order creation. Servers that answer with
// an empty body or a bare acknowledgement yield a zero Order.
func ParseOrder(raw []byte) (Order, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Order{}, nil
	}
	if !gjson.ValidBytes(raw) {
		return Order{}, &ParseError{Resource: "orders", Index: -1, Reason: "invalid JSON"}
	}
	root := gjson.ParseBytes(raw)
	if o := root.Get("order"); o.IsObject() {
		root = o
	}
	if !root.IsObject() || !root.Get("total").Exists() {
		return Order{OrderNumber: cart.OptionalString(root, "order_id", "orderNumber")}, nil
	}
	return parseOrder(-1, root)
}

func parseOrder(idx int, entry gjson.Result) (Order, error) {
	fail := func(field, reason string) (Order, error) {
		return Order{}, &ParseError{Resource: "orders", Index: idx, Field: field, Reason: reason}
	}
	if !entry.IsObject() {
		return fail("", "expected an object")
	}
	total, err := cart.ParseDecimal(entry.Get("total"))
	if err != nil {
		return fail("total", err.Error())
	}

	number := cart.OptionalString(entry, "order_id", "orderNumber")
	if number == "" {
		number = fmt.Sprintf("PED-%d", idx+1)
	}
	status := cart.OptionalString(entry, "status", "order_status")
	if status == "" {
		status = DefaultOrderStatus
	}

	return Order{
		OrderNumber: number,
		Date:        cart.OptionalString(entry, "order_date", "date"),
		Status:      status,
		Total:       total,
		ImageURL:    cart.OptionalString(entry, "image_url", "image"),
	}, nil
}

// ParseUser maps a user payload.
func ParseUser(res gjson.Result) (User, error) {
	if !res.IsObject() {
		return User{}, &ParseError{Resource: "users", Index: -1, Field: "user", Reason: "expected an object"}
	}
	if !res.Get("user_id").Exists() {
		return User{}, &ParseError{Resource: "users", Index: -1, Field: "user_id", Reason: "missing"}
	}
	return User{
		UserID: res.Get("user_id").Int(),
		CartID: res.Get("cart_id").Int(),
		Name:   cart.OptionalString(res, "name"),
		Email:  cart.OptionalString(res, "email"),
		Phone:  cart.OptionalString(res, "phone"),
	}, nil
}

func parseArray(resource string, raw []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, &ParseError{Resource: resource, Index: -1, Reason: "invalid JSON"}
	}
	root := gjson.ParseBytes(raw)
	if !root.IsArray() {
		return gjson.Result{}, &ParseError{Resource: resource, Index: -1, Reason: "expected an array"}
	}
	return root, nil
}
