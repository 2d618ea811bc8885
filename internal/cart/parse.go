package cart

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// ParseError reports a server cart entry that cannot be turned into a
// LineItem. Index is -1 when the payload as a whole is unusable.
type ParseError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Index < 0 {
		return "cart: parse payload: " + e.Reason
	}
	return fmt.Sprintf("cart: parse item %d: %s: %s", e.Index, e.Field, e.Reason)
}

// ParseLineItems maps the remote cart payload, a JSON array of
// {product_id, name, price, quantity, image_url, category_name}, to line
// items. Required fields are product_id, name, price and quantity; nothing
// is defaulted.
//
// A numeric product_id doubles as the local ID. Other ids get a positional
// ID (index+1), moved past any numeric id already taken.
func ParseLineItems(raw []byte) ([]LineItem, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &ParseError{Index: -1, Reason: "invalid JSON"}
	}
	root := gjson.ParseBytes(raw)
	if !root.IsArray() {
		return nil, &ParseError{Index: -1, Reason: "expected an array"}
	}

	entries := root.Array()
	items := make([]LineItem, len(entries))
	positional := make([]bool, len(entries))
	taken := make(map[int64]bool, len(entries))

	for i, entry := range entries {
		item, numeric, err := parseLineItem(i, entry)
		if err != nil {
			return nil, err
		}
		items[i] = item
		if numeric {
			taken[item.ID] = true
		} else {
			positional[i] = true
		}
	}

	for i := range items {
		if !positional[i] {
			continue
		}
		id := int64(i + 1)
		for taken[id] {
			id++
		}
		taken[id] = true
		items[i].ID = id
	}
	return items, nil
}

func parseLineItem(idx int, entry gjson.Result) (LineItem, bool, error) {
	fail := func(field, reason string) (LineItem, bool, error) {
		return LineItem{}, false, &ParseError{Index: idx, Field: field, Reason: reason}
	}
	if !entry.IsObject() {
		return fail("", "expected an object")
	}

	remoteID, err := RequireString(entry, "product_id")
	if err != nil {
		return fail("product_id", err.Error())
	}

	name, err := RequireString(entry, "name", "product_name")
	if err != nil {
		return fail("name", err.Error())
	}

	price, err := ParseDecimal(entry.Get("price"))
	if err != nil {
		return fail("price", err.Error())
	}
	if price.IsNegative() {
		return fail("price", "must not be negative")
	}

	qtyRes := entry.Get("quantity")
	qty, err := parseQuantity(qtyRes)
	if err != nil {
		return fail("quantity", err.Error())
	}

	item := LineItem{
		RemoteProductID: remoteID,
		Name:            name,
		Description:     OptionalString(entry, "description"),
		Category:        OptionalString(entry, "category_name", "category"),
		Image:           OptionalString(entry, "image_url"),
		Price:           price,
		Quantity:        qty,
	}

	numeric := false
	if id, convErr := strconv.ParseInt(remoteID, 10, 64); convErr == nil && id > 0 {
		item.ID = id
		numeric = true
	}
	return item, numeric, nil
}

func parseQuantity(res gjson.Result) (int, error) {
	var f float64
	switch res.Type {
	case gjson.Number:
		f = res.Num
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(res.Str), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", res.Str)
		}
		f = v
	default:
		if !res.Exists() {
			return 0, fmt.Errorf("missing")
		}
		return 0, fmt.Errorf("not a number")
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %v", f)
	}
	if f < 1 || f > math.MaxInt32 {
		return 0, fmt.Errorf("out of range: %v", f)
	}
	return int(f), nil
}

// ParseDecimal reads a JSON number or numeric string as an exact decimal.
func ParseDecimal(res gjson.Result) (decimal.Decimal, error) {
	switch res.Type {
	case gjson.Number:
		return decimal.NewFromString(res.Raw)
	case gjson.String:
		s := strings.TrimSpace(res.Str)
		if s == "" {
			return decimal.Zero, fmt.Errorf("empty")
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("not a number: %q", res.Str)
		}
		return d, nil
	default:
		if !res.Exists() {
			return decimal.Zero, fmt.Errorf("missing")
		}
		return decimal.Zero, fmt.Errorf("not a number")
	}
}

// RequireString returns the first of keys present as a non-empty string or
// number.
func RequireString(obj gjson.Result, keys ...string) (string, error) {
	for _, key := range keys {
		res := obj.Get(key)
		switch res.Type {
		case gjson.String:
			if s := strings.TrimSpace(res.Str); s != "" {
				return s, nil
			}
		case gjson.Number:
			return res.Raw, nil
		}
	}
	return "", fmt.Errorf("missing")
}

// OptionalString returns the first of keys holding a string, or "".
func OptionalString(obj gjson.Result, keys ...string) string {
	s, err := RequireString(obj, keys...)
	if err != nil {
		return ""
	}
	return s
}
