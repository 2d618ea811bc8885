package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineItems(t *testing.T) {
	raw := `[
		{"product_id": "12", "name": "Croquetas Gato 1kg", "price": "85.50", "quantity": 2,
		 "image_url": "https://cdn.example/c.png", "category_name": "Alimento"},
		{"product_id": 3, "product_name": "Collar", "price": 15.5, "quantity": "1", "category": "Accesorios"}
	]`

	items, err := ParseLineItems([]byte(raw))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, int64(12), items[0].ID)
	assert.Equal(t, "12", items[0].RemoteProductID)
	assert.Equal(t, "Croquetas Gato 1kg", items[0].Name)
	assert.True(t, decimal.RequireFromString("85.5").Equal(items[0].Price))
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "Alimento", items[0].Category)
	assert.Equal(t, "https://cdn.example/c.png", items[0].Image)

	assert.Equal(t, int64(3), items[1].ID)
	assert.Equal(t, "Collar", items[1].Name)
	assert.Equal(t, "Accesorios", items[1].Category)
	assert.Equal(t, 1, items[1].Quantity)
}

func TestParseLineItems_PositionalIDs(t *testing.T) {
	raw := `[
		{"product_id": "a1f0", "name": "A", "price": 1, "quantity": 1},
		{"product_id": "1", "name": "B", "price": 1, "quantity": 1},
		{"product_id": "b2e9", "name": "C", "price": 1, "quantity": 1}
	]`

	items, err := ParseLineItems([]byte(raw))
	require.NoError(t, err)

	// "a1f0" would be 1 but that id belongs to product "1".
	assert.Equal(t, int64(2), items[0].ID)
	assert.Equal(t, int64(1), items[1].ID)
	assert.Equal(t, int64(3), items[2].ID)
	assert.Equal(t, "a1f0", items[0].BackendID())
}

func TestParseLineItems_EmptyArray(t *testing.T) {
	items, err := ParseLineItems([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestParseLineItems_Errors(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		index int
		field string
	}{
		{"not json", `{"oops"`, -1, ""},
		{"object payload", `{"items": []}`, -1, ""},
		{"entry not object", `[1]`, 0, ""},
		{"missing id", `[{"name": "A", "price": 1, "quantity": 1}]`, 0, "product_id"},
		{"missing name", `[{"product_id": "1", "price": 1, "quantity": 1}]`, 0, "name"},
		{"blank name", `[{"product_id": "1", "name": "  ", "price": 1, "quantity": 1}]`, 0, "name"},
		{"missing price", `[{"product_id": "1", "name": "A", "quantity": 1}]`, 0, "price"},
		{"bad price", `[{"product_id": "1", "name": "A", "price": "abc", "quantity": 1}]`, 0, "price"},
		{"negative price", `[{"product_id": "1", "name": "A", "price": -2, "quantity": 1}]`, 0, "price"},
		{"missing quantity", `[{"product_id": "1", "name": "A", "price": 1}]`, 0, "quantity"},
		{"zero quantity", `[{"product_id": "1", "name": "A", "price": 1, "quantity": 0}]`, 0, "quantity"},
		{"fractional quantity", `[{"product_id": "1", "name": "A", "price": 1, "quantity": 1.5}]`, 0, "quantity"},
		{"second entry", `[{"product_id": "1", "name": "A", "price": 1, "quantity": 1}, {"product_id": "2", "name": "B", "price": null, "quantity": 1}]`, 1, "price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLineItems([]byte(tt.raw))
			require.Error(t, err)

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.index, perr.Index)
			assert.Equal(t, tt.field, perr.Field)
		})
	}
}

func TestParseError_Message(t *testing.T) {
	err := &ParseError{Index: 2, Field: "price", Reason: "missing"}
	assert.Equal(t, "cart: parse item 2: price: missing", err.Error())

	err = &ParseError{Index: -1, Reason: "invalid JSON"}
	assert.Equal(t, "cart: parse payload: invalid JSON", err.Error())
}
