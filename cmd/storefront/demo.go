package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"github.com/vetclinic/storefront/internal/cart"
	serrors "github.com/vetclinic/storefront/internal/errors"
	"github.com/vetclinic/storefront/internal/remote"
)

// demoCatalog serves the built-in catalog used with --demo.
type demoCatalog struct {
	products []remote.Product
}

func newDemoCatalog() *demoCatalog {
	price := decimal.RequireFromString
	return &demoCatalog{products: []remote.Product{
		{ProductID: "1", Name: "Producto 1", Category: "Alimento", Price: price("85.5"), Stock: 12},
		{ProductID: "2", Name: "Producto 2", Category: "Higiene", Price: price("30"), Stock: 8},
		{ProductID: "3", Name: "Producto 3", Category: "Alimento", Price: price("25.7"), Stock: 30},
		{ProductID: "4", Name: "Producto 4", Category: "Salud", Price: price("40"), Stock: 3},
		{ProductID: "5", Name: "Producto 5", Category: "Accesorios", Price: price("60"), Stock: 0},
		{ProductID: "6", Name: "Producto 6", Category: "Accesorios", Price: price("15.5"), Stock: 20},
	}}
}

func (d *demoCatalog) List(context.Context) ([]remote.Product, error) {
	out := make([]remote.Product, len(d.products))
	copy(out, d.products)
	return out, nil
}

func (d *demoCatalog) Get(_ context.Context, id string) (remote.Product, error) {
	for _, p := range d.products {
		if p.ProductID == id {
			return p, nil
		}
	}
	return remote.Product{}, serrors.NotFound("product", id)
}

// demoCartFile keeps the offline cart between runs.
type demoCartFile struct {
	path string
}

func (f demoCartFile) load(m *cart.Manager) error {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("demo cart: %w", err)
	}
	var items []cart.LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("demo cart: decode %s: %w", f.path, err)
	}
	m.ReplaceAll(items)
	return nil
}

func (f demoCartFile) save(m *cart.Manager) error {
	data, err := json.MarshalIndent(m.Items(), "", "  ")
	if err != nil {
		return fmt.Errorf("demo cart: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("demo cart: %w", err)
	}
	return os.WriteFile(f.path, data, 0o600)
}
