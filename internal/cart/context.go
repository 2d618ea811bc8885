package cart

import (
	"context"
	"errors"
)

// ErrNoManager is returned when a cart is requested from a context that was
// never given one.
var ErrNoManager = errors.New("cart: no manager in context")

type managerKey struct{}

// NewContext returns a copy of ctx carrying m.
func NewContext(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, managerKey{}, m)
}

// FromContext returns the manager stored in ctx.
func FromContext(ctx context.Context) (*Manager, error) {
	if ctx == nil {
		return nil, ErrNoManager
	}
	m, ok := ctx.Value(managerKey{}).(*Manager)
	if !ok || m == nil {
		return nil, ErrNoManager
	}
	return m, nil
}

// MustFromContext is like FromContext but panics when no manager is present.
// Reaching for the cart outside the scope that owns it is a programming error.
func MustFromContext(ctx context.Context) *Manager {
	m, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return m
}
