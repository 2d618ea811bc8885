// Package cartsync keeps a cart.Manager consistent with the remote cart.
//
// Every remote mutation follows the same shape: change the server, fetch the
// server's cart, replace the local items with what came back. The local cart
// is never touched when the server rejects a change.
package cartsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/vetclinic/storefront/internal/cart"
	"github.com/vetclinic/storefront/internal/metrics"
	"github.com/vetclinic/storefront/internal/remote"
	"github.com/vetclinic/storefront/pkg/logger"
)

// DefaultMaxPerAdd caps the units a single add may request.
const DefaultMaxPerAdd = 10

var (
	// ErrNoRemoteID is returned when a product cannot be addressed on the server.
	ErrNoRemoteID = errors.New("cartsync: product has no id")
	// ErrOutOfStock is returned when adding a product without stock.
	ErrOutOfStock = errors.New("cartsync: product is out of stock")
	// ErrEmptyCart is returned by Checkout when there is nothing to order.
	ErrEmptyCart = errors.New("cartsync: cart is empty")
)

// RemoteCart is the server-side cart.
type RemoteCart interface {
	Fetch(ctx context.Context) ([]cart.LineItem, error)
	Add(ctx context.Context, productID string, quantity int) error
	Update(ctx context.Context, productID string, quantity int) error
}

// OrderPlacer turns the server-side cart into an order.
type OrderPlacer interface {
	Create(ctx context.Context) (remote.Order, error)
}

// CatalogInvalidator drops cached catalog data whose stock may have changed.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context, productIDs ...string)
}

// Config wires a Synchronizer. A nil Cart puts it in offline mode, where
// mutations are applied to the local cart directly.
type Config struct {
	Cart      RemoteCart
	Orders    OrderPlacer
	Catalog   CatalogInvalidator
	MaxPerAdd int
	Logger    *logger.Logger
	Now       func() time.Time
}

// Receipt describes a placed order.
type Receipt struct {
	Order       remote.Order
	Items       []cart.LineItem
	Total       decimal.Decimal
	AmountCents int64
}

// Synchronizer drives a cart.Manager from the remote cart service.
type Synchronizer struct {
	cart      *cart.Manager
	remote    RemoteCart
	orders    OrderPlacer
	catalog   CatalogInvalidator
	maxPerAdd int
	log       *logger.Logger
	now       func() time.Time

	locks   *keyLock
	refresh singleflight.Group
}

// New returns a Synchronizer for m.
func New(m *cart.Manager, cfg Config) *Synchronizer {
	maxPerAdd := cfg.MaxPerAdd
	if maxPerAdd <= 0 {
		maxPerAdd = DefaultMaxPerAdd
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Synchronizer{
		cart:      m,
		remote:    cfg.Cart,
		orders:    cfg.Orders,
		catalog:   cfg.Catalog,
		maxPerAdd: maxPerAdd,
		log:       log,
		now:       now,
		locks:     newKeyLock(),
	}
}

// Cart returns the managed cart.
func (s *Synchronizer) Cart() *cart.Manager {
	return s.cart
}

// Offline reports whether mutations stay local.
func (s *Synchronizer) Offline() bool {
	return s.remote == nil
}

// Refresh replaces the local cart with the server's. Concurrent calls share
// one fetch, which runs detached from any single caller. Each caller applies
// the answer only while its own ctx is live: when the view that asked goes
// away it gets ctx.Err() and the answer is not applied on its behalf, while
// other callers still receive it.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	if s.remote == nil {
		return nil
	}
	ch := s.refresh.DoChan("refresh", func() (interface{}, error) {
		return s.fetch(context.WithoutCancel(ctx))
	})

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case res := <-ch:
		err = res.Err
		if err == nil {
			err = s.apply(ctx, res.Val.(snapshot))
		}
	}
	metrics.RecordCartSync("refresh", err)
	return err
}

// snapshot is a server cart together with the ticket reserved before it
// was requested.
type snapshot struct {
	ticket uint64
	items  []cart.LineItem
}

func (s *Synchronizer) fetch(ctx context.Context) (snapshot, error) {
	ticket := s.cart.Ticket()
	items, err := s.remote.Fetch(ctx)
	if err != nil {
		return snapshot{}, fmt.Errorf("fetch cart: %w", err)
	}
	return snapshot{ticket: ticket, items: items}, nil
}

func (s *Synchronizer) apply(ctx context.Context, snap snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.cart.ApplySnapshot(snap.ticket, snap.items) {
		return nil
	}
	// A joined caller may already have applied this very snapshot.
	if s.cart.Revision() == snap.ticket {
		return nil
	}
	metrics.RecordStaleSnapshot()
	s.log.WithContext(ctx).WithField("ticket", snap.ticket).Debug("dropped stale cart snapshot")
	return nil
}

// fetchAndApply never joins an in-flight Refresh: a fetch that started
// before a mutation must not be mistaken for its result.
func (s *Synchronizer) fetchAndApply(ctx context.Context) error {
	snap, err := s.fetch(ctx)
	if err != nil {
		return err
	}
	return s.apply(ctx, snap)
}

// Add puts quantity units of p in the cart. The quantity is clamped to
// [1, min(MaxPerAdd, stock)].
func (s *Synchronizer) Add(ctx context.Context, p remote.Product, quantity int) error {
	if p.ProductID == "" {
		return ErrNoRemoteID
	}
	if !p.InStock() {
		return ErrOutOfStock
	}
	quantity = s.clamp(quantity, p.Stock)

	unlock := s.locks.Lock(p.ProductID)
	defer unlock()

	if s.remote == nil {
		s.cart.Add(p.LineItem(s.localID(p.ProductID)), quantity)
		return nil
	}

	err := s.remote.Add(ctx, p.ProductID, quantity)
	if err == nil {
		err = s.fetchAndApply(ctx)
		s.invalidate(ctx, p.ProductID)
	}
	metrics.RecordCartSync("add", err)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("product_id", p.ProductID).Warn("add to cart failed")
		return err
	}
	return nil
}

// UpdateQuantity changes the quantity of the line item id by delta. A result
// of zero or less removes the item; unknown ids are ignored.
func (s *Synchronizer) UpdateQuantity(ctx context.Context, id int64, delta int) error {
	if delta == 0 {
		return nil
	}
	item, ok := s.cart.Get(id)
	if !ok {
		return nil
	}
	key := item.BackendID()
	unlock := s.locks.Lock(key)
	defer unlock()

	// The quantity may have moved while waiting for the lock.
	item, ok = s.cart.Get(id)
	if !ok {
		return nil
	}
	if s.remote == nil {
		s.cart.UpdateQuantity(id, delta)
		return nil
	}
	return s.setRemote(ctx, "update", key, item.Quantity+delta)
}

// Remove deletes the line item id. Unknown ids are ignored.
func (s *Synchronizer) Remove(ctx context.Context, id int64) error {
	item, ok := s.cart.Get(id)
	if !ok {
		return nil
	}
	key := item.BackendID()
	unlock := s.locks.Lock(key)
	defer unlock()

	if s.remote == nil {
		s.cart.Remove(id)
		return nil
	}
	return s.setRemote(ctx, "remove", key, 0)
}

func (s *Synchronizer) setRemote(ctx context.Context, op, productID string, quantity int) error {
	if quantity < 0 {
		quantity = 0
	}
	err := s.remote.Update(ctx, productID, quantity)
	if err == nil {
		err = s.fetchAndApply(ctx)
	}
	metrics.RecordCartSync(op, err)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"product_id": productID,
			"quantity":   quantity,
		}).Warn("cart update failed")
	}
	return err
}

// Checkout places an order for the current cart and empties it.
func (s *Synchronizer) Checkout(ctx context.Context) (Receipt, error) {
	items := s.cart.Items()
	if len(items) == 0 {
		return Receipt{}, ErrEmptyCart
	}
	receipt := Receipt{
		Items:       items,
		Total:       s.cart.Total(),
		AmountCents: s.cart.TotalCents(),
	}

	if s.orders == nil {
		receipt.Order = remote.Order{
			OrderNumber: "LOCAL-" + uuid.NewString()[:8],
			Date:        s.now().Format("2006-01-02"),
			Status:      remote.DefaultOrderStatus,
			Total:       receipt.Total,
		}
		s.cart.Clear()
		return receipt, nil
	}

	order, err := s.orders.Create(ctx)
	metrics.RecordCartSync("checkout", err)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("checkout failed")
		return Receipt{}, err
	}
	if order.Total.IsZero() {
		order.Total = receipt.Total
	}
	if order.Status == "" {
		order.Status = remote.DefaultOrderStatus
	}
	receipt.Order = order
	s.cart.Clear()

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.BackendID())
	}
	s.invalidate(ctx, ids...)

	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"order":        order.OrderNumber,
		"amount_cents": receipt.AmountCents,
	}).Info("order placed")
	return receipt, nil
}

func (s *Synchronizer) clamp(quantity, stock int) int {
	limit := s.maxPerAdd
	if stock < limit {
		limit = stock
	}
	if quantity > limit {
		quantity = limit
	}
	if quantity < 1 {
		quantity = 1
	}
	return quantity
}

// localID is the offline ID used when productID is not numeric: the ID of a
// line already holding the product, or one past the largest ID in use.
func (s *Synchronizer) localID(productID string) int64 {
	var highest int64
	for _, it := range s.cart.Items() {
		if it.BackendID() == productID {
			return it.ID
		}
		if it.ID > highest {
			highest = it.ID
		}
	}
	return highest + 1
}

func (s *Synchronizer) invalidate(ctx context.Context, productIDs ...string) {
	if s.catalog != nil {
		s.catalog.Invalidate(ctx, productIDs...)
	}
}
