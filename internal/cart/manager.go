package cart

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Manager is the cart state shared by the catalog, cart and product views.
// It is safe for concurrent use; mutations never interleave.
//
// Every state change advances a revision. Snapshots fetched from the server
// are tagged with a ticket taken before the fetch started and are only
// applied while no newer state exists, so a slow response can never roll the
// cart back.
type Manager struct {
	mu    sync.Mutex
	items []LineItem

	clock uint64 // last issued ticket or revision
	rev   uint64 // revision of the current items

	nextListener int
	listeners    map[int]func([]LineItem)
}

// NewManager returns an empty cart.
func NewManager() *Manager {
	return &Manager{listeners: make(map[int]func([]LineItem))}
}

// Add puts quantity units of item in the cart. An item whose ID is already
// present has its quantity increased instead. A quantity below one is
// ignored and a negative price is treated as zero.
func (m *Manager) Add(item LineItem, quantity int) {
	if quantity <= 0 {
		return
	}
	m.mutate(func() bool {
		if i := m.indexLocked(item.ID); i >= 0 {
			m.items[i].Quantity += quantity
			return true
		}
		item.Price = clampPrice(item.Price)
		item.Quantity = quantity
		m.items = append(m.items, item)
		return true
	})
}

// UpdateQuantity adjusts the quantity of id by delta. The item is removed
// when the result drops to zero or below. Unknown ids are ignored.
func (m *Manager) UpdateQuantity(id int64, delta int) {
	m.mutate(func() bool {
		i := m.indexLocked(id)
		if i < 0 || delta == 0 {
			return false
		}
		next := m.items[i].Quantity + delta
		if next <= 0 {
			m.removeAtLocked(i)
			return true
		}
		m.items[i].Quantity = next
		return true
	})
}

// Remove deletes id from the cart if present.
func (m *Manager) Remove(id int64) {
	m.mutate(func() bool {
		i := m.indexLocked(id)
		if i < 0 {
			return false
		}
		m.removeAtLocked(i)
		return true
	})
}

// ReplaceAll discards the current items and installs items instead.
// Entries with a non-positive quantity are dropped and repeated ids are
// merged by summing their quantities.
func (m *Manager) ReplaceAll(items []LineItem) {
	normalized := normalize(items)
	m.mutate(func() bool {
		m.items = normalized
		return true
	})
}

// Clear empties the cart.
func (m *Manager) Clear() {
	m.ReplaceAll(nil)
}

// Ticket reserves a revision for a snapshot about to be fetched.
func (m *Manager) Ticket() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock++
	return m.clock
}

// ApplySnapshot replaces the items with a server snapshot fetched under
// ticket. It reports false, leaving the cart untouched, when the cart has
// changed or a newer snapshot was applied since the ticket was issued.
func (m *Manager) ApplySnapshot(ticket uint64, items []LineItem) bool {
	normalized := normalize(items)

	m.mu.Lock()
	if ticket <= m.rev || ticket > m.clock {
		m.mu.Unlock()
		return false
	}
	m.items = normalized
	m.rev = ticket
	snapshot, listeners := m.snapshotLocked()
	m.mu.Unlock()

	notify(listeners, snapshot)
	return true
}

// Revision returns the revision of the current state.
func (m *Manager) Revision() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rev
}

// Items returns a copy of the line items in display order.
func (m *Manager) Items() []LineItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyItems(m.items)
}

// Get returns the line item for id.
func (m *Manager) Get(id int64) (LineItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.indexLocked(id); i >= 0 {
		return m.items[i], true
	}
	return LineItem{}, false
}

// Len returns the number of distinct line items.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Count returns the number of units across all line items.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, it := range m.items {
		n += it.Quantity
	}
	return n
}

// Total returns the exact sum of price × quantity.
func (m *Manager) Total() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return TotalOf(m.items)
}

// TotalOf sums price × quantity over items, such as a copy handed to an
// OnChange listener.
func TotalOf(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// CalculateTotal returns the total rounded to exactly two decimals.
func (m *Manager) CalculateTotal() string {
	return m.Total().StringFixed(2)
}

// TotalCents returns the rounded total in minor currency units.
func (m *Manager) TotalCents() int64 {
	return m.Total().Round(2).Shift(2).IntPart()
}

// OnChange registers fn to be called with a copy of the items after every
// change. The returned func unregisters it.
func (m *Manager) OnChange(fn func([]LineItem)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listeners == nil {
		m.listeners = make(map[int]func([]LineItem))
	}
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// mutate runs fn under the lock and, when fn reports a change, advances the
// revision and notifies listeners outside the lock.
func (m *Manager) mutate(fn func() bool) {
	m.mu.Lock()
	if !fn() {
		m.mu.Unlock()
		return
	}
	m.clock++
	m.rev = m.clock
	snapshot, listeners := m.snapshotLocked()
	m.mu.Unlock()

	notify(listeners, snapshot)
}

func (m *Manager) snapshotLocked() ([]LineItem, []func([]LineItem)) {
	if len(m.listeners) == 0 {
		return nil, nil
	}
	fns := make([]func([]LineItem), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	return copyItems(m.items), fns
}

func (m *Manager) indexLocked(id int64) int {
	for i := range m.items {
		if m.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) removeAtLocked(i int) {
	m.items = append(m.items[:i:i], m.items[i+1:]...)
}

func notify(listeners []func([]LineItem), items []LineItem) {
	for _, fn := range listeners {
		fn(copyItems(items))
	}
}

func normalize(items []LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	seen := make(map[int64]int, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		if i, ok := seen[it.ID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		it.Price = clampPrice(it.Price)
		seen[it.ID] = len(out)
		out = append(out, it)
	}
	return out
}

func clampPrice(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}

func copyItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
