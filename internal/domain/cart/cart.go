// Package cart implements the per-session shopping cart: an ordered list of
// products with merged quantities and totals derived from that list.
package cart

import (
	"fmt"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xenking/paperpen-storefront/internal/domain/product"
)

// MaxQuantity caps the quantity of a single cart line.
const MaxQuantity = 999

// InvalidQuantityError is returned when a product is added with a
// non-positive quantity, or with a quantity that would take its line past
// MaxQuantity. The cart is left unchanged.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
	// InCart is the quantity of ProductID already in the cart.
	InCart int
}

// TooLarge reports whether the add was rejected for exceeding MaxQuantity.
func (e *InvalidQuantityError) TooLarge() bool {
	return e.Quantity > 0
}

func (e *InvalidQuantityError) Error() string {
	if e.TooLarge() {
		return fmt.Sprintf("quantity for product %s must not exceed %d, have %d, adding %d",
			e.ProductID, MaxQuantity, e.InCart, e.Quantity)
	}
	return fmt.Sprintf("quantity must be greater than 0 for product %s, got %d", e.ProductID, e.Quantity)
}

// Item is a single cart line. A cart holds at most one Item per product ID.
type Item struct {
	Product  product.Product
	Quantity int
}

// Subtotal returns price × quantity for the line.
func (i Item) Subtotal() decimal.Decimal {
	return i.Product.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Snapshot is a consistent view of the cart at one point in time.
type Snapshot struct {
	Items      []Item
	TotalItems int
	TotalPrice decimal.Decimal
}

// Empty reports whether the snapshot has no items.
func (s Snapshot) Empty() bool {
	return len(s.Items) == 0
}

// Store holds the cart contents of one session.
//
// Totals are never stored: TotalItems and TotalPrice are recomputed from the
// item list on every call.
type Store struct {
	mu        sync.RWMutex
	items     []Item
	observers []Observer
}

// Option configures a Store.
type Option func(*Store)

// WithObserver registers o to be notified after every mutation.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// New returns an empty cart.
func New(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Observe registers o to be notified after every mutation.
func (s *Store) Observe(o Observer) {
	if o == nil {
		return
	}
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Add adds a single unit of p. It fails only when the line for p already
// holds MaxQuantity units.
func (s *Store) Add(p product.Product) error {
	return s.AddQuantity(p, 1)
}

// AddQuantity adds quantity units of p. If the cart already holds p.ID the
// entry is rebuilt in place with p and the summed quantity; otherwise a new
// entry is appended. The resulting line quantity must stay within
// 1..MaxQuantity.
func (s *Store) AddQuantity(p product.Product, quantity int) error {
	if quantity < 1 {
		return &InvalidQuantityError{ProductID: p.ID, Quantity: quantity}
	}

	s.mu.Lock()
	i := s.indexOf(p.ID)
	inCart := 0
	if i >= 0 {
		inCart = s.items[i].Quantity
	}
	// Compared by subtraction so huge quantities cannot overflow the sum.
	if quantity > MaxQuantity-inCart {
		s.mu.Unlock()
		return &InvalidQuantityError{ProductID: p.ID, Quantity: quantity, InCart: inCart}
	}
	if i >= 0 {
		s.items[i] = Item{Product: p, Quantity: inCart + quantity}
	} else {
		s.items = append(s.items, Item{Product: p, Quantity: quantity})
	}
	ev := s.eventLocked(OpAdd, p.ID, quantity)
	observers := s.observers
	s.mu.Unlock()

	notify(observers, ev)
	return nil
}

// Remove drops the entry for productID. Removing an absent product is a
// no-op and does not notify observers.
func (s *Store) Remove(productID string) {
	s.mu.Lock()
	i := s.indexOf(productID)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	removed := s.items[i].Quantity
	s.items = slices.Delete(s.items, i, i+1)
	ev := s.eventLocked(OpRemove, productID, removed)
	observers := s.observers
	s.mu.Unlock()

	notify(observers, ev)
}

// Clear empties the cart.
func (s *Store) Clear() {
	s.mu.Lock()
	removed := s.totalItemsLocked()
	s.items = nil
	ev := s.eventLocked(OpClear, "", removed)
	observers := s.observers
	s.mu.Unlock()

	notify(observers, ev)
}

// Items returns a copy of the cart lines in insertion order.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// Len returns the number of distinct products in the cart.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Quantity returns the quantity held for productID, or 0.
func (s *Store) Quantity(productID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(productID); i >= 0 {
		return s.items[i].Quantity
	}
	return 0
}

// TotalItems returns the sum of all quantities.
func (s *Store) TotalItems() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalItemsLocked()
}

// TotalPrice returns the sum of price × quantity over all lines.
func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalPriceLocked()
}

// Snapshot returns the items and both totals computed under a single lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Items:      slices.Clone(s.items),
		TotalItems: s.totalItemsLocked(),
		TotalPrice: s.totalPriceLocked(),
	}
}

func (s *Store) indexOf(productID string) int {
	return slices.IndexFunc(s.items, func(it Item) bool {
		return it.Product.ID == productID
	})
}

func (s *Store) totalItemsLocked() int {
	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

func (s *Store) totalPriceLocked() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.Subtotal())
	}
	return total
}

func (s *Store) eventLocked(op Op, productID string, quantity int) Event {
	return Event{
		Op:         op,
		ProductID:  productID,
		Quantity:   quantity,
		TotalItems: s.totalItemsLocked(),
		TotalPrice: s.totalPriceLocked(),
	}
}
