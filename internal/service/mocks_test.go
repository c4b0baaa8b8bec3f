package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sportscarhub/storefront/internal/cache"
	"github.com/sportscarhub/storefront/internal/domain"
	"github.com/sportscarhub/storefront/internal/repository"
)

// mockStore is an in-memory cart, catalog and order store with the same
// commit semantics as the real repositories.
type mockStore struct {
	m      sync.Mutex
	cars   map[string]*domain.Car
	carts  map[string][]domain.CartItem
	orders map[string]*domain.Order
	keys   map[string]string

	listErr         error
	commitErr       error
	updateConflicts int
	commitCalls     int
	onCommit        func()
}

func newMockStore() *mockStore {
	return &mockStore{
		cars:   map[string]*domain.Car{},
		carts:  map[string][]domain.CartItem{},
		orders: map[string]*domain.Order{},
		keys:   map[string]string{},
	}
}

func (m *mockStore) ListCars(context.Context) ([]*domain.Car, error) {
	m.m.Lock()
	defer m.m.Unlock()
	cars := make([]*domain.Car, 0, len(m.cars))
	for _, c := range m.cars {
		cars = append(cars, c)
	}
	return cars, nil
}

func (m *mockStore) GetCar(_ context.Context, id string) (*domain.Car, error) {
	m.m.Lock()
	defer m.m.Unlock()
	c, ok := m.cars[id]
	if !ok {
		return nil, repository.ErrCarNotFound
	}
	return c, nil
}

func (m *mockStore) UpsertCars(_ context.Context, cars []*domain.Car) error {
	m.m.Lock()
	defer m.m.Unlock()
	for _, c := range cars {
		m.cars[c.ID] = c
	}
	return nil
}

func (m *mockStore) ListItems(_ context.Context, ownerID string) ([]domain.CartItem, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	items := make([]domain.CartItem, len(m.carts[ownerID]))
	copy(items, m.carts[ownerID])
	return items, nil
}

func (m *mockStore) AddItem(_ context.Context, ownerID string, item domain.CartItem) error {
	m.m.Lock()
	defer m.m.Unlock()
	for i, existing := range m.carts[ownerID] {
		if existing.ID == item.ID {
			m.carts[ownerID][i] = item
			return nil
		}
	}
	m.carts[ownerID] = append(m.carts[ownerID], item)
	return nil
}

func (m *mockStore) RemoveItems(_ context.Context, ownerID string, itemIDs ...string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.removeLocked(ownerID, itemIDs...)
	return nil
}

func (m *mockStore) removeLocked(ownerID string, itemIDs ...string) int {
	drop := map[string]bool{}
	for _, id := range itemIDs {
		drop[id] = true
	}
	kept := m.carts[ownerID][:0]
	removed := 0
	for _, item := range m.carts[ownerID] {
		if drop[item.ID] {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	m.carts[ownerID] = kept
	return removed
}

func (m *mockStore) CommitCheckout(_ context.Context, order *domain.Order, key string) error {
	if m.onCommit != nil {
		m.onCommit()
	}
	m.m.Lock()
	defer m.m.Unlock()
	m.commitCalls++
	if m.commitErr != nil {
		return m.commitErr
	}
	if key != "" {
		if _, ok := m.keys[order.OwnerID+"/"+key]; ok {
			return repository.ErrDuplicateOrder
		}
	}

	present := map[string]bool{}
	for _, item := range m.carts[order.OwnerID] {
		present[item.ID] = true
	}
	for _, id := range order.ItemIDs() {
		if !present[id] {
			return repository.ErrCartChanged
		}
	}

	m.removeLocked(order.OwnerID, order.ItemIDs()...)
	stored := *order
	m.orders[order.ID] = &stored
	if key != "" {
		m.keys[order.OwnerID+"/"+key] = order.ID
	}
	return nil
}

func (m *mockStore) FindOrderIDByIdempotencyKey(_ context.Context, ownerID, key string) (string, error) {
	m.m.Lock()
	defer m.m.Unlock()
	id, ok := m.keys[ownerID+"/"+key]
	if !ok {
		return "", repository.ErrOrderNotFound
	}
	return id, nil
}

func (m *mockStore) GetOrder(_ context.Context, id string, scope domain.OrderScope) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	o, ok := m.orders[id]
	if !ok || !scope.Allows(o) {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockStore) ListOrders(_ context.Context, scope domain.OrderScope) ([]*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	orders := make([]*domain.Order, 0)
	for _, o := range m.orders {
		if scope.Allows(o) {
			cp := *o
			orders = append(orders, &cp)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (m *mockStore) UpdateStatus(_ context.Context, id string, from, to domain.OrderStatus, at time.Time) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if m.updateConflicts > 0 {
		m.updateConflicts--
		return nil, repository.ErrStatusConflict
	}
	if o.Status != from {
		return nil, repository.ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = at
	cp := *o
	return &cp, nil
}

func (m *mockStore) setStatus(id string, status domain.OrderStatus) {
	m.m.Lock()
	defer m.m.Unlock()
	m.orders[id].Status = status
}

type mockCache struct {
	m         sync.RWMutex
	carts     map[string]*domain.Cart
	deletes   int
	getErr    error
	beforeSet func()
}

func newMockCache() *mockCache {
	return &mockCache{carts: map[string]*domain.Cart{}}
}

func (c *mockCache) Get(_ context.Context, ownerID string) (*domain.Cart, error) {
	c.m.RLock()
	defer c.m.RUnlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	cart, ok := c.carts[ownerID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart, nil
}

func (c *mockCache) Set(_ context.Context, ownerID string, cart *domain.Cart) error {
	if c.beforeSet != nil {
		c.beforeSet()
	}
	c.m.Lock()
	defer c.m.Unlock()
	c.carts[ownerID] = cart
	return nil
}

func (c *mockCache) Delete(_ context.Context, ownerID string) error {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.carts, ownerID)
	c.deletes++
	return nil
}

func (c *mockCache) deleteCount() int {
	c.m.RLock()
	defer c.m.RUnlock()
	return c.deletes
}

func (c *mockCache) cached(ownerID string) bool {
	c.m.RLock()
	defer c.m.RUnlock()
	_, ok := c.carts[ownerID]
	return ok
}

type recordingNotifier struct {
	m      sync.Mutex
	events []domain.OrderEvent
}

func (n *recordingNotifier) Publish(e domain.OrderEvent) {
	n.m.Lock()
	defer n.m.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) published() []domain.OrderEvent {
	n.m.Lock()
	defer n.m.Unlock()
	return append([]domain.OrderEvent(nil), n.events...)
}

type recordingInvalidator struct {
	m      sync.Mutex
	owners []string
}

func (r *recordingInvalidator) Invalidate(ownerID string) {
	r.m.Lock()
	defer r.m.Unlock()
	r.owners = append(r.owners, ownerID)
}
