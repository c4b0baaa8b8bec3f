package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sportscarhub/storefront/internal/access"
	"github.com/sportscarhub/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	bob      = domain.Identity{UserID: "bob"}
	operator = domain.Identity{UserID: "ops-1", Roles: []string{domain.RoleOperator}}
)

func addOrder(store *mockStore, id, owner string, status domain.OrderStatus, createdAt time.Time) {
	o := domain.NewOrder(id, domain.Identity{UserID: owner}, []domain.CartItem{cartItem("x-"+id, "100", 1)},
		domain.PaymentMethodCOD, nil, createdAt)
	o.Status = status
	store.orders[id] = o
}

func newOrdersFixture() (*mockStore, *recordingNotifier, *OrdersService) {
	store := newMockStore()
	notifier := &recordingNotifier{}
	svc := NewOrdersService(store, access.NewPolicy("staff-7"), zerolog.Nop(), WithOrdersNotifier(notifier))
	return store, notifier, svc
}

func TestGetOrder_AccessPolicy(t *testing.T) {
	store, _, svc := newOrdersFixture()
	addOrder(store, "o-alice", "alice", domain.OrderStatusPending, time.Now())
	ctx := context.Background()

	order, err := svc.GetOrder(ctx, alice, "o-alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", order.OwnerID)

	// another user learns nothing about existence
	_, err = svc.GetOrder(ctx, bob, "o-alice")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.GetOrder(ctx, bob, "does-not-exist")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.GetOrder(ctx, domain.Identity{}, "o-alice")
	assert.ErrorIs(t, err, ErrUnauthorized)

	order, err = svc.GetOrder(ctx, operator, "o-alice")
	require.NoError(t, err)
	assert.Equal(t, "o-alice", order.ID)

	_, err = svc.GetOrder(ctx, operator, "does-not-exist")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	// configured operator id without the role claim
	_, err = svc.GetOrder(ctx, domain.Identity{UserID: "staff-7"}, "o-alice")
	assert.NoError(t, err)
}

func TestListOrders_ScopedAndNewestFirst(t *testing.T) {
	store, _, svc := newOrdersFixture()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	addOrder(store, "a1", "alice", domain.OrderStatusPending, base)
	addOrder(store, "b1", "bob", domain.OrderStatusPending, base.Add(time.Minute))
	addOrder(store, "a2", "alice", domain.OrderStatusShipped, base.Add(2*time.Minute))
	ctx := context.Background()

	mine, err := svc.ListOrders(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "a2", mine[0].ID)
	assert.Equal(t, "a1", mine[1].ID)

	all, err := svc.ListOrders(ctx, operator)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a2", all[0].ID)
	assert.Equal(t, "b1", all[1].ID)

	none, err := svc.ListOrders(ctx, domain.Identity{UserID: "carol"})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = svc.ListOrders(ctx, domain.Identity{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestTransitionStatus_Lifecycle(t *testing.T) {
	store, notifier, svc := newOrdersFixture()
	addOrder(store, "o1", "alice", domain.OrderStatusPending, time.Now())
	ctx := context.Background()

	steps := []struct {
		input string
		want  domain.OrderStatus
	}{
		{"Processing", domain.OrderStatusProcessing},
		{"shipped", domain.OrderStatusShipped},
		{"DELIVERED", domain.OrderStatusDelivered},
	}
	for _, step := range steps {
		updated, err := svc.TransitionStatus(ctx, operator, "o1", step.input)
		require.NoError(t, err, step.input)
		assert.Equal(t, step.want, updated.Status)
	}

	order, err := svc.GetOrder(ctx, operator, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, order.Status)

	_, err = svc.TransitionStatus(ctx, operator, "o1", "Cancelled")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	events := notifier.published()
	require.Len(t, events, 3)
	assert.Equal(t, domain.OrderEventStatusChanged, events[2].Type)
	assert.Equal(t, domain.OrderStatusDelivered, events[2].Status)
}

func TestTransitionStatus_Errors(t *testing.T) {
	tests := []struct {
		name    string
		viewer  domain.Identity
		start   domain.OrderStatus
		orderID string
		status  string
		wantErr error
	}{
		{"anonymous", domain.Identity{}, domain.OrderStatusPending, "o1", "Processing", ErrUnauthorized},
		{"owner is not operator", alice, domain.OrderStatusPending, "o1", "Cancelled", ErrUnauthorized},
		{"unknown status", operator, domain.OrderStatusPending, "o1", "Lost", ErrInvalidStatus},
		{"missing order", operator, domain.OrderStatusPending, "nope", "Processing", ErrOrderNotFound},
		{"skip ahead", operator, domain.OrderStatusPending, "o1", "Delivered", ErrInvalidTransition},
		{"same status", operator, domain.OrderStatusPending, "o1", "Pending", ErrInvalidTransition},
		{"backwards", operator, domain.OrderStatusShipped, "o1", "Processing", ErrInvalidTransition},
		{"cancel shipped", operator, domain.OrderStatusShipped, "o1", "Cancelled", ErrInvalidTransition},
		{"out of cancelled", operator, domain.OrderStatusCancelled, "o1", "Pending", ErrInvalidTransition},
		{"garbage on delivered", operator, domain.OrderStatusDelivered, "o1", "Lost", ErrInvalidTransition},
		{"garbage on cancelled", operator, domain.OrderStatusCancelled, "o1", "", ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, notifier, svc := newOrdersFixture()
			addOrder(store, "o1", "alice", tt.start, time.Now())

			_, err := svc.TransitionStatus(context.Background(), tt.viewer, tt.orderID, tt.status)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.start, store.orders["o1"].Status)
			assert.Empty(t, notifier.published())
		})
	}
}

func TestTransitionStatus_RetriesLostRace(t *testing.T) {
	store, _, svc := newOrdersFixture()
	addOrder(store, "o1", "alice", domain.OrderStatusPending, time.Now())
	store.updateConflicts = 1

	updated, err := svc.TransitionStatus(context.Background(), operator, "o1", "Processing")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, updated.Status)
}

func TestTransitionStatus_ReevaluatesAgainstFreshStatus(t *testing.T) {
	store, _, svc := newOrdersFixture()
	addOrder(store, "o1", "alice", domain.OrderStatusProcessing, time.Now())

	// someone cancels between our read and our write
	svc.orders = &racingStore{mockStore: store, onUpdate: func() {
		store.setStatus("o1", domain.OrderStatusCancelled)
	}}

	_, err := svc.TransitionStatus(context.Background(), operator, "o1", "Shipped")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, domain.OrderStatusCancelled, store.orders["o1"].Status)
}

func TestTransitionStatus_GivesUpAfterRepeatedConflicts(t *testing.T) {
	store, _, svc := newOrdersFixture()
	addOrder(store, "o1", "alice", domain.OrderStatusPending, time.Now())
	store.updateConflicts = maxStatusAttempts

	_, err := svc.TransitionStatus(context.Background(), operator, "o1", "Processing")
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
}

// racingStore runs onUpdate once, right before the first UpdateStatus.
type racingStore struct {
	*mockStore
	once     sync.Once
	onUpdate func()
}

func (s *racingStore) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) (*domain.Order, error) {
	s.once.Do(s.onUpdate)
	return s.mockStore.UpdateStatus(ctx, id, from, to, at)
}

type fakeHub struct {
	m    sync.Mutex
	subs []func(domain.OrderEvent) bool
	chs  []chan domain.OrderEvent
}

func (h *fakeHub) Subscribe(filter func(domain.OrderEvent) bool) (<-chan domain.OrderEvent, func()) {
	h.m.Lock()
	defer h.m.Unlock()
	ch := make(chan domain.OrderEvent, 4)
	h.subs = append(h.subs, filter)
	h.chs = append(h.chs, ch)
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }
}

func (h *fakeHub) Publish(e domain.OrderEvent) {
	h.m.Lock()
	defer h.m.Unlock()
	for i, filter := range h.subs {
		if filter(e) {
			select {
			case h.chs[i] <- e:
			default:
			}
		}
	}
}

func TestWatch_FiltersByScope(t *testing.T) {
	hub := &fakeHub{}
	svc := NewOrdersService(newMockStore(), access.NewPolicy(), zerolog.Nop(), WithEventHub(hub))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aliceCh, err := svc.Watch(ctx, alice)
	require.NoError(t, err)
	opsCh, err := svc.Watch(ctx, operator)
	require.NoError(t, err)

	_, err = svc.Watch(ctx, domain.Identity{})
	assert.ErrorIs(t, err, ErrUnauthorized)

	hub.Publish(domain.OrderEvent{ID: "e1", OrderID: "o1", OwnerID: "bob"})
	hub.Publish(domain.OrderEvent{ID: "e2", OrderID: "o2", OwnerID: "alice"})

	got := <-aliceCh
	assert.Equal(t, "e2", got.ID)
	assert.Equal(t, "e1", (<-opsCh).ID)
	assert.Equal(t, "e2", (<-opsCh).ID)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, open := <-aliceCh:
			return !open
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestWatch_WithoutHub(t *testing.T) {
	svc := NewOrdersService(newMockStore(), access.NewPolicy(), zerolog.Nop())

	_, err := svc.Watch(context.Background(), alice)
	assert.ErrorIs(t, err, ErrWatchUnavailable)
}
