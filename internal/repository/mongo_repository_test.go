package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sportscarhub/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupMongoRepo(t *testing.T) (*MongoRepository, func()) {
	if testing.Short() {
		t.Skip("skipping mongodb container test in short mode")
	}
	ctx := context.Background()

	// transactions need a replica set
	mongoContainer, err := mongodb.Run(ctx, "mongo:7", mongodb.WithReplicaSet("rs0"))
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	repo := NewMongoRepository(db)
	require.NoError(t, repo.CreateIndexes(ctx))

	cleanup := func() {
		repo.Close()
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func TestMongoStore_CheckoutFlow(t *testing.T) {
	repo, cleanup := setupMongoRepo(t)
	defer cleanup()

	testStoreCheckoutFlow(t, repo)
}

func TestMongoStore_Catalog(t *testing.T) {
	repo, cleanup := setupMongoRepo(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.UpsertCars(ctx, []*domain.Car{
		{ID: "car-1", Make: "Lamborghini", Model: "Huracan", Year: 2022, Price: decimal.RequireFromString("248295.50")},
	}))

	car, err := repo.GetCar(ctx, "car-1")
	require.NoError(t, err)
	assert.Equal(t, "248295.5", car.Price.String())

	_, err = repo.GetCar(ctx, "missing")
	assert.ErrorIs(t, err, ErrCarNotFound)
}

func TestMongoStore_IdempotencyKeyIsUniquePerOwner(t *testing.T) {
	repo, cleanup := setupMongoRepo(t)
	defer cleanup()
	ctx := context.Background()

	item := newCartItem("i1", "car-1", "100", 1, baseTime)
	require.NoError(t, repo.AddItem(ctx, "u1", item))
	first := domain.NewOrder("order-1", domain.Identity{UserID: "u1"}, []domain.CartItem{item}, domain.PaymentMethodCOD, nil, baseTime)
	require.NoError(t, repo.CommitCheckout(ctx, first, "key-1"))

	item2 := newCartItem("i2", "car-1", "100", 1, baseTime)
	require.NoError(t, repo.AddItem(ctx, "u1", item2))
	second := domain.NewOrder("order-2", domain.Identity{UserID: "u1"}, []domain.CartItem{item2}, domain.PaymentMethodCOD, nil, baseTime)
	assert.ErrorIs(t, repo.CommitCheckout(ctx, second, "key-1"), ErrDuplicateOrder)

	items, err := repo.ListItems(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestCartItemKey_DistinctAcrossOwners(t *testing.T) {
	// both pairs join to "a:b:c" without the length prefix
	assert.NotEqual(t, cartItemKey("a:b", "c"), cartItemKey("a", "b:c"))
	assert.Equal(t, cartItemKey("a", "b"), cartItemKey("a", "b"))
}

func TestMongoStore_OwnersWithSeparatorsDoNotShareItems(t *testing.T) {
	repo, cleanup := setupMongoRepo(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.AddItem(ctx, "a:b", newCartItem("c", "car-1", "100", 1, baseTime)))
	require.NoError(t, repo.AddItem(ctx, "a", newCartItem("b:c", "car-1", "100", 1, baseTime)))

	// an owner cannot reach the other cart's item through its own ids
	require.NoError(t, repo.RemoveItems(ctx, "a:b", "b:c"))

	items, err := repo.ListItems(ctx, "a:b")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "c", items[0].ID)

	items, err = repo.ListItems(ctx, "a")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b:c", items[0].ID)

	order := domain.NewOrder("order-1", domain.Identity{UserID: "a"}, []domain.CartItem{newCartItem("c", "car-1", "100", 1, baseTime)},
		domain.PaymentMethodCOD, nil, baseTime)
	assert.ErrorIs(t, repo.CommitCheckout(ctx, order, ""), ErrCartChanged)

	items, err = repo.ListItems(ctx, "a:b")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
