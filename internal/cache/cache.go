package cache

import (
	"context"
	"errors"

	"github.com/sportscarhub/storefront/internal/domain"
)

// CartCache holds read-through copies of carts. It is never consulted by the
// checkout, which always snapshots from the store.
type CartCache interface {
	Get(ctx context.Context, ownerID string) (*domain.Cart, error)
	Set(ctx context.Context, ownerID string, cart *domain.Cart) error
	Delete(ctx context.Context, ownerID string) error
}

var ErrCacheMiss = errors.New("cache miss")

// Noop is used when no redis is configured. Every Get is a miss.
type Noop struct{}

func (Noop) Get(context.Context, string) (*domain.Cart, error) { return nil, ErrCacheMiss }
func (Noop) Set(context.Context, string, *domain.Cart) error { return nil }
func (Noop) Delete(context.Context, string) error { return nil }
