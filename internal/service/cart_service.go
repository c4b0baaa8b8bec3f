package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sportscarhub/storefront/internal/cache"
	"github.com/sportscarhub/storefront/internal/domain"
	"github.com/sportscarhub/storefront/internal/repository"
	"golang.org/x/sync/singleflight"
)

const (
	minQuantity = 1
	maxQuantity = 99
)

type CartService struct {
	repo    repository.CartRepository
	catalog repository.CatalogRepository
	cache   cache.CartCache
	sfg     singleflight.Group // Prevents cache stampede
	log     zerolog.Logger
	now     func() time.Time

	// generation per owner, bumped by every invalidation
	genMu sync.Mutex
	gens  map[string]uint64
}

func NewCartService(repo repository.CartRepository, catalog repository.CatalogRepository, c cache.CartCache, log zerolog.Logger) *CartService {
	if c == nil {
		c = cache.Noop{}
	}
	return &CartService{
		repo:    repo,
		catalog: catalog,
		cache:   c,
		log:     log.With().Str("component", "cart").Logger(),
		now:     time.Now,
		gens:    make(map[string]uint64),
	}
}

func (s *CartService) GetCart(ctx context.Context, viewer domain.Identity) (*domain.Cart, error) {
	if !viewer.IsAuthenticated() {
		return nil, ErrUnauthenticated
	}
	ownerID := viewer.UserID

	v, err, _ := s.sfg.Do(ownerID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, ownerID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn().Err(err).Str("owner_id", ownerID).Msg("cache get failed")
		}

		gen := s.generation(ownerID)
		items, err := s.repo.ListItems(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("list cart items: %w", err)
		}
		cart = domain.NewCart(ownerID, items)

		go s.fillCache(ownerID, cart, gen)

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// AddItem copies the car's current catalog details into a new cart item.
func (s *CartService) AddItem(ctx context.Context, viewer domain.Identity, carID string, quantity int) (*domain.CartItem, error) {
	if !viewer.IsAuthenticated() {
		return nil, ErrUnauthenticated
	}
	if quantity < minQuantity || quantity > maxQuantity {
		return nil, ErrInvalidQuantity
	}

	car, err := s.catalog.GetCar(ctx, strings.TrimSpace(carID))
	if errors.Is(err, repository.ErrCarNotFound) {
		return nil, ErrCarNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get car: %w", err)
	}

	item := domain.CartItem{
		ID:        uuid.NewString(),
		CarID:     car.ID,
		Make:      car.Make,
		Model:     car.Model,
		Year:      car.Year,
		UnitPrice: car.Price,
		ImageURL:  car.ImageURL,
		Quantity:  quantity,
		AddedAt:   s.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.repo.AddItem(ctx, viewer.UserID, item); err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}

	s.Invalidate(viewer.UserID)
	return &item, nil
}

// RemoveItem is idempotent: removing an absent item succeeds.
func (s *CartService) RemoveItem(ctx context.Context, viewer domain.Identity, itemID string) error {
	if !viewer.IsAuthenticated() {
		return ErrUnauthenticated
	}
	if err := s.repo.RemoveItems(ctx, viewer.UserID, itemID); err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}

	s.Invalidate(viewer.UserID)
	return nil
}

// fillCache stores a cart loaded at generation gen. If the cart was
// invalidated meanwhile the entry is removed again, so a fill that lands
// after an invalidation cannot resurrect stale items.
func (s *CartService) fillCache(ownerID string, cart *domain.Cart, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if s.generation(ownerID) != gen {
		return
	}
	if err := s.cache.Set(ctx, ownerID, cart); err != nil {
		s.log.Warn().Err(err).Str("owner_id", ownerID).Msg("cache set failed")
		return
	}
	if s.generation(ownerID) != gen {
		if err := s.cache.Delete(ctx, ownerID); err != nil {
			s.log.Warn().Err(err).Str("owner_id", ownerID).Msg("cache drop of stale fill failed")
		}
	}
}

func (s *CartService) generation(ownerID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[ownerID]
}

// Invalidate drops the cached cart. Failures are logged only; the cache entry
// expires on its own.
func (s *CartService) Invalidate(ownerID string) {
	s.genMu.Lock()
	s.gens[ownerID]++
	s.genMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, ownerID); err != nil {
		s.log.Warn().Err(err).Str("owner_id", ownerID).Msg("cache invalidate failed")
	}
}
