package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/hqtran/voucher-rush/internal/core/cache"
	"github.com/hqtran/voucher-rush/internal/core/domain"
	"github.com/hqtran/voucher-rush/internal/port"
)

var ErrShopNotFound = errors.New("shop not found")

const (
	shopKeyPrefix  = "cache:shop:"
	shopTypesKey   = "cache:shop-types"
	shopCacheTTL   = 30 * time.Minute
	shopLogicalTTL = 20 * time.Minute
)

// ShopService serves shop reads through the cache-aside engine. Hot shops are
// pre-warmed and read via logical expiry; everything else goes through the
// pass-through or mutex paths.
type ShopService struct {
	shops *cache.Cache[domain.Shop]
	types *cache.Cache[[]domain.ShopType]
	db    port.DatabaseRepository
	log   zerolog.Logger
}

func NewShopService(
	shops *cache.Cache[domain.Shop],
	types *cache.Cache[[]domain.ShopType],
	db port.DatabaseRepository,
	logger zerolog.Logger,
) *ShopService {
	return &ShopService{shops: shops, types: types, db: db, log: logger}
}

// GetShopByID reads a shop with penetration protection: a database miss is
// cached as a tombstone so repeated lookups for bogus ids stay off the
// database.
func (s *ShopService) GetShopByID(ctx context.Context, id int64) (domain.Shop, error) {
	shop, err := s.shops.QueryWithPassThrough(ctx, shopKeyPrefix, id, s.loadShop, shopCacheTTL)
	if errors.Is(err, cache.ErrNotFound) {
		return domain.Shop{}, ErrShopNotFound
	}
	return shop, err
}

// GetShopByIDMutex reads a shop with mutex-wait breakdown protection: only
// one caller rebuilds a missing hot key, the rest wait briefly and retry.
func (s *ShopService) GetShopByIDMutex(ctx context.Context, id int64) (domain.Shop, error) {
	shop, err := s.shops.QueryWithMutex(ctx, shopKeyPrefix, id, s.loadShop, shopCacheTTL)
	if errors.Is(err, cache.ErrNotFound) {
		return domain.Shop{}, ErrShopNotFound
	}
	return shop, err
}

// GetShopByIDLogical reads a pre-warmed shop entry with logical expiry:
// readers never block, an expired entry is served stale while one rebuild
// runs in the background. Unwarmed ids report not found.
func (s *ShopService) GetShopByIDLogical(ctx context.Context, id int64) (domain.Shop, error) {
	shop, err := s.shops.QueryWithLogicalExpire(ctx, shopKeyPrefix, id, s.loadShop, shopLogicalTTL)
	if errors.Is(err, cache.ErrNotFound) {
		return domain.Shop{}, ErrShopNotFound
	}
	return shop, err
}

// WarmShop seeds the logical-expiry entry for a hot shop ahead of traffic.
func (s *ShopService) WarmShop(ctx context.Context, id int64, ttl time.Duration) error {
	shop, err := s.db.GetShopByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load shop %d: %w", id, err)
	}
	if shop == nil {
		return ErrShopNotFound
	}
	return s.shops.SetWithLogicalExpire(ctx, shopKeyPrefix+strconv.FormatInt(id, 10), *shop, ttl)
}

// UpdateShop writes through to the database and invalidates the cache entry,
// so the next read rebuilds from the authoritative row.
func (s *ShopService) UpdateShop(ctx context.Context, shop domain.Shop) error {
	if shop.ID == 0 {
		return fmt.Errorf("update shop: missing id")
	}
	if err := s.db.UpdateShop(ctx, shop); err != nil {
		return err
	}
	return s.shops.Delete(ctx, shopKeyPrefix+strconv.FormatInt(shop.ID, 10))
}

// ListShopTypes caches the whole category list under a single key with no
// physical TTL; the list changes rarely and is invalidated manually.
func (s *ShopService) ListShopTypes(ctx context.Context) ([]domain.ShopType, error) {
	types, err := s.types.Get(ctx, shopTypesKey)
	if err == nil {
		return types, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return nil, err
	}

	types, err = s.db.ListShopTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list shop types: %w", err)
	}
	if len(types) == 0 {
		return nil, ErrShopNotFound
	}
	if err := s.types.Set(ctx, shopTypesKey, types, 0); err != nil {
		s.log.Error().Err(err).Msg("cache shop types")
	}
	return types, nil
}

func (s *ShopService) loadShop(ctx context.Context, id int64) (domain.Shop, bool, error) {
	shop, err := s.db.GetShopByID(ctx, id)
	if err != nil {
		return domain.Shop{}, false, err
	}
	if shop == nil {
		return domain.Shop{}, false, nil
	}
	return *shop, true, nil
}
