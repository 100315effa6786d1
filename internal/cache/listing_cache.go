// Package cache keeps a Redis copy of single listings in front of the
// catalog store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/bookify-reservation/internal/model"
)

// Catalog is the listing store the cache decorates.
type Catalog interface {
	GetListing(ctx context.Context, listingID uint64) (model.Listing, error)
	CreateListing(ctx context.Context, l *model.Listing) error
	ListListings(ctx context.Context, category model.Category) ([]model.Listing, error)
	UpdateListing(ctx context.Context, l model.Listing) (model.Listing, error)
	DeleteListing(ctx context.Context, listingID uint64) error
}

// ListingCache is a cache-aside decorator for Catalog.  Reads of a single
// listing go to Redis first; misses are collapsed with singleflight and
// filled from the store.  Writes go to the store and then drop the key.
// A nil Redis client turns the cache into a pass-through.
//
// The cached units_committed may lag by up to the TTL.  Reservations never
// read through this cache.
type ListingCache struct {
	next   Catalog
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	log    *zap.Logger
	group  singleflight.Group
}

// NewListingCache wraps next.
func NewListingCache(next Catalog, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *ListingCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ListingCache{next: next, rdb: rdb, ttl: ttl, prefix: "bookify:listing:", log: logger.Named("listing-cache")}
}

func (c *ListingCache) key(id uint64) string { return c.prefix + strconv.FormatUint(id, 10) }

// GetListing implements Catalog.
func (c *ListingCache) GetListing(ctx context.Context, listingID uint64) (model.Listing, error) {
	if c.rdb == nil {
		return c.next.GetListing(ctx, listingID)
	}
	key := c.key(listingID)
	if l, ok := c.lookup(ctx, key); ok {
		return l, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		l, err := c.next.GetListing(ctx, listingID)
		if err != nil {
			return model.Listing{}, err
		}
		c.store(ctx, key, l)
		return l, nil
	})
	if err != nil {
		return model.Listing{}, err
	}
	return v.(model.Listing), nil
}

func (c *ListingCache) lookup(ctx context.Context, key string) (model.Listing, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return model.Listing{}, false
	}
	var l model.Listing
	if err := json.Unmarshal(data, &l); err != nil {
		c.log.Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
		return model.Listing{}, false
	}
	return l, true
}

func (c *ListingCache) store(ctx context.Context, key string, l model.Listing) {
	data, err := json.Marshal(l)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *ListingCache) invalidate(ctx context.Context, id uint64) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, c.key(id)).Err(); err != nil {
		c.log.Warn("cache invalidate failed", zap.Uint64("listing_id", id), zap.Error(err))
	}
}

// CreateListing implements Catalog.
func (c *ListingCache) CreateListing(ctx context.Context, l *model.Listing) error {
	return c.next.CreateListing(ctx, l)
}

// ListListings implements Catalog.  Lists are not cached here; the HTTP
// response cache covers them.
func (c *ListingCache) ListListings(ctx context.Context, category model.Category) ([]model.Listing, error) {
	return c.next.ListListings(ctx, category)
}

// UpdateListing implements Catalog.
func (c *ListingCache) UpdateListing(ctx context.Context, l model.Listing) (model.Listing, error) {
	out, err := c.next.UpdateListing(ctx, l)
	if err != nil {
		return model.Listing{}, err
	}
	c.invalidate(ctx, l.ID)
	return out, nil
}

// DeleteListing implements Catalog.
func (c *ListingCache) DeleteListing(ctx context.Context, listingID uint64) error {
	if err := c.next.DeleteListing(ctx, listingID); err != nil {
		return err
	}
	c.invalidate(ctx, listingID)
	return nil
}
