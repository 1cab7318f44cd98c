// Package cache provides a read-through cache in front of the catalog read
// path. Pricing hits the catalog on every order edit, and the menu changes
// rarely; a short TTL keeps revisions off the database without an
// invalidation protocol.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sajian-pos/api/internal/database"
	"github.com/sajian-pos/api/internal/service"
)

// Noop passes every lookup straight to the store. Used when no Redis address
// is configured.
type Noop struct {
	store service.CatalogStore
}

func NewNoop(store service.CatalogStore) *Noop {
	return &Noop{store: store}
}

func (n *Noop) GetCatalogItem(ctx context.Context, arg database.GetCatalogItemParams) (database.CatalogItem, error) {
	return n.store.GetCatalogItem(ctx, arg)
}

func (n *Noop) ListCatalogModifiersByItem(ctx context.Context, itemID uuid.UUID) ([]database.CatalogModifier, error) {
	return n.store.ListCatalogModifiersByItem(ctx, itemID)
}

// Redis caches catalog reads. A cache failure is never an error: the lookup
// falls through to the store and the miss is logged.
type Redis struct {
	store service.CatalogStore
	rdb   *redis.Client
	ttl   time.Duration
}

func NewRedis(store service.CatalogStore, rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{store: store, rdb: rdb, ttl: ttl}
}

func itemKey(arg database.GetCatalogItemParams) string {
	return fmt.Sprintf("catalog:item:%s:%s", arg.OutletID, arg.ID)
}

func modifiersKey(itemID uuid.UUID) string {
	return fmt.Sprintf("catalog:mods:%s", itemID)
}

func (c *Redis) GetCatalogItem(ctx context.Context, arg database.GetCatalogItemParams) (database.CatalogItem, error) {
	key := itemKey(arg)
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var item database.CatalogItem
		if err := json.Unmarshal(raw, &item); err == nil {
			return item, nil
		}
	} else if err != redis.Nil {
		log.Printf("cache: get %s: %v", key, err)
	}

	item, err := c.store.GetCatalogItem(ctx, arg)
	if err != nil {
		return item, err
	}
	c.set(ctx, key, item)
	return item, nil
}

func (c *Redis) ListCatalogModifiersByItem(ctx context.Context, itemID uuid.UUID) ([]database.CatalogModifier, error) {
	key := modifiersKey(itemID)
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var mods []database.CatalogModifier
		if err := json.Unmarshal(raw, &mods); err == nil {
			return mods, nil
		}
	} else if err != redis.Nil {
		log.Printf("cache: get %s: %v", key, err)
	}

	mods, err := c.store.ListCatalogModifiersByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, mods)
	return mods, nil
}

func (c *Redis) set(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
}
