// Package cache holds short-lived copies of company profiles in Redis. The
// durable store is authoritative; entries are derived from it and expire
// after TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alfredjeanlab/mcpgate/internal/model"
)

const (
	DefaultTTL = time.Hour
	keyPrefix  = "company:"
	opTimeout  = 2 * time.Second
)

// ProfileCache is a Redis-backed profile cache.
type ProfileCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func New(client redis.Cmdable, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ProfileCache{client: client, ttl: ttl}
}

func key(companyID string) string { return keyPrefix + companyID }

// Get returns the cached profile, or (nil, nil) on a miss.
func (c *ProfileCache) Get(ctx context.Context, companyID string) (*model.CompanyProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	data, err := c.client.Get(ctx, key(companyID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", companyID, err)
	}
	var p model.CompanyProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("cache decode %s: %w", companyID, err)
	}
	return &p, nil
}

// Set stores p under its company id with the cache TTL.
func (c *ProfileCache) Set(ctx context.Context, p *model.CompanyProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", p.CompanyID, err)
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.client.Set(ctx, key(p.CompanyID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", p.CompanyID, err)
	}
	return nil
}

// Delete evicts companyID. Evicting a missing entry is not an error.
func (c *ProfileCache) Delete(ctx context.Context, companyID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.client.Del(ctx, key(companyID)).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", companyID, err)
	}
	return nil
}
