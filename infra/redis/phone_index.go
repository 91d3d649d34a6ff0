// Package redis provides a Redis backed store.PhoneIndex so several engine
// instances share the phone -> most recent ticket lookup.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kilianp07/floodrescue/core/store"
)

// Config holds Redis connection values.
type Config struct {
	Addr      string        `json:"addr"`
	Password  string        `json:"password"`
	DB        int           `json:"db"`
	KeyPrefix string        `json:"key_prefix"`
	TTL       time.Duration `json:"ttl"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "rescue:phone:"
	}
	if c.TTL == 0 {
		c.TTL = 72 * time.Hour
	}
}

// PhoneIndex maps canonical phones to the id of their most recent ticket.
type PhoneIndex struct {
	client goredis.Cmdable
	prefix string
	ttl    time.Duration
}

var _ store.PhoneIndex = (*PhoneIndex)(nil)

// NewPhoneIndex wraps an existing client.
func NewPhoneIndex(client goredis.Cmdable, prefix string, ttl time.Duration) *PhoneIndex {
	return &PhoneIndex{client: client, prefix: prefix, ttl: ttl}
}

// Dial connects to Redis and verifies connectivity.
func Dial(ctx context.Context, cfg Config) (*PhoneIndex, *goredis.Client, error) {
	cfg.SetDefaults()
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewPhoneIndex(client, cfg.KeyPrefix, cfg.TTL), client, nil
}

func (i *PhoneIndex) key(phone string) string { return i.prefix + phone }

// Lookup returns the cached ticket id for phone.
func (i *PhoneIndex) Lookup(ctx context.Context, phone string) (string, bool, error) {
	id, err := i.client.Get(ctx, i.key(phone)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return id, true, nil
}

// Remember records ticketID as the most recent ticket for phone.
func (i *PhoneIndex) Remember(ctx context.Context, phone, ticketID string) error {
	if err := i.client.Set(ctx, i.key(phone), ticketID, i.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
