package cart

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
)

const (
	defaultCartTTL     = 30 * 24 * time.Hour
	defaultMaxAttempts = 5
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps one hash per customer (field = product id, value =
// quantity). Updates run as WATCH/MULTI transactions, so two concurrent
// edits of the same cart cannot lose each other's changes.
type RedisStore struct {
	client      redis.UniversalClient
	prefix      string
	ttl         time.Duration
	maxAttempts int
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "checkout"
	}
	return &RedisStore{
		client:      client,
		prefix:      prefix,
		ttl:         defaultCartTTL,
		maxAttempts: defaultMaxAttempts,
	}
}

func (s *RedisStore) key(customerID string) string {
	return fmt.Sprintf("%s:cart:%s", s.prefix, customerID)
}

func (s *RedisStore) Load(ctx context.Context, customerID string) (*domain.Cart, error) {
	fields, err := s.client.HGetAll(ctx, s.key(customerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load cart %s: %w", customerID, err)
	}
	return decodeCart(customerID, fields)
}

func (s *RedisStore) Update(ctx context.Context, customerID string, fn MutateFunc) error {
	key := s.key(customerID)

	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		c, err := decodeCart(customerID, fields)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		c.Normalize()

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if c.Empty() {
				return nil
			}
			values := make(map[string]any, len(c.Lines))
			for _, l := range c.Lines {
				values[l.ProductID] = l.Quantity
			}
			pipe.HSet(ctx, key, values)
			pipe.Expire(ctx, key, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis: update cart %s: %w", customerID, err)
		}
		return nil
	}
	return fmt.Errorf("redis: update cart %s: %w", customerID, domain.ErrCartConflict)
}

func (s *RedisStore) Clear(ctx context.Context, customerID string) error {
	if err := s.client.Del(ctx, s.key(customerID)).Err(); err != nil {
		return fmt.Errorf("redis: clear cart %s: %w", customerID, err)
	}
	return nil
}

func decodeCart(customerID string, fields map[string]string) (*domain.Cart, error) {
	c := domain.NewCart(customerID)
	for productID, raw := range fields {
		q, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("redis: cart %s line %s: bad quantity %q", customerID, productID, raw)
		}
		c.Lines = append(c.Lines, domain.CartLine{ProductID: productID, Quantity: q})
	}
	c.Normalize()
	return c, nil
}
