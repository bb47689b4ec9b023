package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-payments-service/internal/config"
	"github.com/cardhaven/cardhaven-payments-service/internal/logging"
)

const cartKeyPrefix = "cart:"

// CartItem is one line of a buyer's cart.
type CartItem struct {
	ListingID string `json:"listing_id"`
	Quantity  int    `json:"quantity"`
}

// CartStore is the cart surface checkout depends on. Clearing is the last,
// non-fatal step of a successful charge-first checkout.
type CartStore interface {
	Get(ctx context.Context, buyerID string) ([]CartItem, error)
	Set(ctx context.Context, buyerID string, items []CartItem) error
	Clear(ctx context.Context, buyerID string) error
}

// RedisCartStore implements CartStore on Redis.
type RedisCartStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewRedisCartStore creates a Redis-backed cart store.
func NewRedisCartStore(cfg config.RedisConfig) *RedisCartStore {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisCartStore{
		client: client,
		ttl:    cfg.CartTTL,
		logger: logging.NewLogger("cart-store"),
	}
}

// NewRedisCartStoreWithClient wraps an existing client. Used by tests.
func NewRedisCartStoreWithClient(client *redis.Client, ttl time.Duration) *RedisCartStore {
	return &RedisCartStore{
		client: client,
		ttl:    ttl,
		logger: logging.NewLogger("cart-store"),
	}
}

// Get retrieves a buyer's cart. An absent cart is empty, not an error.
func (s *RedisCartStore) Get(ctx context.Context, buyerID string) ([]CartItem, error) {
	key := cartKeyPrefix + buyerID

	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		s.logger.Errorw("Cart get error", "buyer_id", buyerID, "error", err.Error())
		return nil, err
	}

	var items []CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Set stores a buyer's cart with the configured TTL.
func (s *RedisCartStore) Set(ctx context.Context, buyerID string, items []CartItem) error {
	key := cartKeyPrefix + buyerID

	data, err := json.Marshal(items)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.logger.Errorw("Cart set error", "buyer_id", buyerID, "error", err.Error())
		return err
	}
	return nil
}

// Clear removes a buyer's cart.
func (s *RedisCartStore) Clear(ctx context.Context, buyerID string) error {
	key := cartKeyPrefix + buyerID

	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.Errorw("Cart clear error", "buyer_id", buyerID, "error", err.Error())
		return err
	}

	s.logger.Debugw("Cart cleared", "buyer_id", buyerID)
	return nil
}
