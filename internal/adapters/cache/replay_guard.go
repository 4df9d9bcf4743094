package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/safepay-org/safepay/internal/domain/config"
	"github.com/safepay-org/safepay/internal/usecase"
)

// DefaultReplayTTL is how long a processed delivery is remembered
const DefaultReplayTTL = 24 * time.Hour

const keyPrefix = "safepay:webhook:"

// ReplayGuard remembers processed webhook deliveries in Redis
type ReplayGuard struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewReplayGuard wraps an existing client
func NewReplayGuard(client goredis.UniversalClient, ttl time.Duration) *ReplayGuard {
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	return &ReplayGuard{client: client, ttl: ttl}
}

// Open connects to the configured Redis. It returns nil when no address is set,
// which leaves webhook processing without replay protection.
func Open(cfg *config.RuntimeConfig) (*ReplayGuard, func(), error) {
	if cfg.Redis.Addr == "" {
		return nil, func() {}, nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	return NewReplayGuard(client, cfg.Redis.ReplayTTL), func() { _ = client.Close() }, nil
}

// Seen reports whether key was marked within the TTL
func (g *ReplayGuard) Seen(ctx context.Context, key string) (bool, error) {
	_, err := g.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("replay lookup failed: %w", err)
	}
	return true, nil
}

// MarkSeen records key. Marking an existing key keeps its original expiry.
func (g *ReplayGuard) MarkSeen(ctx context.Context, key string) error {
	if err := g.client.SetNX(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339), g.ttl).Err(); err != nil {
		return fmt.Errorf("replay mark failed: %w", err)
	}
	return nil
}

var _ usecase.ReplayGuard = (*ReplayGuard)(nil)
