package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/leadchat-bfa-go/internal/domain"
	"github.com/boddenberg/leadchat-bfa-go/internal/infra/resilience"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// keyPrefix namespaces ledger lists in Redis.
const keyPrefix = "leadchat:leads:"

// maxTxAttempts bounds optimistic-lock retries when another instance
// appends to the same tenant concurrently.
const maxTxAttempts = 10

// RedisLedger stores each tenant's leads in a Redis list keyed by siteId.
//
// Appends read the tail entry to stamp CreatedAt, so the read and the RPUSH
// run in a WATCH/MULTI transaction. Writers in this process are also
// serialized per tenant, so the transaction only retries on cross-instance
// contention.
type RedisLedger struct {
	rdb    *redis.Client
	locks  sync.Map // siteID → *sync.Mutex
	now    func() time.Time
	logger *zap.Logger
}

// NewRedisLedger creates a ledger backed by an existing Redis client.
func NewRedisLedger(rdb *redis.Client, logger *zap.Logger) *RedisLedger {
	return &RedisLedger{rdb: rdb, now: time.Now, logger: logger}
}

// WithClock replaces the time source used for CreatedAt.
func (l *RedisLedger) WithClock(now func() time.Time) *RedisLedger {
	l.now = now
	return l
}

// Connect parses url, then pings Redis with retries until it answers.
func Connect(ctx context.Context, url string, retries int, logger *zap.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	cfg := resilience.Config{MaxRetries: retries, InitialBackoff: 200 * time.Millisecond}
	err = resilience.RetryWithBackoff(ctx, cfg, func() error {
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable yet", zap.String("addr", opts.Addr), zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

func ledgerKey(siteID string) string {
	return keyPrefix + siteID
}

// Append stamps lead.CreatedAt and pushes it onto the tail of the
// tenant's list. It returns the lead as stored.
func (l *RedisLedger) Append(ctx context.Context, profile *domain.BusinessProfile, lead domain.Lead) (domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "RedisLedger.Append")
	defer span.End()
	span.SetAttributes(attribute.String("site.id", profile.SiteID))

	mu, _ := l.locks.LoadOrStore(profile.SiteID, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	key := ledgerKey(profile.SiteID)
	var size int64

	txf := func(tx *redis.Tx) error {
		prev, err := tailCreatedAt(ctx, tx, key)
		if err != nil {
			return err
		}
		lead.CreatedAt = domain.NextLeadTime(prev, l.now())

		data, err := json.Marshal(lead)
		if err != nil {
			return err
		}

		var push *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			push = pipe.RPush(ctx, key, data)
			return nil
		})
		if err != nil {
			return err
		}
		size = push.Val()
		return nil
	}

	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = l.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return domain.Lead{}, &domain.ErrPersistence{SiteID: profile.SiteID, Op: "write", Err: err}
	}

	l.logger.Debug("lead appended to redis ledger",
		zap.String("site_id", profile.SiteID),
		zap.Int64("ledger_size", size),
	)
	return lead, nil
}

// tailCreatedAt returns the CreatedAt of the newest entry, or "" for an
// empty list or an undecodable entry.
func tailCreatedAt(ctx context.Context, tx *redis.Tx, key string) (string, error) {
	raw, err := tx.LIndex(ctx, key, -1).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var tail struct {
		CreatedAt string `json:"createdAt"`
	}
	if json.Unmarshal([]byte(raw), &tail) != nil {
		return "", nil
	}
	return tail.CreatedAt, nil
}

// List returns every lead in the tenant's list, oldest first.
// Entries that fail to decode are skipped and logged.
func (l *RedisLedger) List(ctx context.Context, profile *domain.BusinessProfile) ([]domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "RedisLedger.List")
	defer span.End()
	span.SetAttributes(attribute.String("site.id", profile.SiteID))

	raw, err := l.rdb.LRange(ctx, ledgerKey(profile.SiteID), 0, -1).Result()
	if err != nil {
		return nil, &domain.ErrPersistence{SiteID: profile.SiteID, Op: "read", Err: err}
	}

	leads := make([]domain.Lead, 0, len(raw))
	for i, item := range raw {
		var lead domain.Lead
		if err := json.Unmarshal([]byte(item), &lead); err != nil {
			l.logger.Warn("skipping undecodable ledger entry",
				zap.String("site_id", profile.SiteID),
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		leads = append(leads, lead)
	}
	return leads, nil
}

// Ping checks the Redis connection (used by /healthz).
func (l *RedisLedger) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}
