package services

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/config"
	"github.com/temcen/homeser/internal/usage"
)

const bytesPerMB = 1024 * 1024

type ActiveUserCounter interface {
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)
}

// UsageReporter periodically samples free-tier usage and saves it to the usage store.
type UsageReporter struct {
	store       *usage.Store
	users       ActiveUserCounter
	redisClient redis.Cmdable
	metrics     *MetricsCollector
	cfg         config.UsageConfig
	logger      *logrus.Logger
	now         func() time.Time
}

func LimitsFromConfig(cfg config.UsageLimits) usage.Limits {
	return usage.Limits{
		VercelInvocations: cfg.VercelInvocations,
		SupabaseMAU:       cfg.SupabaseMAU,
		RedisMemory:       cfg.RedisMemory,
		CloudinaryCredits: cfg.CloudinaryCredits,
	}
}

func NewUsageReporter(store *usage.Store, users ActiveUserCounter, redisClient redis.Cmdable, metrics *MetricsCollector, cfg config.UsageConfig, logger *logrus.Logger) *UsageReporter {
	return &UsageReporter{
		store:       store,
		users:       users,
		redisClient: redisClient,
		metrics:     metrics,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// Collect builds a snapshot from the live sources. A source that cannot be
// read contributes zero and is logged.
func (r *UsageReporter) Collect(ctx context.Context) (usage.Snapshot, error) {
	now := r.now()
	counters := usage.Counters{
		VercelInvocations: float64(r.metrics.Requests()),
		CloudinaryCredits: r.cfg.CloudinaryCredits,
	}

	if active, err := r.users.CountActiveSince(ctx, now.Add(-r.cfg.ActiveWindow)); err != nil {
		r.logger.WithError(err).Warn("Failed to count active users")
	} else {
		counters.SupabaseMAU = float64(active)
	}

	if mem, err := r.redisMemoryMB(ctx); err != nil {
		r.logger.WithError(err).Debug("Failed to read redis memory usage")
	} else {
		counters.RedisMemory = mem
	}

	return usage.NewSnapshot(counters, LimitsFromConfig(r.cfg.Limits), now)
}

func (r *UsageReporter) Report(ctx context.Context) (usage.Snapshot, error) {
	snap, err := r.Collect(ctx)
	if err != nil {
		return usage.Snapshot{}, err
	}
	if err := r.store.Save(ctx, r.cfg.StoreKey, snap, r.cfg.TTL); err != nil {
		return usage.Snapshot{}, err
	}
	r.metrics.RecordUsage(snap)

	if critical := snap.CriticalServices(); len(critical) > 0 {
		r.logger.WithField("services", critical).Warn("Usage approaching free-tier limits")
	}
	return snap, nil
}

// Latest returns the last saved snapshot or usage.ErrNotFound.
func (r *UsageReporter) Latest(ctx context.Context) (usage.Snapshot, error) {
	return r.store.Load(ctx, r.cfg.StoreKey)
}

// Run reports once immediately and then on every interval until ctx ends.
func (r *UsageReporter) Run(ctx context.Context) {
	interval := r.cfg.ReportInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Report(ctx); err != nil && ctx.Err() == nil {
			r.logger.WithError(err).Error("Failed to report usage metrics")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *UsageReporter) redisMemoryMB(ctx context.Context) (float64, error) {
	info, err := r.redisClient.Info(ctx, "memory").Result()
	if err != nil {
		return 0, err
	}
	bytes, err := parseUsedMemory(info)
	if err != nil {
		return 0, err
	}
	return round2(bytes / bytesPerMB), nil
}

// parseUsedMemory extracts used_memory (bytes) from an INFO memory reply.
func parseUsedMemory(info string) (float64, error) {
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		value, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "used_memory:")
		if !ok {
			continue
		}
		return strconv.ParseFloat(value, 64)
	}
	return 0, fmt.Errorf("used_memory not present in INFO reply")
}
