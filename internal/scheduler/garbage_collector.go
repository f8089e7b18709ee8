package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/dispatchprobe/internal/logger"
	"github.com/MrSnakeDoc/dispatchprobe/internal/store"
)

const (
	// DefaultGCThreshold is the idle duration after which discovered endpoints are deleted
	DefaultGCThreshold = 30 * 24 * time.Hour // 30 days
)

// GarbageCollector prunes discovered endpoints that have not delivered
// anything for longer than the threshold.
type GarbageCollector struct {
	store         store.EndpointStore
	logger        logger.Logger
	interval      time.Duration
	threshold     time.Duration
	now           func() time.Time
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewGarbageCollector creates a new garbage collector. manualTrigger may be nil.
func NewGarbageCollector(
	st store.EndpointStore,
	log logger.Logger,
	interval time.Duration,
	threshold time.Duration,
	manualTrigger chan struct{},
) *GarbageCollector {
	if threshold == 0 {
		threshold = DefaultGCThreshold
	}

	return &GarbageCollector{
		store:         st,
		logger:        log,
		interval:      interval,
		threshold:     threshold,
		now:           time.Now,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start runs one collection, then keeps collecting on every tick and on
// every manual trigger until Stop is called or ctx is done.
func (gc *GarbageCollector) Start(ctx context.Context) error {
	if gc.interval <= 0 {
		return fmt.Errorf("garbage collector: interval must be positive, got %s", gc.interval)
	}

	if _, err := gc.Collect(ctx); err != nil {
		gc.logger.Warn("initial garbage collection failed",
			logger.Error(err))
	}

	ticker := time.NewTicker(gc.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				gc.run(ctx, "scheduled")
			case <-gc.manualTrigger:
				gc.run(ctx, "manual")
			case <-gc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (gc *GarbageCollector) run(ctx context.Context, reason string) {
	if _, err := gc.Collect(ctx); err != nil {
		gc.logger.Error("garbage collection failed",
			logger.String("reason", reason),
			logger.Error(err))
	}
}

// Stop stops the garbage collector
func (gc *GarbageCollector) Stop() {
	close(gc.stopCh)
}

// Collect deletes every endpoint whose last activity is older than the
// threshold and returns how many were deleted. A failed delete is logged
// and skipped.
func (gc *GarbageCollector) Collect(ctx context.Context) (int, error) {
	gc.logger.Debug("running garbage collection for stale endpoints")

	endpoints, err := gc.store.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("list endpoints: %w", err)
	}

	now := gc.now()
	deleted := 0

	for _, ep := range endpoints {
		last := store.LastActivity(ep)
		if last.IsZero() {
			continue
		}

		idle := now.Sub(last)
		if idle < gc.threshold {
			continue
		}

		if err := gc.store.Delete(ctx, ep); err != nil {
			gc.logger.Warn("failed to delete stale endpoint",
				logger.String("scope", ep.Scope()),
				logger.String("endpoint_id", ep.ID()),
				logger.Error(err))
			continue
		}

		gc.logger.Info("garbage collected stale endpoint",
			logger.String("scope", ep.Scope()),
			logger.String("endpoint_id", ep.ID()),
			logger.String("idle_for", idle.String()))

		deleted++
	}

	if deleted > 0 {
		gc.logger.Info("garbage collection completed",
			logger.Int("endpoints_deleted", deleted),
			logger.Int("endpoints_kept", len(endpoints)-deleted))
	} else {
		gc.logger.Debug("no endpoints to garbage collect")
	}

	return deleted, nil
}
