// Package worker runs the background entitlement refresh: subscribed rows whose
// billing period ended are reconciled again so access lapses even when the
// reader never reopens the app.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PortNumber53/readflash/backend/internal/billing"
	"github.com/PortNumber53/readflash/backend/internal/metrics"
	"github.com/PortNumber53/readflash/backend/internal/models"
)

// LapsedLister finds entitlements due for a refresh.
type LapsedLister interface {
	ListLapsedEntitlements(ctx context.Context, cutoff time.Time, limit int) ([]models.Entitlement, error)
}

// Reconciler is the billing reconciliation entry point.
type Reconciler interface {
	Reconcile(ctx context.Context, id models.Identity) (billing.Result, error)
}

// Stats holds worker statistics
type Stats struct {
	Sweeps          int64
	Refreshed       int64
	StillSubscribed int64
	Failed          int64
	LastSweepAt     time.Time
}

// Config holds worker configuration
type Config struct {
	// Interval is the time between sweeps.
	Interval time.Duration
	// BatchSize bounds how many rows one sweep reconciles.
	BatchSize int
	// MaxConcurrent is the number of reconciliations run in parallel.
	MaxConcurrent int
	// Grace is how long after period end a row is left alone, giving the
	// provider time to renew.
	Grace time.Duration
	// JobTimeout bounds a single reconciliation.
	JobTimeout time.Duration
	// ShutdownTimeout is the maximum time to wait for a sweep during shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Interval:        15 * time.Minute,
		BatchSize:       50,
		MaxConcurrent:   3,
		Grace:           time.Hour,
		JobTimeout:      30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Worker periodically reconciles lapsed entitlements.
type Worker struct {
	config     Config
	store      LapsedLister
	reconciler Reconciler
	logger     *zap.Logger
	now        func() time.Time

	wg      sync.WaitGroup
	stopCh  chan struct{}
	stopped bool
	mu      sync.Mutex

	statsMu sync.RWMutex
	stats   Stats
}

// New creates a new Worker instance
func New(config Config, store LapsedLister, reconciler Reconciler, logger *zap.Logger) *Worker {
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = def.MaxConcurrent
	}
	if config.Grace < 0 {
		config.Grace = def.Grace
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = def.JobTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		config:     config,
		store:      store,
		reconciler: reconciler,
		logger:     logger.With(zap.String("component", "entitlement-refresh")),
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the sweep loop. The first sweep runs immediately.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting",
		zap.Duration("interval", w.config.Interval),
		zap.Int("batch_size", w.config.BatchSize),
		zap.Int("max_concurrent", w.config.MaxConcurrent),
	)

	w.wg.Add(1)
	go w.loop(ctx)
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, w.config.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		return errors.New("worker: shutdown timeout exceeded")
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		sweepCtx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-w.stopCh:
				cancel()
			case <-sweepCtx.Done():
			}
		}()
		if err := w.Sweep(sweepCtx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("sweep failed", zap.Error(err))
		}
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// Sweep reconciles one batch of lapsed entitlements. Individual failures are
// counted and logged; only a failure to list candidates is returned.
func (w *Worker) Sweep(ctx context.Context) error {
	cutoff := w.now().Add(-w.config.Grace)
	due, err := w.store.ListLapsedEntitlements(ctx, cutoff, w.config.BatchSize)
	if err != nil {
		return err
	}

	sem := make(chan struct{}, w.config.MaxConcurrent)
	var wg sync.WaitGroup
	for _, e := range due {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(e models.Entitlement) {
			defer wg.Done()
			defer func() { <-sem }()
			w.refresh(ctx, e)
		}(e)
	}
	wg.Wait()

	w.statsMu.Lock()
	w.stats.Sweeps++
	w.stats.LastSweepAt = w.now()
	w.statsMu.Unlock()

	if len(due) > 0 {
		w.logger.Info("sweep completed", zap.Int("candidates", len(due)))
	}
	return nil
}

func (w *Worker) refresh(ctx context.Context, e models.Entitlement) {
	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	res, err := w.reconciler.Reconcile(jobCtx, models.Identity{UserID: e.UserID, Email: e.Email})

	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	switch {
	case err != nil:
		w.stats.Failed++
		metrics.EntitlementRefreshTotal.WithLabelValues("error").Inc()
		w.logger.Warn("refresh failed", zap.String("user_id", e.UserID.String()), zap.Error(err))
	case res.Entitlement.Subscribed:
		w.stats.StillSubscribed++
		metrics.EntitlementRefreshTotal.WithLabelValues("renewed").Inc()
	default:
		w.stats.Refreshed++
		metrics.EntitlementRefreshTotal.WithLabelValues("lapsed").Inc()
		w.logger.Info("subscription lapsed", zap.String("user_id", e.UserID.String()))
	}
}

// GetStats returns current worker statistics
func (w *Worker) GetStats() Stats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return w.stats
}
