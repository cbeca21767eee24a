package engine

import (
	"context"
	"sync"
	"time"

	"github.com/terracehq/terrace/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultDecayInterval = 6 * time.Hour

	// Nodes untouched for this long start decaying toward the floor.
	decayIdleCutoff   = 7 * 24 * time.Hour
	decaySalienceMin  = 0.05
)

// DecayWorker periodically decays salience on nodes that have not been used
// recently. Strength slows the decay, so reinforced items fade slower.
type DecayWorker struct {
	stats  domain.StatsStore
	logger *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	now      func() time.Time
}

func NewDecayWorker(stats domain.StatsStore, logger *zap.Logger) *DecayWorker {
	return &DecayWorker{
		stats:    stats,
		logger:   logger,
		interval: defaultDecayInterval,
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// SetInterval sets the worker cadence.
func (w *DecayWorker) SetInterval(d time.Duration) { w.interval = d }

// Start begins the background decay worker.
func (w *DecayWorker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.logger.Info("decay worker started", zap.Duration("interval", w.interval))
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				w.runOnce(ctx)
				cancel()
			case <-w.stopCh:
				w.logger.Info("decay worker stopped")
				return
			}
		}
	}()
}

// Stop halts the background worker.
func (w *DecayWorker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

func (w *DecayWorker) runOnce(ctx context.Context) {
	touched, err := w.stats.ApplyDecay(ctx, w.now().Add(-decayIdleCutoff), decaySalienceMin)
	if err != nil {
		w.logger.Error("salience decay failed", zap.Error(err))
		return
	}
	if touched > 0 {
		w.logger.Info("salience decayed", zap.Int64("nodes", touched))
	}
}
