package credentials

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"devbridge-go/internal/observability"
)

// Sweeper periodically removes expired pending entries.
type Sweeper struct {
	table    Sweepable
	interval time.Duration
	logger   *zap.SugaredLogger
	metrics  *observability.MetricsManager

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(table Sweepable, interval time.Duration, logger *zap.SugaredLogger, metrics *observability.MetricsManager) *Sweeper {
	return &Sweeper{
		table:    table,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Stop must be called to release it.
func (s *Sweeper) Start() {
	go s.loop()
}

func (s *Sweeper) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.SweepOnce(context.Background(), now)
		}
	}
}

// SweepOnce runs a single pass and reports how many entries were removed.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) int {
	removed, err := s.table.Sweep(ctx, now)
	if err != nil {
		s.logger.Warnw("Pending sweep failed", "error", err)
	}
	if removed > 0 {
		s.logger.Debugw("Swept expired pending entries", "removed", removed)
	}
	s.metrics.SetPendingEntries(s.table.Len())
	return removed
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
}
