package persistence

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetentionConfig controls the periodic sweeps spec.md §4.7 requires: a
// time-based (plus optional per-workflow count cap) event-log retention
// policy, and an hourly pairing-token expiry sweep.
type RetentionConfig struct {
	EventMaxAge          time.Duration
	EventPerWorkflowCap  int
	EventSweepInterval   time.Duration
	PairingSweepInterval time.Duration
}

// DefaultRetentionConfig matches the defaults described in spec.md §4.7:
// an hourly pairing-token sweep, and an event log swept every 10 minutes.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		EventMaxAge:          30 * 24 * time.Hour,
		EventPerWorkflowCap:  0,
		EventSweepInterval:   10 * time.Minute,
		PairingSweepInterval: time.Hour,
	}
}

// Sweeper runs the two retention loops against a Store until its context is
// canceled. Run it as its own goroutine from the server's lifecycle.
type Sweeper struct {
	store  Retention
	cfg    RetentionConfig
	logger *zap.Logger
}

// NewSweeper builds a Sweeper. A nil logger is replaced with zap.NewNop.
func NewSweeper(store Retention, cfg RetentionConfig, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{store: store, cfg: cfg, logger: logger}
}

// Run blocks, sweeping on its two independent tickers, until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	eventTicker := time.NewTicker(s.cfg.EventSweepInterval)
	pairingTicker := time.NewTicker(s.cfg.PairingSweepInterval)
	defer eventTicker.Stop()
	defer pairingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-eventTicker.C:
			s.sweepEvents(ctx)
		case <-pairingTicker.C:
			s.sweepPairingTokens(ctx)
		}
	}
}

func (s *Sweeper) sweepEvents(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.EventMaxAge)
	pruned, err := s.store.PruneEvents(ctx, cutoff, s.cfg.EventPerWorkflowCap)
	if err != nil {
		s.logger.Error("event retention sweep failed", zap.Error(err))
		return
	}
	if pruned > 0 {
		s.logger.Info("pruned expired events", zap.Int64("pruned", pruned))
	}
}

func (s *Sweeper) sweepPairingTokens(ctx context.Context) {
	pruned, err := s.store.PruneExpiredPairingTokens(ctx, time.Now())
	if err != nil {
		s.logger.Error("pairing token retention sweep failed", zap.Error(err))
		return
	}
	if pruned > 0 {
		s.logger.Info("pruned expired pairing tokens", zap.Int64("pruned", pruned))
	}
}
