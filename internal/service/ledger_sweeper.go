package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// LedgerSweeper deletes expired purpose tokens and used ones past retention.
type LedgerSweeper struct {
	store     LedgerSweepStore
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewLedgerSweeper(store LedgerSweepStore, interval time.Duration, retention time.Duration) *LedgerSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &LedgerSweeper{store: store, interval: interval, retention: retention, now: time.Now}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *LedgerSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *LedgerSweeper) SweepOnce(ctx context.Context) (expired int64, used int64, err error) {
	expired, err = s.store.DeleteExpired(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("sweep expired tokens: %w", err)
	}

	used, err = s.store.DeleteUsedBefore(ctx, s.now().Add(-s.retention))
	if err != nil {
		return expired, 0, fmt.Errorf("sweep used tokens: %w", err)
	}
	return expired, used, nil
}

func (s *LedgerSweeper) sweepAndLog(ctx context.Context) {
	expired, used, err := s.SweepOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("ledger sweep failed", "error", err)
		}
		return
	}
	if expired > 0 || used > 0 {
		slog.Info("ledger swept", "expired", expired, "used", used)
	}
}
