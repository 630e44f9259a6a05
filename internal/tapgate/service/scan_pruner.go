package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tapgate/tapgate/server/internal/tapgate/store"
)

// ScanPruner periodically deletes scan rows older than a configurable
// retention period.  The admission core itself never deletes; this exists
// for operators who must cap table growth.  Retention 0 disables pruning
// entirely, which is the default.
type ScanPruner struct {
	store     store.ScanStore
	retention time.Duration
	interval  time.Duration
	logger    zerolog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

type PrunerConfig struct {
	// RetentionDays is how many days of scan history to keep.
	// 0 means keep everything (pruner will not start).
	RetentionDays int

	// IntervalHours is how often the pruner runs.  Defaults to 24.
	IntervalHours int
}

// NewScanPruner creates a pruner but does not start it.
func NewScanPruner(st store.ScanStore, cfg PrunerConfig, logger zerolog.Logger) *ScanPruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	return &ScanPruner{
		store:     st,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start begins the background loop: an immediate prune, then one per
// interval, until ctx is cancelled or Stop is called.
func (p *ScanPruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Info().Msg("scan pruner disabled (retention=0)")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)

	go p.loop(ctx)

	p.logger.Info().
		Int("retentionDays", int(p.retention.Hours()/24)).
		Int("intervalHours", int(p.interval.Hours())).
		Msg("scan pruner started")
}

// Stop signals the pruner to exit and waits for it to finish.
func (p *ScanPruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *ScanPruner) loop(ctx context.Context) {
	defer close(p.done)

	p.prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *ScanPruner) prune(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error().Err(err).Msg("scan prune failed")
		return
	}
	if deleted > 0 {
		p.logger.Info().
			Int64("deleted", deleted).
			Str("cutoff", cutoff.Format(time.RFC3339)).
			Msg("scan prune")
	}
}
