package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/harun/memdex/internal/tracing"
)

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a five-field cron expression or a descriptor such as "@hourly".
func ParseSchedule(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, errors.New("schedule expression is empty")
	}
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return sched, nil
}

// SweepTarget is what a Sweeper runs on each tick.
type SweepTarget interface {
	Reconcile(ctx context.Context) (ReconcileStats, error)
	Update(ctx context.Context) (UpdateStats, error)
}

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	Schedule string
	Indexer  SweepTarget
	Logger   zerolog.Logger
	// Timeout bounds one sweep. Zero means no bound.
	Timeout time.Duration
	// WorkspacePath, when set, skips the update step while the directory is
	// missing, so an unmounted workspace does not empty the index.
	WorkspacePath string
}

// Sweeper periodically reconciles the index and then catches up with any
// change the watcher missed.
type Sweeper struct {
	cron     *cron.Cron
	schedule cron.Schedule
	indexer  SweepTarget
	logger   zerolog.Logger
	timeout  time.Duration
	root     string
}

// NewSweeper creates a stopped sweeper.
func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Indexer == nil {
		return nil, errors.New("indexer is required")
	}
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}

	s := &Sweeper{
		cron:     cron.New(cron.WithParser(scheduleParser)),
		schedule: sched,
		indexer:  cfg.Indexer,
		logger:   cfg.Logger.With().Str("component", "memory_sweeper").Logger(),
		timeout:  cfg.Timeout,
		root:     cfg.WorkspacePath,
	}
	s.cron.Schedule(sched, cron.FuncJob(func() {
		s.Sweep(tracing.WithTrigger(context.Background(), tracing.TriggerSweep))
	}))
	return s, nil
}

// Start runs the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info().Time("next_run", s.NextRun(time.Now())).Msg("Memory sweeper started")
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// NextRun returns the first activation after now.
func (s *Sweeper) NextRun(now time.Time) time.Time {
	return s.schedule.Next(now)
}

// Sweep runs Reconcile followed by Update once.
func (s *Sweeper) Sweep(ctx context.Context) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	rstats, err := s.indexer.Reconcile(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled reconcile failed")
	} else if rstats.OrphansRemoved > 0 || rstats.EntriesDropped > 0 {
		s.logger.Info().
			Int("orphans_removed", rstats.OrphansRemoved).
			Int("entries_dropped", rstats.EntriesDropped).
			Msg("Scheduled reconcile repaired index")
	}

	if s.root != "" && !DirExists(s.root) {
		s.logger.Warn().Str("workspace", s.root).Msg("Workspace missing, scheduled update skipped")
		return
	}

	ustats, err := s.indexer.Update(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled update failed")
		return
	}
	s.logger.Debug().
		Int("files_added", ustats.FilesAdded).
		Int("files_updated", ustats.FilesUpdated).
		Int("files_removed", ustats.FilesRemoved).
		Msg("Scheduled sweep completed")
}
