package automation

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/solar-control-core/internal/state"
)

// DefaultInterval is the evaluation cadence when none is configured.
const DefaultInterval = 60 * time.Second

// SnapshotSource provides the state a pass evaluates. *state.Store satisfies
// it.
type SnapshotSource interface {
	Snapshot() state.Snapshot
}

// TickObserver receives the duration of each evaluation pass.
type TickObserver interface {
	TickCompleted(d time.Duration)
}

// Scheduler drives the schedule and rule engines from one ticker. Each pass
// computes a single TickContext and snapshot, applies scheduled settings and
// then evaluates rules. Passes never overlap.
type Scheduler struct {
	schedules *ScheduleEngine
	rules     *RuleEngine
	state     SnapshotSource
	interval  time.Duration
	loc       *time.Location
	now       func() time.Time
	logger    Logger
	observer  TickObserver

	mu sync.Mutex
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Interval time.Duration
	Location *time.Location
	Logger   Logger
	Observer TickObserver

	// Now overrides the wall clock. Tests only.
	Now func() time.Time
}

// NewScheduler creates a Scheduler. Zero config fields take defaults.
func NewScheduler(schedules *ScheduleEngine, rules *RuleEngine, src SnapshotSource, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Scheduler{
		schedules: schedules,
		rules:     rules,
		state:     src,
		interval:  cfg.Interval,
		loc:       cfg.Location,
		now:       cfg.Now,
		logger:    cfg.Logger,
		observer:  cfg.Observer,
	}
}

// Run evaluates once per interval until ctx is cancelled. The first pass
// happens one interval after Run is called.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.interval.String(), "timezone", s.loc.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one evaluation pass to completion.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	tick := NewTickContext(s.now(), s.loc)
	snap := s.state.Snapshot()

	res := TickResult{Tick: tick}
	if s.schedules != nil {
		res.SettingsApplied = s.schedules.Evaluate(ctx, tick)
	}
	if s.rules != nil {
		res.RulesFired = s.rules.Evaluate(ctx, tick, snap)
	}

	elapsed := time.Since(start)
	if s.observer != nil {
		s.observer.TickCompleted(elapsed)
	}
	s.logger.Debug("tick complete",
		"weekday", tick.Weekday,
		"hour", tick.Hour,
		"settings_applied", res.SettingsApplied,
		"rules_fired", res.RulesFired,
		"duration_ms", elapsed.Milliseconds(),
	)
	return res
}

// TickResult summarises one pass.
type TickResult struct {
	Tick            TickContext
	SettingsApplied int
	RulesFired      int
}
