// Package monitor runs the fixed-cadence poll loop: rotate the dedup
// history at day boundaries, search the registry, and feed each record
// through the pipeline with pacing in between.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/morelatto/bidwatch/internal/bid"
	"github.com/morelatto/bidwatch/internal/pipeline"
	"github.com/morelatto/bidwatch/internal/storage"
)

// dayLayout is the registry's query-date format, also used as the
// rotation-day key.
const dayLayout = "02/01/2006"

// Searcher runs one registry search for a day's records.
type Searcher interface {
	Search(ctx context.Context, date string) ([]bid.Record, error)
}

// Processor takes one record through the posting pipeline.
type Processor interface {
	Process(ctx context.Context, rec bid.Record) (pipeline.Outcome, error)
}

// Rotator is the slice of the dedup store the scheduler needs.
type Rotator interface {
	RotateIfNewDay(today string) bool
	LastRotationDay() string
}

// Journal persists cycle summaries and per-record outcomes. May be nil;
// journaling failures never affect the poll loop.
type Journal interface {
	SaveCycle(c storage.Cycle) error
	SavePost(p storage.Post) error
}

// State is a snapshot of the scheduler for status reporting.
type State struct {
	Running         bool      `json:"running"`
	CycleCount      int       `json:"cycle_count"`
	LastRunAt       time.Time `json:"last_run_at"`
	NextRunAt       time.Time `json:"next_run_at"`
	LastRotationDay string    `json:"last_rotation_day"`
	LastCycleError  string    `json:"last_cycle_error,omitempty"`
}

// Deps wires a Scheduler.
type Deps struct {
	Searcher  Searcher
	Processor Processor
	History   Rotator
	Journal   Journal
	Interval  time.Duration
	Pacing    time.Duration
	Logger    *slog.Logger
}

// Scheduler drives poll cycles at a fixed interval. Cycles never overlap:
// the next one is scheduled only after the previous finished.
type Scheduler struct {
	deps Deps

	mu         sync.Mutex
	running    bool
	cycleCount int
	lastRunAt  time.Time
	nextRunAt  time.Time
	lastError  string
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates a Scheduler. Interval <= 0 defaults to 10 minutes, pacing
// <= 0 to 2 seconds.
func New(deps Deps) *Scheduler {
	if deps.Interval <= 0 {
		deps.Interval = 10 * time.Minute
	}
	if deps.Pacing <= 0 {
		deps.Pacing = 2 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Scheduler{deps: deps}
}

// Start runs one cycle immediately, then keeps polling at the configured
// interval until Stop or ctx cancellation. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.deps.Logger.Warn("scheduler already running, ignoring start")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.deps.Logger.Info("scheduler started", "interval", s.deps.Interval)
	s.runCycle(runCtx)

	go s.loop(runCtx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	for {
		s.mu.Lock()
		wait := time.Until(s.nextRunAt)
		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			s.deps.Logger.Info("scheduler stopped")
			return
		case <-timer.C:
		}

		s.runCycle(ctx)
	}
}

// Stop cancels the poll loop and waits for the in-flight cycle to unwind,
// bounded so shutdown never hangs on a stuck browser. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.deps.Logger.Warn("scheduler did not stop within 5s, abandoning cycle")
	}
}

// RunOnce executes a single cycle outside the loop. Used by the one-shot
// command; safe to call when the scheduler is not started.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runCycle(ctx)
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Running:         s.running,
		CycleCount:      s.cycleCount,
		LastRunAt:       s.lastRunAt,
		NextRunAt:       s.nextRunAt,
		LastRotationDay: s.deps.History.LastRotationDay(),
		LastCycleError:  s.lastError,
	}
}

// runCycle performs one complete poll. The cycle counter advances and the
// next run is scheduled whether the cycle succeeded or not.
func (s *Scheduler) runCycle(ctx context.Context) error {
	started := time.Now()
	today := started.Format(dayLayout)

	if s.deps.History.RotateIfNewDay(today) {
		s.deps.Logger.Info("history rotated for new day", "day", today)
	}

	cycle := storage.Cycle{ID: uuid.NewString(), StartedAt: started, Status: "ok"}
	log := s.deps.Logger.With("cycle", cycle.ID)

	records, err := s.deps.Searcher.Search(ctx, today)
	if err != nil {
		log.Error("search failed", "error", err)
		cycle.Status = "failed"
		cycle.Error = err.Error()
	} else {
		log.Info("search complete", "records", len(records))
		cycle.RecordsFound = len(records)
		s.processBatch(ctx, log, records, &cycle)
	}

	cycle.FinishedAt = time.Now()
	s.journalCycle(cycle)

	s.mu.Lock()
	s.cycleCount++
	s.lastRunAt = started
	s.nextRunAt = started.Add(s.deps.Interval)
	s.lastError = cycle.Error
	s.mu.Unlock()

	log.Info("cycle finished",
		"status", cycle.Status, "posted", cycle.Posted, "skipped", cycle.Skipped, "failed", cycle.Failed)
	if err != nil {
		return err
	}
	return nil
}

func (s *Scheduler) processBatch(ctx context.Context, log *slog.Logger, records []bid.Record, cycle *storage.Cycle) {
	for i, rec := range records {
		if ctx.Err() != nil {
			return
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.deps.Pacing):
			}
		}

		outcome, err := s.deps.Processor.Process(ctx, rec)
		detail := ""
		if err != nil {
			detail = err.Error()
			log.Error("record failed", "record", rec.RecordID, "subject", rec.SubjectName, "error", err)
		}

		switch outcome {
		case pipeline.Posted:
			cycle.Posted++
		case pipeline.Skipped:
			cycle.Skipped++
		case pipeline.Failed:
			cycle.Failed++
		}

		s.journalPost(storage.Post{
			ID:             uuid.NewString(),
			CycleID:        cycle.ID,
			RecordID:       rec.RecordID,
			SubjectName:    rec.SubjectName,
			ContractNumber: rec.ContractNumber,
			Outcome:        outcome.String(),
			Detail:         detail,
			CreatedAt:      time.Now(),
		})
	}
}

func (s *Scheduler) journalCycle(c storage.Cycle) {
	if s.deps.Journal == nil {
		return
	}
	if err := s.deps.Journal.SaveCycle(c); err != nil {
		s.deps.Logger.Warn("journaling cycle failed", "cycle", c.ID, "error", err)
	}
}

func (s *Scheduler) journalPost(p storage.Post) {
	if s.deps.Journal == nil {
		return
	}
	if err := s.deps.Journal.SavePost(p); err != nil {
		s.deps.Logger.Warn("journaling post failed", "record", p.RecordID, "error", err)
	}
}
