package sched

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spoolworks/printfarm/errors"
	"github.com/spoolworks/printfarm/fleet"
	"github.com/spoolworks/printfarm/job"
	"github.com/spoolworks/printfarm/logger"
	"github.com/spoolworks/printfarm/queue"
	"github.com/spoolworks/printfarm/quota"
)

// Options tunes the planner
type Options struct {
	DefaultDurationHours float64 // for jobs without a slicer estimate
	ColorCompat          map[string][]string
	Blackout             Blackout
}

// Engine plans and applies printer assignments for the pending backlog
type Engine struct {
	jobs     *job.Store
	printers *fleet.Store
	quota    *quota.Enforcer
	// optsMu guards opts and resolver, which a config reload may swap
	// while runs are in flight
	optsMu   sync.RWMutex
	resolver *Resolver
	opts     Options

	// commits to the same printer are serialized so two overlapping runs
	// cannot both pass the timeline re-check
	mu           sync.Mutex
	printerLocks map[string]*sync.Mutex

	log     *zap.SugaredLogger
	timeNow func() time.Time // injectable for tests
}

// NewEngine creates a scheduling engine
func NewEngine(jobs *job.Store, printers *fleet.Store, enforcer *quota.Enforcer, opts Options) *Engine {
	return &Engine{
		jobs:         jobs,
		printers:     printers,
		quota:        enforcer,
		resolver:     NewResolver(opts.ColorCompat, opts.Blackout),
		opts:         opts,
		printerLocks: make(map[string]*sync.Mutex),
		log:          logger.Named("sched"),
		timeNow:      time.Now,
	}
}

// Reconfigure swaps the planning options, e.g. after a config file
// reload. Runs already in flight finish with the options they started
// with.
func (e *Engine) Reconfigure(opts Options) {
	e.optsMu.Lock()
	defer e.optsMu.Unlock()
	e.opts = opts
	e.resolver = NewResolver(opts.ColorCompat, opts.Blackout)
}

// current snapshots the resolver and options for one run
func (e *Engine) current() (*Resolver, Options) {
	e.optsMu.RLock()
	defer e.optsMu.RUnlock()
	return e.resolver, e.opts
}

func (e *Engine) printerLock(printerID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.printerLocks[printerID]
	if !ok {
		lock = &sync.Mutex{}
		e.printerLocks[printerID] = lock
	}
	return lock
}

// Assignment is one planned placement
type Assignment struct {
	JobID     string       `json:"job_id"`
	JobName   string       `json:"job_name"`
	PrinterID string       `json:"printer_id"`
	Slot      job.Interval `json:"slot"`
}

// Skip records a job the planner could not place and why
type Skip struct {
	JobID   string     `json:"job_id"`
	JobName string     `json:"job_name"`
	Reason  SkipReason `json:"reason"`
}

// Plan is the deterministic output of one planning pass. Nothing is
// persisted until Apply.
type Plan struct {
	RunID       string       `json:"run_id"`
	PlannedAt   time.Time    `json:"planned_at"`
	Assignments []Assignment `json:"assignments"`
	Skips       []Skip       `json:"skips"`
}

// snapshot is the immutable fleet view a single planning pass works from
type snapshot struct {
	printers  []*fleet.Printer
	timelines map[string][]job.Interval
}

func (e *Engine) takeSnapshot() (*snapshot, error) {
	printers, err := e.printers.List()
	if err != nil {
		return nil, err
	}
	// deterministic iteration order: name, then id for duplicates
	sort.Slice(printers, func(i, k int) bool {
		if printers[i].Name != printers[k].Name {
			return printers[i].Name < printers[k].Name
		}
		return printers[i].ID < printers[k].ID
	})

	timelines := make(map[string][]job.Interval, len(printers))
	for _, p := range printers {
		timeline, err := e.jobs.PrinterTimeline(p.ID)
		if err != nil {
			return nil, err
		}
		timelines[p.ID] = timeline
	}
	return &snapshot{printers: printers, timelines: timelines}, nil
}

// Run plans assignments for the current backlog without persisting
// anything. Planning is deterministic for a fixed snapshot: jobs are
// considered in queue order and each takes the earliest feasible slot,
// breaking printer ties by name.
func (e *Engine) Run(ctx context.Context) (*Plan, error) {
	snap, err := e.takeSnapshot()
	if err != nil {
		return nil, errors.Wrap(err, "failed to snapshot fleet")
	}

	backlog, err := e.jobs.ListBacklog()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load backlog")
	}
	queue.Sort(backlog)

	plan := &Plan{
		RunID:     uuid.NewString(),
		PlannedAt: e.timeNow(),
	}
	now := plan.PlannedAt
	resolver, opts := e.current()

	for _, j := range backlog {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "planning cancelled")
		}

		if e.quota != nil && j.SubmittedBy != "" {
			grams := 0.0
			if j.GramsEstimate != nil {
				grams = *j.GramsEstimate
			}
			if err := e.quota.Check(j.SubmittedBy, grams, j.EstimatedHours(opts.DefaultDurationHours)); err != nil {
				if errors.Is(err, errors.ErrQuotaExceeded) {
					plan.Skips = append(plan.Skips, Skip{JobID: j.ID, JobName: j.Name, Reason: SkipQuotaExceeded})
					continue
				}
				return nil, err
			}
		}

		assignment, reason := place(j, snap, now, resolver, opts)
		if assignment == nil {
			plan.Skips = append(plan.Skips, Skip{JobID: j.ID, JobName: j.Name, Reason: reason})
			continue
		}

		plan.Assignments = append(plan.Assignments, *assignment)
		// later jobs in this pass must see the slot as taken
		snap.timelines[assignment.PrinterID] = insertSorted(
			snap.timelines[assignment.PrinterID], assignment.Slot)
	}

	return plan, nil
}

// place proposes exactly one interval per candidate printer: the earliest
// feasible start is the later of now and the printer's last committed end.
// A proposal that fails the slot checks skips the printer with the reason
// rather than searching later; a blackout-blocked job stays pending and
// the caller learns why.
func place(j *job.Job, snap *snapshot, now time.Time, resolver *Resolver, opts Options) (*Assignment, SkipReason) {
	duration := time.Duration(j.EstimatedHours(opts.DefaultDurationHours) * float64(time.Hour))

	candidates := snap.printers
	if j.PrinterOverride != "" {
		candidates = nil
		for _, p := range snap.printers {
			if p.ID == j.PrinterOverride {
				candidates = []*fleet.Printer{p}
				break
			}
		}
		if candidates == nil {
			return nil, SkipNoPrinter
		}
	}

	var best *Assignment
	lastReason := SkipNoPrinter
	for _, p := range candidates {
		if reason, ok := resolver.Eligible(j, p); !ok {
			lastReason = reason
			continue
		}

		start := now
		for _, busy := range snap.timelines[p.ID] {
			if busy.End.After(start) {
				start = busy.End
			}
		}
		slot := job.Interval{Start: start, End: start.Add(duration)}
		if reason, ok := resolver.FitsSlot(slot, snap.timelines[p.ID]); !ok {
			lastReason = reason
			continue
		}
		// candidates are pre-sorted by name, so strict Before keeps the
		// first (alphabetically lowest) printer on ties
		if best == nil || slot.Start.Before(best.Slot.Start) {
			best = &Assignment{JobID: j.ID, JobName: j.Name, PrinterID: p.ID, Slot: slot}
		}
	}
	if best == nil {
		return nil, lastReason
	}
	return best, ""
}

// ApplyResult reports what a plan application actually committed
type ApplyResult struct {
	RunID     string   `json:"run_id"`
	Scheduled []string `json:"scheduled"` // job ids committed
	Skipped   []Skip   `json:"skipped"`   // planned but not committed
}

// Apply commits a plan. Each assignment is re-validated against the live
// state under the target printer's lock: jobs that left pending since
// planning, versions that moved, and slots a newer run already committed
// into are all skipped rather than overwritten, so the newest state always
// wins. Quota is reserved before commit and released again if the commit
// fails.
func (e *Engine) Apply(ctx context.Context, plan *Plan) (*ApplyResult, error) {
	result := &ApplyResult{RunID: plan.RunID}
	_, opts := e.current()

	for _, a := range plan.Assignments {
		if err := ctx.Err(); err != nil {
			return result, errors.Wrap(err, "apply cancelled")
		}

		skip, err := e.commitAssignment(a, opts.DefaultDurationHours)
		if err != nil {
			return result, err
		}
		if skip != nil {
			result.Skipped = append(result.Skipped, *skip)
			continue
		}

		result.Scheduled = append(result.Scheduled, a.JobID)
		e.log.Infow("Job scheduled",
			logger.FieldRunID, plan.RunID,
			logger.FieldJobID, a.JobID,
			logger.FieldPrinterID, a.PrinterID,
			logger.FieldStart, a.Slot.Start,
			logger.FieldEnd, a.Slot.End)
	}

	for _, s := range plan.Skips {
		e.log.Debugw("Job not placed",
			logger.FieldRunID, plan.RunID,
			logger.FieldJobID, s.JobID,
			logger.FieldSkipReason, string(s.Reason))
	}
	result.Skipped = append(result.Skipped, plan.Skips...)
	return result, nil
}

// commitAssignment re-validates one planned assignment against the live
// job row and printer timeline, then writes it. A nil skip means the
// assignment was committed.
func (e *Engine) commitAssignment(a Assignment, defaultHours float64) (*Skip, error) {
	lock := e.printerLock(a.PrinterID)
	lock.Lock()
	defer lock.Unlock()

	current, err := e.jobs.Get(a.JobID)
	if err != nil {
		if errors.IsNotFound(err) {
			return &Skip{JobID: a.JobID, JobName: a.JobName, Reason: SkipConflict}, nil
		}
		return nil, err
	}
	if current.Status != job.StatusPending {
		return &Skip{JobID: a.JobID, JobName: a.JobName, Reason: SkipConflict}, nil
	}

	// a run committed after this plan's snapshot may already hold the
	// slot; stale assignments abort instead of double-booking
	timeline, err := e.jobs.PrinterTimeline(a.PrinterID)
	if err != nil {
		return nil, err
	}
	for _, busy := range timeline {
		if a.Slot.Overlaps(busy) {
			return &Skip{JobID: a.JobID, JobName: a.JobName, Reason: SkipConflict}, nil
		}
	}

	reserved := false
	if e.quota != nil && current.SubmittedBy != "" {
		grams := 0.0
		if current.GramsEstimate != nil {
			grams = *current.GramsEstimate
		}
		hours := current.EstimatedHours(defaultHours)
		if err := e.quota.Reserve(current.SubmittedBy, current.ID, grams, hours); err != nil {
			if errors.Is(err, errors.ErrQuotaExceeded) {
				return &Skip{JobID: a.JobID, JobName: a.JobName, Reason: SkipQuotaExceeded}, nil
			}
			return nil, err
		}
		reserved = true
	}

	if err := current.Schedule(a.PrinterID, a.Slot.Start, a.Slot.End); err != nil {
		if reserved {
			e.releaseQuietly(current.ID)
		}
		return &Skip{JobID: a.JobID, JobName: a.JobName, Reason: SkipConflict}, nil
	}
	if err := e.jobs.Update(current); err != nil {
		if reserved {
			e.releaseQuietly(current.ID)
		}
		if errors.IsConflict(err) {
			return &Skip{JobID: a.JobID, JobName: a.JobName, Reason: SkipConflict}, nil
		}
		return nil, err
	}
	return nil, nil
}

func (e *Engine) releaseQuietly(jobID string) {
	if err := e.quota.Release(jobID); err != nil {
		e.log.Errorw("Failed to release quota reservation",
			logger.FieldJobID, jobID,
			logger.FieldError, err)
	}
}

// RunAndApply plans and commits in one call
func (e *Engine) RunAndApply(ctx context.Context) (*ApplyResult, error) {
	plan, err := e.Run(ctx)
	if err != nil {
		return nil, err
	}
	return e.Apply(ctx, plan)
}

func insertSorted(timeline []job.Interval, iv job.Interval) []job.Interval {
	idx := sort.Search(len(timeline), func(i int) bool {
		return timeline[i].Start.After(iv.Start)
	})
	timeline = append(timeline, job.Interval{})
	copy(timeline[idx+1:], timeline[idx:])
	timeline[idx] = iv
	return timeline
}
