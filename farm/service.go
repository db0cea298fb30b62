// Package farm is the coordination layer over the fleet: it wires the
// approval gate, quota enforcer, scheduling engine, and dispatch
// coordinator behind one service and serializes concurrent operations per
// job, printer, and principal.
package farm

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spoolworks/printfarm/approval"
	"github.com/spoolworks/printfarm/config"
	"github.com/spoolworks/printfarm/dispatch"
	"github.com/spoolworks/printfarm/errors"
	"github.com/spoolworks/printfarm/fleet"
	"github.com/spoolworks/printfarm/internal/util"
	"github.com/spoolworks/printfarm/job"
	"github.com/spoolworks/printfarm/logger"
	"github.com/spoolworks/printfarm/preset"
	"github.com/spoolworks/printfarm/queue"
	"github.com/spoolworks/printfarm/quota"
	"github.com/spoolworks/printfarm/sched"
)

// Service is the single entry point for all fleet operations
type Service struct {
	jobs     *job.Store
	printers *fleet.Store
	presets  *preset.Store

	gate       *approval.Gate
	enforcer   *quota.Enforcer
	engine     *sched.Engine
	dispatcher *dispatch.Coordinator

	jobLocks *keyedLocks
	queueMu  sync.Mutex // reorder and bulk ops act on the whole queue

	events *eventBus

	cfgMu sync.RWMutex
	cfg   *config.Config

	log *zap.SugaredLogger
}

// New wires a service from configuration. The dispatch client talks to
// physical printers; a nil authorizer falls back to role-based review
// checks from the config.
func New(conn *sql.DB, cfg *config.Config, client dispatch.Client, auth approval.Authorizer) (*Service, error) {
	blackout, err := sched.NewBlackout(cfg.Scheduler.BlackoutStart, cfg.Scheduler.BlackoutEnd)
	if err != nil {
		return nil, errors.Wrap(err, "invalid blackout window")
	}
	if !quota.IsValidPeriod(cfg.Quota.DefaultPeriod) {
		return nil, errors.Newf("invalid default quota period: %s", cfg.Quota.DefaultPeriod)
	}

	jobs := job.NewStore(conn)
	printers := fleet.NewStore(conn)
	presets := preset.NewStore(conn)

	enforcer := quota.NewEnforcer(quota.NewStore(conn), quota.Defaults{
		Period:   quota.Period(cfg.Quota.DefaultPeriod),
		MaxJobs:  cfg.Quota.DefaultMaxJobs,
		MaxGrams: cfg.Quota.DefaultMaxGrams,
		MaxHours: cfg.Quota.DefaultMaxHours,
	}, cfg.Quota.SemesterAnchorMonths)

	engine := sched.NewEngine(jobs, printers, enforcer, sched.Options{
		DefaultDurationHours: cfg.Scheduler.DefaultDurationHours,
		ColorCompat:          cfg.Scheduler.ColorCompat,
		Blackout:             blackout,
	})

	dispatcher := dispatch.NewCoordinator(jobs, enforcer, client, dispatch.Options{
		TransferTimeout: time.Duration(cfg.Dispatch.TransferTimeoutSeconds) * time.Second,
		StartTimeout:    time.Duration(cfg.Dispatch.StartTimeoutSeconds) * time.Second,
		StartsPerMinute: cfg.Dispatch.StartsPerMinute,
	})

	gate := approval.NewGate(approval.Policy{
		RequireApproval: cfg.Approval.RequireApproval,
		ReviewedRoles:   cfg.Approval.ReviewedRoles,
		ReviewerRoles:   cfg.Approval.ReviewerRoles,
	}, auth)

	return &Service{
		jobs:       jobs,
		printers:   printers,
		presets:    presets,
		gate:       gate,
		enforcer:   enforcer,
		engine:     engine,
		dispatcher: dispatcher,
		jobLocks:   newKeyedLocks(),
		events:     newEventBus(),
		cfg:        cfg,
		log:        logger.Named("farm"),
	}, nil
}

// Subscribe returns a channel of fleet events. Slow subscribers miss
// events; they are never able to block operations.
func (s *Service) Subscribe() <-chan Event {
	return s.events.Subscribe()
}

// Close releases service resources
func (s *Service) Close() {
	s.events.close()
}

// Jobs exposes read access to the job store
func (s *Service) Jobs() *job.Store { return s.jobs }

// Printers exposes the printer store
func (s *Service) Printers() *fleet.Store { return s.printers }

// Presets exposes read access to the preset store
func (s *Service) Presets() *preset.Store { return s.presets }

// Quota exposes the quota enforcer for limit administration
func (s *Service) Quota() *quota.Enforcer { return s.enforcer }

func (s *Service) config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// ReloadConfig applies a changed configuration to the running service:
// the scheduler's blackout window, color table, and duration default, and
// the fleet-wide quota defaults. Invalid values reject the whole reload
// and keep the previous configuration.
func (s *Service) ReloadConfig(cfg *config.Config) error {
	blackout, err := sched.NewBlackout(cfg.Scheduler.BlackoutStart, cfg.Scheduler.BlackoutEnd)
	if err != nil {
		return errors.Wrap(err, "invalid blackout window")
	}
	if !quota.IsValidPeriod(cfg.Quota.DefaultPeriod) {
		return errors.Newf("invalid default quota period: %s", cfg.Quota.DefaultPeriod)
	}

	s.engine.Reconfigure(sched.Options{
		DefaultDurationHours: cfg.Scheduler.DefaultDurationHours,
		ColorCompat:          cfg.Scheduler.ColorCompat,
		Blackout:             blackout,
	})
	s.enforcer.SetDefaults(quota.Defaults{
		Period:   quota.Period(cfg.Quota.DefaultPeriod),
		MaxJobs:  cfg.Quota.DefaultMaxJobs,
		MaxGrams: cfg.Quota.DefaultMaxGrams,
		MaxHours: cfg.Quota.DefaultMaxHours,
	})

	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()

	s.log.Infow("Configuration reloaded",
		"blackout_start", cfg.Scheduler.BlackoutStart,
		"blackout_end", cfg.Scheduler.BlackoutEnd,
		"quota_period", cfg.Quota.DefaultPeriod)
	return nil
}

// SubmitOptions carries everything a new job needs
type SubmitOptions struct {
	Name            string
	ModelRef        string
	Quantity        int
	Notes           string
	Priority        int
	DurationMinutes *int
	GramsEstimate   *float64
	Colors          []string
	RequiredTags    []string
	DueAt           *time.Time
	PrinterOverride string
	OrderItemRef    string

	// ScheduleNow triggers a scheduling run right after submission when
	// the job enters the queue directly
	ScheduleNow bool
}

// SubmitJob creates a job for the submitter. The approval gate decides
// whether it starts submitted (awaiting review) or pending (in the queue).
func (s *Service) SubmitJob(ctx context.Context, submitter approval.Principal, opts SubmitOptions) (*job.Job, error) {
	initial := s.gate.InitialStatus(submitter)
	j, err := job.New(opts.Name, initial, submitter.ID)
	if err != nil {
		return nil, err
	}
	j.ModelRef = opts.ModelRef
	if opts.Quantity > 0 {
		j.Quantity = opts.Quantity
	}
	j.Notes = opts.Notes
	if opts.Priority > 0 {
		j.Priority = opts.Priority
	}
	j.DurationMinutes = opts.DurationMinutes
	j.GramsEstimate = opts.GramsEstimate
	j.Colors = opts.Colors
	j.RequiredTags = opts.RequiredTags
	j.DueAt = opts.DueAt
	j.PrinterOverride = opts.PrinterOverride
	j.OrderItemRef = opts.OrderItemRef

	if err := s.jobs.Create(j); err != nil {
		return nil, err
	}

	s.events.publish(Event{Type: EventJobSubmitted, JobID: j.ID, To: initial})
	s.log.Infow("Job submitted",
		logger.FieldJobID, j.ID,
		logger.FieldPrincipal, submitter.ID,
		logger.FieldStatus, string(initial))

	if opts.ScheduleNow && initial == job.StatusPending {
		if _, err := s.RunScheduling(ctx); err != nil {
			s.log.Warnw("Post-submit scheduling run failed",
				logger.FieldJobID, j.ID,
				logger.FieldError, err)
		}
	}
	return j, nil
}

// ApproveJob moves a submitted job into the queue
func (s *Service) ApproveJob(ctx context.Context, reviewer approval.Principal, jobID string) (*job.Job, error) {
	unlock := s.jobLocks.acquire(jobID)
	defer unlock()

	j, err := s.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	from := j.Status
	if err := s.gate.Approve(j, reviewer); err != nil {
		return nil, err
	}
	if err := s.jobs.Update(j); err != nil {
		return nil, err
	}
	s.events.publish(Event{Type: EventJobApproved, JobID: j.ID, From: from, To: j.Status})
	return j, nil
}

// RejectJob turns a submitted job away with a reason
func (s *Service) RejectJob(ctx context.Context, reviewer approval.Principal, jobID, reason string) (*job.Job, error) {
	unlock := s.jobLocks.acquire(jobID)
	defer unlock()

	j, err := s.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	from := j.Status
	if err := s.gate.Reject(j, reviewer, reason); err != nil {
		return nil, err
	}
	if err := s.jobs.Update(j); err != nil {
		return nil, err
	}
	s.events.publish(Event{Type: EventJobRejected, JobID: j.ID, From: from, To: j.Status, Detail: reason})
	return j, nil
}

// ResubmitJob returns a rejected job to the approval gate
func (s *Service) ResubmitJob(ctx context.Context, p approval.Principal, jobID string) (*job.Job, error) {
	unlock := s.jobLocks.acquire(jobID)
	defer unlock()

	j, err := s.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	from := j.Status
	if err := s.gate.Resubmit(j, p); err != nil {
		return nil, err
	}
	if err := s.jobs.Update(j); err != nil {
		return nil, err
	}
	s.events.publish(Event{Type: EventJobResubmitted, JobID: j.ID, From: from, To: j.Status})
	return j, nil
}

// PlanScheduling runs the planner without committing anything
func (s *Service) PlanScheduling(ctx context.Context) (*sched.Plan, error) {
	return s.engine.Run(ctx)
}

// RunScheduling plans and commits assignments for the pending backlog
func (s *Service) RunScheduling(ctx context.Context) (*sched.ApplyResult, error) {
	result, err := s.engine.RunAndApply(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range result.Scheduled {
		s.events.publish(Event{Type: EventJobScheduled, JobID: id,
			From: job.StatusPending, To: job.StatusScheduled})
	}
	s.events.publish(Event{Type: EventRunCompleted, Detail: result.RunID})
	return result, nil
}

// ReorderQueue replaces the manual ordering of the pending queue. The ids
// must be an exact permutation of the current pending jobs.
func (s *Service) ReorderQueue(ctx context.Context, ordered []string) error {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	backlog, err := s.jobs.ListBacklog()
	if err != nil {
		return err
	}
	reordered, err := queue.ApplyReorder(backlog, ordered)
	if err != nil {
		return err
	}
	for _, j := range reordered {
		if err := s.jobs.Update(j); err != nil {
			return errors.Wrapf(err, "failed to persist position of job %s", j.ID)
		}
	}
	s.events.publish(Event{Type: EventQueueReordered})
	s.log.Infow("Queue reordered", logger.FieldCount, len(reordered))
	return nil
}

// StartJob dispatches a scheduled job to its printer. The job lock covers
// only the validation read; the hardware calls run outside any lock, and
// the store's version check guards the dispatcher's commit against state
// that moved in the meantime.
func (s *Service) StartJob(ctx context.Context, jobID string) (*job.Job, error) {
	unlock := s.jobLocks.acquire(jobID)
	j, err := s.jobs.Get(jobID)
	if err != nil {
		unlock()
		return nil, err
	}
	if j.Status != job.StatusScheduled {
		unlock()
		return nil, errors.NewInvalidTransition(string(j.Status), string(job.StatusPrinting))
	}
	printerID := j.PrinterID
	unlock()

	started, err := s.dispatcher.Start(ctx, jobID)
	if err != nil {
		if stage, ok := dispatch.FailedStage(err); ok && stage == dispatch.StageStart {
			s.events.publish(Event{
				Type:      EventJobFailed,
				JobID:     jobID,
				PrinterID: printerID,
				From:      job.StatusScheduled,
				To:        job.StatusFailed,
				Detail:    dispatch.FailureReasonStartFailed,
			})
		}
		return nil, err
	}
	s.events.publish(Event{Type: EventJobStarted, JobID: started.ID, PrinterID: started.PrinterID,
		From: job.StatusScheduled, To: job.StatusPrinting})
	return started, nil
}

// CompleteJob finishes a printing job and settles its quota charge with
// the actual print duration.
func (s *Service) CompleteJob(ctx context.Context, jobID string) (*job.Job, error) {
	unlock := s.jobLocks.acquire(jobID)
	defer unlock()

	j, err := s.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	if err := j.Complete(); err != nil {
		return nil, err
	}
	if err := s.jobs.Update(j); err != nil {
		return nil, err
	}

	if j.SubmittedBy != "" {
		grams := 0.0
		if j.GramsEstimate != nil {
			grams = *j.GramsEstimate
		}
		hours := j.EstimatedHours(s.config().Scheduler.DefaultDurationHours)
		if j.ActualStart != nil && j.ActualEnd != nil {
			hours = float64(util.MinutesBetween(*j.ActualStart, *j.ActualEnd)) / 60.0
		}
		if err := s.enforcer.Finalize(j.ID, grams, hours); err != nil && !errors.IsNotFound(err) {
			s.log.Errorw("Failed to finalize quota",
				logger.FieldJobID, j.ID,
				logger.FieldError, err)
		}
	}

	s.events.publish(Event{Type: EventJobCompleted, JobID: j.ID, PrinterID: j.PrinterID,
		From: job.StatusPrinting, To: job.StatusCompleted})
	return j, nil
}

// CancelJob aborts a pending, scheduled, or printing job and refunds its
// quota reservation.
func (s *Service) CancelJob(ctx context.Context, jobID, reason string) (*job.Job, error) {
	unlock := s.jobLocks.acquire(jobID)
	defer unlock()

	j, err := s.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	from := j.Status
	if err := j.Cancel(reason); err != nil {
		return nil, err
	}
	if err := s.jobs.Update(j); err != nil {
		return nil, err
	}
	if err := s.enforcer.Release(j.ID); err != nil {
		s.log.Errorw("Failed to release quota",
			logger.FieldJobID, j.ID,
			logger.FieldError, err)
	}
	s.events.publish(Event{Type: EventJobFailed, JobID: j.ID, From: from, To: j.Status, Detail: reason})
	return j, nil
}

// MarkFailed cancels a job and records the failure reason and notes in one
// step.
func (s *Service) MarkFailed(ctx context.Context, jobID, reason, notes string) (*job.Job, error) {
	j, err := s.CancelJob(ctx, jobID, reason)
	if err != nil {
		return nil, err
	}
	if notes == "" {
		return j, nil
	}
	return s.SetFailureReason(ctx, jobID, reason, notes)
}

// SetFailureReason attaches or replaces the failure reason on a failed job
func (s *Service) SetFailureReason(ctx context.Context, jobID, reason, notes string) (*job.Job, error) {
	unlock := s.jobLocks.acquire(jobID)
	defer unlock()

	j, err := s.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	if err := j.SetFailureReason(reason, notes); err != nil {
		return nil, err
	}
	if err := s.jobs.Update(j); err != nil {
		return nil, err
	}
	return j, nil
}

// RepeatJob clones a failed, pending, or scheduled job into a fresh one
// entering the lifecycle at the gate-decided status for the principal.
func (s *Service) RepeatJob(ctx context.Context, p approval.Principal, jobID string) (*job.Job, error) {
	j, err := s.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	clone, err := j.CloneForRepeat(s.gate.InitialStatus(p))
	if err != nil {
		return nil, err
	}
	clone.SubmittedBy = p.ID
	if err := s.jobs.Create(clone); err != nil {
		return nil, err
	}
	s.events.publish(Event{Type: EventJobSubmitted, JobID: clone.ID, To: clone.Status,
		Detail: "repeat of " + jobID})
	return clone, nil
}

// ReprioritizeJob changes a job's priority without touching manual queue
// positions: jobs ordered by hand keep their relative order until the next
// explicit reorder.
func (s *Service) ReprioritizeJob(ctx context.Context, jobID string, priority int) (*job.Job, error) {
	if priority < 1 || priority > 5 {
		return nil, errors.Newf("priority must be 1..5, got %d", priority)
	}
	unlock := s.jobLocks.acquire(jobID)
	defer unlock()

	j, err := s.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	if j.Status.IsTerminal() {
		return nil, errors.Wrapf(errors.ErrInvalidTransition,
			"cannot reprioritize a %s job", j.Status)
	}
	j.Priority = priority
	if err := s.jobs.Update(j); err != nil {
		return nil, err
	}
	return j, nil
}

// RescheduleJob steps a job back one stage so the next scheduling run
// places it afresh: printing reverts to scheduled, scheduled returns to
// pending with its slot released and its quota reservation refunded.
func (s *Service) RescheduleJob(ctx context.Context, jobID string) (*job.Job, error) {
	unlock := s.jobLocks.acquire(jobID)
	defer unlock()

	j, err := s.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	from := j.Status
	if err := j.Unassign(); err != nil {
		return nil, err
	}
	if err := s.jobs.Update(j); err != nil {
		return nil, err
	}
	if from == job.StatusScheduled {
		if err := s.enforcer.Release(j.ID); err != nil {
			s.log.Errorw("Failed to release quota",
				logger.FieldJobID, j.ID,
				logger.FieldError, err)
		}
	}
	return j, nil
}

// DeleteJob removes a job entirely and refunds any quota it still holds
func (s *Service) DeleteJob(ctx context.Context, jobID string) error {
	unlock := s.jobLocks.acquire(jobID)
	defer unlock()

	if err := s.jobs.Delete(jobID); err != nil {
		return err
	}
	if err := s.enforcer.Release(jobID); err != nil {
		s.log.Errorw("Failed to release quota",
			logger.FieldJobID, jobID,
			logger.FieldError, err)
	}
	return nil
}

// BulkAction names an operation applied to many jobs at once
type BulkAction string

const (
	BulkApprove      BulkAction = "approve"
	BulkReject       BulkAction = "reject"
	BulkCancel       BulkAction = "cancel"
	BulkReprioritize BulkAction = "reprioritize"
	BulkReschedule   BulkAction = "reschedule"
	BulkDelete       BulkAction = "delete"
)

// BulkOptions carries the per-action arguments of a bulk operation
type BulkOptions struct {
	Reason   string // required for reject, optional for cancel
	Priority int    // target priority for reprioritize
}

// BulkResult reports the outcome for one job in a bulk operation
type BulkResult struct {
	JobID string
	Err   error
}

// BulkUpdate applies an action to each job independently: one failure
// never aborts the rest.
func (s *Service) BulkUpdate(ctx context.Context, p approval.Principal, action BulkAction, jobIDs []string, opts BulkOptions) []BulkResult {
	results := make([]BulkResult, 0, len(jobIDs))
	for _, id := range jobIDs {
		var err error
		switch action {
		case BulkApprove:
			_, err = s.ApproveJob(ctx, p, id)
		case BulkReject:
			_, err = s.RejectJob(ctx, p, id, opts.Reason)
		case BulkCancel:
			_, err = s.CancelJob(ctx, id, opts.Reason)
		case BulkReprioritize:
			_, err = s.ReprioritizeJob(ctx, id, opts.Priority)
		case BulkReschedule:
			_, err = s.RescheduleJob(ctx, id)
		case BulkDelete:
			err = s.DeleteJob(ctx, id)
		default:
			err = errors.Newf("unknown bulk action: %s", action)
		}
		results = append(results, BulkResult{JobID: id, Err: err})
	}
	return results
}

// CreatePreset saves a job template
func (s *Service) CreatePreset(ctx context.Context, p *preset.Preset) error {
	return s.presets.Create(p)
}

// DeletePreset removes a template; existing jobs created from it are
// unaffected.
func (s *Service) DeletePreset(ctx context.Context, presetID string) error {
	return s.presets.Delete(presetID)
}

// ScheduleFromPreset submits a job instantiated from the named preset
func (s *Service) ScheduleFromPreset(ctx context.Context, p approval.Principal, presetName string, scheduleNow bool) (*job.Job, error) {
	tmpl, err := s.presets.GetByName(presetName)
	if err != nil {
		return nil, err
	}
	j, err := tmpl.NewJob(s.gate.InitialStatus(p), p.ID)
	if err != nil {
		return nil, err
	}
	if err := s.jobs.Create(j); err != nil {
		return nil, err
	}
	s.events.publish(Event{Type: EventJobSubmitted, JobID: j.ID, To: j.Status,
		Detail: "preset " + presetName})

	if scheduleNow && j.Status == job.StatusPending {
		if _, err := s.RunScheduling(ctx); err != nil {
			s.log.Warnw("Post-preset scheduling run failed",
				logger.FieldJobID, j.ID,
				logger.FieldError, err)
		}
	}
	return j, nil
}

// Cleanup deletes terminal jobs past the configured retention
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	retention := s.config().Scheduler.RetentionDays
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retention)
	n, err := s.jobs.DeleteTerminalBefore(cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Infow("Terminal jobs cleaned up", logger.FieldCount, n)
	}
	return n, nil
}

// Stats summarizes the fleet state
type Stats struct {
	JobsByStatus map[job.Status]int `json:"jobs_by_status"`
	Printers     int                `json:"printers"`
	ActiveIdle   int                `json:"active_printers"`
}

// GetStats returns current queue and fleet counters
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	counts, err := s.jobs.CountByStatus()
	if err != nil {
		return nil, err
	}
	all, err := s.printers.List()
	if err != nil {
		return nil, err
	}
	active := 0
	for _, p := range all {
		if p.Active {
			active++
		}
	}
	return &Stats{JobsByStatus: counts, Printers: len(all), ActiveIdle: active}, nil
}
