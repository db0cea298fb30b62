// Package dispatch hands scheduled jobs to physical printers in two
// stages: file transfer, then print start. The two stages fail
// differently: a failed transfer leaves the job scheduled for retry, a
// failed start marks the job failed.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spoolworks/printfarm/errors"
	"github.com/spoolworks/printfarm/job"
	"github.com/spoolworks/printfarm/logger"
	"github.com/spoolworks/printfarm/quota"
)

// FailureReasonStartFailed is recorded on jobs whose print start failed
// after a successful transfer.
const FailureReasonStartFailed = "dispatch_start_failed"

// Stage identifies which dispatch phase an error came from
type Stage string

const (
	StageTransfer Stage = "transfer"
	StageStart    Stage = "start"
)

// StageError wraps a printer client failure with the stage it occurred in.
// It unwraps to the dispatch sentinel.
type StageError struct {
	Stage     Stage
	PrinterID string
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("dispatch %s failed on printer %s: %v", e.Stage, e.PrinterID, e.Err)
}

func (e *StageError) Unwrap() error {
	return errors.ErrDispatchFailed
}

// FailedStage extracts the stage from a dispatch error, if present
func FailedStage(err error) (Stage, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage, true
	}
	return "", false
}

// Client talks to a physical printer. Implementations wrap whatever
// protocol the printer speaks; both calls must respect the context
// deadline.
type Client interface {
	// Transfer uploads the job's model to the printer
	Transfer(ctx context.Context, printerID string, j *job.Job) error
	// Start begins the print of a previously transferred job
	Start(ctx context.Context, printerID, jobID string) error
}

// Options bounds dispatch timing
type Options struct {
	TransferTimeout time.Duration
	StartTimeout    time.Duration
	StartsPerMinute int // per-printer start rate; 0 disables limiting
}

// Coordinator drives the two-stage dispatch of scheduled jobs
type Coordinator struct {
	jobs   *job.Store
	quota  *quota.Enforcer
	client Client
	opts   Options

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // keyed by printer id

	log *zap.SugaredLogger
}

// NewCoordinator creates a dispatch coordinator
func NewCoordinator(jobs *job.Store, enforcer *quota.Enforcer, client Client, opts Options) *Coordinator {
	return &Coordinator{
		jobs:     jobs,
		quota:    enforcer,
		client:   client,
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
		log:      logger.Named("dispatch"),
	}
}

func (c *Coordinator) limiterFor(printerID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	limiter, ok := c.limiters[printerID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(c.opts.StartsPerMinute)/60.0), 1)
		c.limiters[printerID] = limiter
	}
	return limiter
}

// Start dispatches a scheduled job to its printer. On transfer failure the
// job stays scheduled and the error reports the transfer stage. On start
// failure the job is marked failed with the start-failed reason, its slot
// and quota reservation released, and the error reports the start stage.
func (c *Coordinator) Start(ctx context.Context, jobID string) (*job.Job, error) {
	j, err := c.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != job.StatusScheduled {
		return nil, errors.NewInvalidTransition(string(j.Status), string(job.StatusPrinting))
	}

	if c.opts.StartsPerMinute > 0 {
		if err := c.limiterFor(j.PrinterID).Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limit wait cancelled")
		}
	}

	if err := c.transfer(ctx, j); err != nil {
		// job untouched: still scheduled, eligible for retry
		return nil, err
	}

	if err := c.startPrint(ctx, j); err != nil {
		if failErr := c.markStartFailed(j); failErr != nil {
			c.log.Errorw("Failed to record dispatch failure",
				logger.FieldJobID, j.ID,
				logger.FieldError, failErr)
		}
		return nil, err
	}

	if err := j.StartPrinting(); err != nil {
		return nil, err
	}
	if err := c.jobs.Update(j); err != nil {
		return nil, err
	}

	c.log.Infow("Job printing",
		logger.FieldJobID, j.ID,
		logger.FieldPrinterID, j.PrinterID)
	return j, nil
}

func (c *Coordinator) transfer(ctx context.Context, j *job.Job) error {
	transferCtx, cancel := context.WithTimeout(ctx, c.opts.TransferTimeout)
	defer cancel()

	if err := c.client.Transfer(transferCtx, j.PrinterID, j); err != nil {
		c.log.Warnw("Transfer failed, job remains scheduled",
			logger.FieldJobID, j.ID,
			logger.FieldPrinterID, j.PrinterID,
			logger.FieldError, err)
		return &StageError{Stage: StageTransfer, PrinterID: j.PrinterID, Err: err}
	}
	return nil
}

func (c *Coordinator) startPrint(ctx context.Context, j *job.Job) error {
	startCtx, cancel := context.WithTimeout(ctx, c.opts.StartTimeout)
	defer cancel()

	if err := c.client.Start(startCtx, j.PrinterID, j.ID); err != nil {
		c.log.Errorw("Start failed after transfer",
			logger.FieldJobID, j.ID,
			logger.FieldPrinterID, j.PrinterID,
			logger.FieldError, err)
		return &StageError{Stage: StageStart, PrinterID: j.PrinterID, Err: err}
	}
	return nil
}

// markStartFailed moves the job to failed and releases everything it held
func (c *Coordinator) markStartFailed(j *job.Job) error {
	if err := j.Cancel(FailureReasonStartFailed); err != nil {
		return err
	}
	if err := c.jobs.Update(j); err != nil {
		return err
	}
	if c.quota != nil {
		if err := c.quota.Release(j.ID); err != nil {
			return err
		}
	}
	return nil
}
