package farm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spoolworks/printfarm/logger"
)

// Ticker periodically runs scheduling so backlog jobs get placed without
// an operator triggering runs by hand. It also sweeps expired terminal
// jobs once per day's worth of ticks.
type Ticker struct {
	service  *Service
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	ticksPerSweep int
	log           *zap.SugaredLogger
}

// NewTicker creates a scheduling ticker. The interval comes from the
// scheduler configuration.
func NewTicker(service *Service, interval time.Duration) *Ticker {
	ticksPerSweep := int(24 * time.Hour / interval)
	if ticksPerSweep < 1 {
		ticksPerSweep = 1
	}
	return &Ticker{
		service:       service,
		interval:      interval,
		ticksPerSweep: ticksPerSweep,
		log:           logger.Named("ticker"),
	}
}

// Start launches the background loop. Calling Start on a running ticker is
// a no-op.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	t.running = true

	go t.loop(ctx)
	t.log.Infow("Scheduling ticker started", "interval", t.interval.String())
}

// Stop halts the loop and waits for the in-flight run to finish
func (t *Ticker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.cancel()
	done := t.done
	t.running = false
	t.mu.Unlock()

	<-done
	t.log.Infow("Scheduling ticker stopped")
}

func (t *Ticker) loop(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
			ticks++
			if ticks%t.ticksPerSweep == 0 {
				if _, err := t.service.Cleanup(ctx); err != nil {
					t.log.Errorw("Cleanup sweep failed", logger.FieldError, err)
				}
			}
		}
	}
}

func (t *Ticker) tick(ctx context.Context) {
	result, err := t.service.RunScheduling(ctx)
	if err != nil {
		t.log.Errorw("Scheduling run failed", logger.FieldError, err)
		return
	}
	if len(result.Scheduled) > 0 {
		t.log.Infow("Scheduling run placed jobs",
			logger.FieldRunID, result.RunID,
			logger.FieldCount, len(result.Scheduled))
	}
}
