package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonandersen/tda/internal/logging"
	"github.com/jonandersen/tda/internal/metrics"
)

const (
	// FallbackDelay is used after a login or an access token renewal, and
	// after a failed tick. It sits inside the access token lifetime.
	FallbackDelay = 1680 * time.Second

	// ExpiryLeadTime is how long before access token expiry a tick is
	// scheduled when the delay is computed.
	ExpiryLeadTime = 120 * time.Second

	minDelay = time.Second
)

// NextDelay returns how long to wait before the next renewal tick after a
// tick that acted on status and left rec behind.
func NextDelay(status Status, rec TokenRecord, now time.Time) time.Duration {
	if status != StatusOK && status != StatusRefreshRenewal {
		return FallbackDelay
	}
	if !expirySet(rec.AccessTokenExpiry) {
		return FallbackDelay
	}
	d := time.Duration(rec.AccessTokenExpiry-now.Unix())*time.Second - ExpiryLeadTime
	if d < minDelay {
		return minDelay
	}
	return d
}

// schedule is the scheduler's state between ticks. After a login the next
// two waits use FallbackDelay before switching to NextDelay.
type schedule struct {
	firstRun bool
}

func (s *schedule) advance(status Status, rec TokenRecord, now time.Time) time.Duration {
	if status.NeedsReauth() {
		s.firstRun = true
		return FallbackDelay
	}
	if s.firstRun {
		s.firstRun = false
		return FallbackDelay
	}
	return NextDelay(status, rec, now)
}

// renewer is the part of Manager the scheduler drives.
type renewer interface {
	Renew(ctx context.Context) (Status, error)
	Snapshot() TokenRecord
}

// Scheduler renews credentials in the background. A single goroutine runs
// ticks one after another, so ticks never overlap.
type Scheduler struct {
	renewer renewer
	clock   Clock
	logger  logging.Logger
	metrics *metrics.Recorder

	// OnError is called with every failed tick.
	OnError func(error)

	wait func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler returns a stopped scheduler for m.
func NewScheduler(m *Manager) *Scheduler {
	return &Scheduler{
		renewer: m,
		clock:   m.opts.Clock,
		logger:  m.opts.Logger,
		metrics: m.opts.Metrics,
		wait:    sleep,
	}
}

// Start runs the scheduler in a goroutine. initial is the status returned
// by Manager.Init. Once ctx is done the scheduler may be started again.
func (s *Scheduler) Start(ctx context.Context, initial Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return errors.New("scheduler already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		s.Run(ctx, initial)
		cancel()
		s.release(done)
	}()
	return nil
}

// release forgets the loop that owns done, unless Stop already has.
func (s *Scheduler) release(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == done {
		s.cancel, s.done = nil, nil
	}
}

// Stop cancels the scheduler and waits for its goroutine to exit. A tick in
// progress sees its context cancelled. Stop is safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context, initial Status) {
	state := &schedule{}
	delay := state.advance(initial, s.renewer.Snapshot(), s.clock.Now())

	for {
		s.metrics.SetNextDelay(delay)
		s.logger.Debug(ctx, "next renewal scheduled", "delay", delay.String())

		if err := s.wait(ctx, delay); err != nil {
			s.logger.Debug(ctx, "renewal scheduler stopped")
			return
		}
		delay = s.tick(ctx, state)
	}
}

func (s *Scheduler) tick(ctx context.Context, state *schedule) time.Duration {
	logger := s.logger.With("tick_id", uuid.NewString())

	status, err := s.renewer.Renew(ctx)
	s.metrics.ObserveTick(status.String(), err)
	if err != nil {
		logger.Error(ctx, "renewal tick failed", "status", status.String(), "error", err)
		if s.OnError != nil {
			s.OnError(err)
		}
		return FallbackDelay
	}

	logger.Info(ctx, "renewal tick complete", "status", status.String())
	return state.advance(status, s.renewer.Snapshot(), s.clock.Now())
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
