package sync

import (
	"context"
	"sync"
	"time"

	"github.com/inkwellhq/inkwell-sync/internal/common"
	"github.com/inkwellhq/inkwell-sync/internal/logging"
)

const (
	reconnectBaseDelay   = time.Second
	reconnectCapDelay    = 60 * time.Second
	reconnectMaxAttempts = 10
)

// RetryDelay returns the backoff before reconnect attempt number attempt
// (zero-based): min(1s * 2^attempt, 60s).
func RetryDelay(attempt int) time.Duration {
	d := reconnectBaseDelay << uint(attempt)
	if d <= 0 || d > reconnectCapDelay {
		return reconnectCapDelay
	}
	return d
}

// Supervisor recovers the realtime channel after unexpected closures with
// capped exponential backoff, and independently polls connectivity on a fixed
// period. The two signals are deliberately decoupled: a channel can be
// silently dead while the network is fine, and vice versa.
type Supervisor struct {
	mu       sync.Mutex
	attempts int
	timer    *time.Timer
	online   bool

	dial     func(ctx context.Context) error
	probe    func(ctx context.Context) error
	onOnline func(ctx context.Context)

	probeEvery time.Duration
	notifier   Notifier
	log        logging.Logger
}

// NewSupervisor wires a supervisor. dial re-establishes the realtime channel,
// probe checks plain network reachability, and onOnline fires on every
// offline-to-online probe transition (the full-sync trigger).
func NewSupervisor(
	dial func(ctx context.Context) error,
	probe func(ctx context.Context) error,
	onOnline func(ctx context.Context),
	probeEvery time.Duration,
	notifier Notifier,
	log logging.Logger,
) *Supervisor {
	return &Supervisor{
		dial:       dial,
		probe:      probe,
		onOnline:   onOnline,
		probeEvery: probeEvery,
		notifier:   notifier,
		log:        log.With("module", "reconnect"),
	}
}

// OnChannelClosed schedules one reconnect attempt, unless a retry is already
// pending or the attempt ceiling is reached. At the ceiling automatic
// recovery stops; the status stays offline until a manual Reconnect.
func (s *Supervisor) OnChannelClosed(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		return
	}
	if s.attempts >= reconnectMaxAttempts {
		s.log.Error(ctx, "manual reconnect required",
			"error", common.ErrRetryCeiling, "attempts", s.attempts)
		s.notifier.SetStatus(StatusOffline)
		return
	}

	delay := RetryDelay(s.attempts)
	s.attempts++
	s.log.Warn(ctx, "realtime channel closed, scheduling reconnect",
		"attempt", s.attempts, "delay", delay)

	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.timer = nil
		s.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if err := s.dial(ctx); err != nil {
			s.log.Warn(ctx, "reconnect attempt failed", "error", err)
			s.OnChannelClosed(ctx)
		}
	})
}

// OnChannelEstablished cancels any pending retry and resets the attempt
// counter. Called after every successful channel handshake.
func (s *Supervisor) OnChannelEstablished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.attempts = 0
}

// Reset clears the attempt ceiling for a manual reconnect.
func (s *Supervisor) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.attempts = 0
}

// Attempts reports the current consecutive failure count.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// RunProbe polls connectivity until ctx is cancelled. An offline-to-online
// transition triggers onOnline (a full sync); transitions in either direction
// flip the surfaced status.
func (s *Supervisor) RunProbe(ctx context.Context) {
	ticker := time.NewTicker(s.probeEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probeOnce(ctx)
		}
	}
}

func (s *Supervisor) probeOnce(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := s.probe(probeCtx)
	cancel()

	online := err == nil

	s.mu.Lock()
	wasOnline := s.online
	s.online = online
	s.mu.Unlock()

	switch {
	case online && !wasOnline:
		s.log.Info(ctx, "connectivity restored")
		s.notifier.SetStatus(StatusOnline)
		s.onOnline(ctx)
	case !online && wasOnline:
		s.log.Warn(ctx, "connectivity lost", "error", err)
		s.notifier.SetStatus(StatusOffline)
	}
}
