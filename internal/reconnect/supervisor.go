package reconnect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/1ureka/drawsync/internal/util"
)

// ErrExhausted is wrapped by the error passed to Target.Fail when every
// attempt failed.
var ErrExhausted = errors.New("reconnect: attempts exhausted")

// Target is the connection a Supervisor keeps alive.
type Target interface {
	IsHealthy() bool
	Dial(ctx context.Context) error
	BeginReconnect()
	Fail(err error)
}

// Config tunes a Supervisor. Hooks may be nil.
type Config struct {
	Backoff     Backoff
	MaxAttempts int
	DialTimeout time.Duration

	OnAttempt   func(n int, delay time.Duration)
	OnRecovered func()
	OnExhausted func(err error)
}

// Supervisor is the Idle/Retrying state machine for one Target.
type Supervisor struct {
	name   string
	target Target
	cfg    Config

	ctx  context.Context
	stop context.CancelFunc

	mu       sync.Mutex
	retrying bool
	attempts int
}

// New returns an idle supervisor. name only labels log lines.
func New(name string, target Target, cfg Config) *Supervisor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Supervisor{
		name:   name,
		target: target,
		cfg:    cfg,
		ctx:    ctx,
		stop:   stop,
	}
}

// Trigger starts a retry loop. It returns false, doing nothing, when a
// loop is already running, the supervisor was stopped, or the target is
// healthy.
func (s *Supervisor) Trigger() bool {
	s.mu.Lock()
	if s.retrying || s.ctx.Err() != nil || s.target.IsHealthy() {
		s.mu.Unlock()
		return false
	}
	s.retrying = true
	s.attempts = 0
	s.mu.Unlock()

	util.LogInfo("[%s] connection lost, reconnecting", s.name)
	s.target.BeginReconnect()
	go s.loop()
	return true
}

// Retrying reports whether a loop is running.
func (s *Supervisor) Retrying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retrying
}

// Attempts returns the attempt count of the current or last loop. It is
// zero after a recovery.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Stop cancels any pending wait or dial and disables further triggers.
func (s *Supervisor) Stop() {
	s.stop()
}

func (s *Supervisor) loop() {
	for {
		if s.ctx.Err() != nil {
			s.setIdle(false)
			return
		}
		if s.target.IsHealthy() {
			s.recovered()
			return
		}

		s.mu.Lock()
		if s.attempts >= s.cfg.MaxAttempts {
			n := s.attempts
			s.mu.Unlock()
			s.exhausted(n)
			return
		}
		s.attempts++
		n := s.attempts
		s.mu.Unlock()

		delay := s.cfg.Backoff.Delay(n)
		util.LogDebug("[%s] reconnect attempt %d/%d in %s", s.name, n, s.cfg.MaxAttempts, delay)
		if s.cfg.OnAttempt != nil {
			s.cfg.OnAttempt(n, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-s.ctx.Done():
			timer.Stop()
			s.setIdle(false)
			return
		}

		if err := s.dial(); err != nil {
			util.LogWarning("[%s] reconnect attempt %d/%d failed: %v", s.name, n, s.cfg.MaxAttempts, err)
		}
	}
}

func (s *Supervisor) dial() error {
	ctx := s.ctx
	if s.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DialTimeout)
		defer cancel()
	}
	return s.target.Dial(ctx)
}

func (s *Supervisor) setIdle(resetAttempts bool) {
	s.mu.Lock()
	s.retrying = false
	if resetAttempts {
		s.attempts = 0
	}
	s.mu.Unlock()
}

func (s *Supervisor) recovered() {
	s.setIdle(true)
	util.Stats.AddReconnect()
	util.LogSuccess("[%s] reconnected", s.name)
	if s.cfg.OnRecovered != nil {
		s.cfg.OnRecovered()
	}

	// A drop that landed while the loop was finishing was ignored by Trigger.
	if !s.target.IsHealthy() {
		s.Trigger()
	}
}

func (s *Supervisor) exhausted(n int) {
	s.setIdle(false)
	util.Stats.AddReconnectFailure()

	err := fmt.Errorf("%w after %d attempt(s)", ErrExhausted, n)
	util.LogError("[%s] %v", s.name, err)
	s.target.Fail(err)
	if s.cfg.OnExhausted != nil {
		s.cfg.OnExhausted(err)
	}
}
