package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/jcallahan/pipedeck/internal/pipeline"
)

// Logger records scheduler lifecycle events. It matches logbook.Logbook's
// Info signature.
type Logger interface {
	Info(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any) {}

// Scheduler drives a pipeline controller with one periodic tick goroutine. It
// is the only writer of pipeline state after Start: control operations funnel
// run-state changes through it, and pausing or stopping takes effect before
// the next tick because Advance gates on the run state itself.
type Scheduler struct {
	controller *pipeline.Controller
	interval   time.Duration
	logger     Logger

	mu      sync.Mutex
	started bool
	quit    chan struct{}
	done    chan struct{}
}

// Option customizes scheduler construction.
type Option func(*Scheduler)

// WithLogger attaches a lifecycle logger.
func WithLogger(l Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New wires a scheduler to a controller. A non-positive tick interval is a
// construction failure: the engine refuses to start rather than run with
// undefined cadence.
func New(controller *pipeline.Controller, interval time.Duration, opts ...Option) (*Scheduler, error) {
	if controller == nil {
		return nil, fmt.Errorf("scheduler: pipeline controller is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler: tick interval %v must be positive", interval)
	}
	s := &Scheduler{
		controller: controller,
		interval:   interval,
		logger:     nopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Interval reports the configured tick cadence.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start switches the run into the running state and launches the tick loop.
// Calling Start on an already started scheduler only re-applies the run state;
// no duplicate timer is created.
func (s *Scheduler) Start() error {
	if err := s.controller.SetRunState(pipeline.RunRunning); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.quit, s.done)
	s.logger.Info("scheduler: started, tick every %v", s.interval)
	return nil
}

// Pause suspends tick effects without tearing down the timer. Pausing an
// already paused run is a no-op.
func (s *Scheduler) Pause() error {
	if err := s.controller.SetRunState(pipeline.RunPaused); err != nil {
		return err
	}
	s.logger.Info("scheduler: paused")
	return nil
}

// Resume re-enters the running state. The controller performs its resume
// reset, so a stage becomes visibly active before the next natural tick.
func (s *Scheduler) Resume() error {
	if err := s.controller.SetRunState(pipeline.RunRunning); err != nil {
		return err
	}
	s.logger.Info("scheduler: resumed")
	return nil
}

// Stop marks the run stopped and terminates the tick goroutine. Stopping an
// already stopped scheduler is a no-op.
func (s *Scheduler) Stop() error {
	if err := s.controller.SetRunState(pipeline.RunStopped); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	quit, done := s.quit, s.done
	s.quit, s.done = nil, nil
	s.mu.Unlock()
	close(quit)
	<-done
	s.logger.Info("scheduler: stopped")
	return nil
}

// Running reports whether the tick goroutine is alive. Note that a paused run
// keeps the goroutine alive; only Stop tears it down.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Scheduler) loop(quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			s.controller.Advance()
		}
	}
}
