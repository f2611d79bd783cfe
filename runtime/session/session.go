// Package session drives one compiled plan's execution for the lifetime of
// a single caller-visible stream: input in, output out, cooperative cancel,
// and a lifecycle state visible to callers and metrics alike.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AltairaLabs/remotemedia/runtime/data"
	"github.com/AltairaLabs/remotemedia/runtime/events"
	"github.com/AltairaLabs/remotemedia/runtime/lifecycle"
	"github.com/AltairaLabs/remotemedia/runtime/node"
	"github.com/AltairaLabs/remotemedia/runtime/scheduler"
	"github.com/AltairaLabs/remotemedia/runtime/statestore"
)

// Config configures a new Session.
type Config struct {
	// ID identifies this session. A random UUID is generated if empty.
	ID string
	// Plan is the compiled manifest this session executes.
	Plan *scheduler.Plan
	// Registry resolves node types into fresh instances, one per session.
	Registry *node.Registry
	// Store is the session state store passed through to stateful nodes.
	Store statestore.Store
	// Timeout bounds the session's total lifetime. Zero means no deadline.
	Timeout time.Duration
	// InputCapacity/OutputCapacity size the session's external channels.
	// Zero means scheduler.DefaultChannelCapacity.
	InputCapacity  int
	OutputCapacity int
	// SchedulerOptions is passed through to scheduler.Run unchanged.
	SchedulerOptions scheduler.Options
	// Events, if non-nil, receives this session's started/completed/failed/
	// cancelled lifecycle events, in addition to whatever
	// SchedulerOptions.Events is already set to receive node-level events.
	Events *events.EventBus
}

// Session drives one session-scoped execution of a compiled Plan.
type Session struct {
	id    string
	store statestore.Store

	// mu guards closed/cancelled/runErr/machine, and is held as a reader
	// across the blocking send in SendInput so Close cannot close s.in
	// while a send to it is in flight.
	mu        sync.RWMutex
	machine   *lifecycle.Machine
	closed    bool
	cancelled bool

	in     chan data.Envelope
	out    chan data.Envelope
	done   chan struct{}
	runErr error

	cancel    context.CancelFunc
	events    *events.EventBus
	startedAt time.Time
}

// New compiles nothing itself — cfg.Plan must already be compiled — and
// starts the session's execution goroutine immediately. Callers read
// responses from Output and push input via SendInput until they call
// Close.
func New(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Plan == nil {
		return nil, fmt.Errorf("session: plan is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("session: registry is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("session: state store is required")
	}
	id := cfg.ID
	if id == "" {
		id = uuid.New().String()
	}
	inCap := cfg.InputCapacity
	if inCap <= 0 {
		inCap = scheduler.DefaultChannelCapacity
	}
	outCap := cfg.OutputCapacity
	if outCap <= 0 {
		outCap = scheduler.DefaultChannelCapacity
	}

	runCtx, cancel := context.WithCancel(ctx)
	if cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
	}

	s := &Session{
		id:        id,
		store:     cfg.Store,
		machine:   lifecycle.New(),
		in:        make(chan data.Envelope, inCap),
		out:       make(chan data.Envelope, outCap),
		done:      make(chan struct{}),
		cancel:    cancel,
		events:    cfg.Events,
		startedAt: time.Now(),
	}

	// Node Init happens inside scheduler.Run before any chunk is processed;
	// the session has no finer-grained signal for "every node finished
	// Init", so it advances straight to Running once Run is launched.
	_ = s.machine.ProcessEvent(lifecycle.EventFirstInput)
	_ = s.machine.ProcessEvent(lifecycle.EventInitDone)

	s.publish(events.EventSessionStarted, &events.SessionStartedData{NodeCount: len(cfg.Plan.Nodes)})

	go s.run(runCtx, cfg)

	return s, nil
}

func (s *Session) publish(typ events.EventType, data events.EventData) {
	if s.events == nil {
		return
	}
	s.events.Publish(&events.Event{Type: typ, Timestamp: time.Now(), SessionID: s.id, Data: data})
}

func (s *Session) run(ctx context.Context, cfg Config) {
	defer close(s.done)
	err := scheduler.Run(ctx, cfg.Plan, cfg.Registry, cfg.Store, s.id, s.in, s.out, cfg.SchedulerOptions)

	removeErr := s.store.RemoveSession(context.Background(), s.id)

	duration := time.Since(s.startedAt)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.cancelled:
		_ = s.machine.ProcessEvent(lifecycle.EventCancel)
		s.publish(events.EventSessionCancelled, &events.SessionCancelledData{Duration: duration})
	case err != nil:
		s.runErr = err
		_ = s.machine.ProcessEvent(lifecycle.EventFail)
		s.publish(events.EventSessionFailed, &events.SessionFailedData{Error: err, Duration: duration})
	default:
		_ = s.machine.ProcessEvent(lifecycle.EventDrained)
		s.publish(events.EventSessionCompleted, &events.SessionCompletedData{Duration: duration})
	}
	if removeErr != nil && s.runErr == nil {
		s.runErr = fmt.Errorf("session: remove session state: %w", removeErr)
	}
}

// ID returns this session's identifier.
func (s *Session) ID() string { return s.id }

// State returns the session's current lifecycle state.
func (s *Session) State() lifecycle.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.machine.Current()
}

// SendInput delivers one envelope to the session's source node(s). It
// returns an error if the session has already been closed or cancelled, or
// if ctx is cancelled before the envelope could be queued.
func (s *Session) SendInput(ctx context.Context, env data.Envelope) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("session: %s is closed", s.id)
	}
	select {
	case s.in <- env:
		return nil
	case <-s.done:
		return fmt.Errorf("session: %s ended before input was accepted", s.id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Output returns the channel of envelopes produced by the session's sink
// node(s). It is closed once the session has fully drained.
func (s *Session) Output() <-chan data.Envelope {
	return s.out
}

// Done returns a channel closed once the session's execution has ended,
// however it ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the error the session ended with, if any. It is only
// meaningful after Done is closed.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runErr
}

// Close signals end-of-input and waits for the session to drain. It is
// idempotent: calling it more than once, or after Cancel, is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.in)
	_ = s.machine.ProcessEvent(lifecycle.EventEOF)
	s.mu.Unlock()

	<-s.done
	return s.Err()
}

// Cancel aborts the session immediately without waiting for pending input
// to drain. It is idempotent, and preempts a Close already in progress: a
// session that is draining when Cancel is called still ends up Cancelled,
// not Closed, so it must not reuse the closed flag for its own idempotency.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancelled = true
	s.mu.Unlock()

	s.cancel()
	<-s.done
	return nil
}
