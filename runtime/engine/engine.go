// Package engine is the top-level façade: compile a manifest once, then run
// it either as a single unary call or as a long-lived streaming session.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/AltairaLabs/remotemedia/runtime/data"
	"github.com/AltairaLabs/remotemedia/runtime/events"
	"github.com/AltairaLabs/remotemedia/runtime/manifest"
	"github.com/AltairaLabs/remotemedia/runtime/node"
	"github.com/AltairaLabs/remotemedia/runtime/scheduler"
	"github.com/AltairaLabs/remotemedia/runtime/session"
	"github.com/AltairaLabs/remotemedia/runtime/statestore"
)

// ErrEngineShuttingDown is returned by Execute/OpenSession once Shutdown has
// been called.
var ErrEngineShuttingDown = errors.New("engine: shutting down")

// Config configures an Engine. All fields are optional; zero values are
// filled with defaults.
type Config struct {
	// MaxConcurrentSessions bounds concurrently running sessions. Default: 100.
	MaxConcurrentSessions int
	// ChannelCapacity is passed through to scheduler.Compile. Default:
	// scheduler.DefaultChannelCapacity.
	ChannelCapacity int
	// SessionTimeout bounds a single session's lifetime. Zero disables it.
	SessionTimeout time.Duration
	// GracefulShutdownTimeout bounds how long Shutdown waits for in-flight
	// sessions to drain. Default: 10 seconds.
	GracefulShutdownTimeout time.Duration
	// Events, if non-nil, receives session, node, backpressure, and plan
	// compilation lifecycle events for every session this engine runs. A
	// nil bus (the default) disables publication entirely.
	Events *events.EventBus
}

// DefaultConfig returns a Config with the engine's default values.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrentSessions:   100,
		ChannelCapacity:         scheduler.DefaultChannelCapacity,
		GracefulShutdownTimeout: 10 * time.Second,
	}
}

// Engine compiles manifests into Plans (cached by content hash) and
// dispatches both unary Execute calls and long-lived streaming sessions
// against a shared node Registry and state Store.
type Engine struct {
	registry *node.Registry
	store    statestore.Store
	config   *Config

	semaphore *semaphore.Weighted
	wg        sync.WaitGroup

	shutdownMu sync.RWMutex
	shutdown   chan struct{}
	isShutdown bool

	plansMu sync.RWMutex
	plans   map[string]*scheduler.Plan
	group   singleflight.Group
}

// New constructs an Engine. config may be nil to use DefaultConfig(); zero
// fields within a non-nil config are filled with defaults. Returns an error
// if config contains a negative value.
func New(registry *node.Registry, store statestore.Store, config *Config) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("engine: registry is required")
	}
	if store == nil {
		return nil, fmt.Errorf("engine: state store is required")
	}
	if config == nil {
		config = DefaultConfig()
	} else {
		if config.MaxConcurrentSessions < 0 {
			return nil, fmt.Errorf("engine: MaxConcurrentSessions must be non-negative, got %d", config.MaxConcurrentSessions)
		}
		if config.ChannelCapacity < 0 {
			return nil, fmt.Errorf("engine: ChannelCapacity must be non-negative, got %d", config.ChannelCapacity)
		}
		defaults := DefaultConfig()
		if config.MaxConcurrentSessions == 0 {
			config.MaxConcurrentSessions = defaults.MaxConcurrentSessions
		}
		if config.ChannelCapacity == 0 {
			config.ChannelCapacity = defaults.ChannelCapacity
		}
		if config.GracefulShutdownTimeout == 0 {
			config.GracefulShutdownTimeout = defaults.GracefulShutdownTimeout
		}
	}

	return &Engine{
		registry:  registry,
		store:     store,
		config:    config,
		semaphore: semaphore.NewWeighted(int64(config.MaxConcurrentSessions)),
		shutdown:  make(chan struct{}),
		plans:     make(map[string]*scheduler.Plan),
	}, nil
}

// Compile returns the cached Plan for m's canonical hash, compiling it
// exactly once even under concurrent callers racing on the same manifest.
func (e *Engine) Compile(m *manifest.Manifest) (*scheduler.Plan, error) {
	hash, err := m.Hash()
	if err != nil {
		return nil, fmt.Errorf("engine: hash manifest: %w", err)
	}

	e.plansMu.RLock()
	if plan, ok := e.plans[hash]; ok {
		e.plansMu.RUnlock()
		return plan, nil
	}
	e.plansMu.RUnlock()

	v, err, _ := e.group.Do(hash, func() (any, error) {
		e.plansMu.RLock()
		if plan, ok := e.plans[hash]; ok {
			e.plansMu.RUnlock()
			return plan, nil
		}
		e.plansMu.RUnlock()

		start := time.Now()
		plan, err := scheduler.Compile(m, e.registry, scheduler.CompileOptions{ChannelCapacity: e.config.ChannelCapacity})
		if err != nil {
			return nil, err
		}
		e.plansMu.Lock()
		e.plans[hash] = plan
		e.plansMu.Unlock()
		if e.config.Events != nil {
			e.config.Events.Publish(&events.Event{
				Type:      events.EventPlanCompiled,
				Timestamp: time.Now(),
				Data: &events.PlanCompiledData{
					ManifestHash: plan.ManifestHash,
					NodeCount:    len(plan.Nodes),
					EdgeCount:    len(plan.Edges),
					Duration:     time.Since(start),
				},
			})
		}
		return plan, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*scheduler.Plan), nil
}

func (e *Engine) isShuttingDown() bool {
	e.shutdownMu.RLock()
	defer e.shutdownMu.RUnlock()
	return e.isShutdown
}

// OpenSession compiles m (if not already cached) and starts a new streaming
// session against it. The returned Session is tracked for graceful
// Shutdown and releases its concurrency slot automatically once it ends.
func (e *Engine) OpenSession(ctx context.Context, m *manifest.Manifest) (*session.Session, error) {
	if e.isShuttingDown() {
		return nil, ErrEngineShuttingDown
	}

	plan, err := e.Compile(m)
	if err != nil {
		return nil, err
	}

	if err := e.semaphore.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("engine: acquire session slot: %w", err)
	}

	e.wg.Add(1)
	sess, err := session.New(ctx, session.Config{
		Plan:             plan,
		Registry:         e.registry,
		Store:            e.store,
		Timeout:          e.config.SessionTimeout,
		InputCapacity:    e.config.ChannelCapacity,
		OutputCapacity:   e.config.ChannelCapacity,
		Events:           e.config.Events,
		SchedulerOptions: scheduler.Options{Events: e.config.Events},
	})
	if err != nil {
		e.semaphore.Release(1)
		e.wg.Done()
		return nil, err
	}

	go func() {
		<-sess.Done()
		e.semaphore.Release(1)
		e.wg.Done()
	}()

	return sess, nil
}

// Execute runs m against inputs as a single unary call: it opens a session,
// feeds every input envelope, closes the session, and collects every output
// envelope before returning.
func (e *Engine) Execute(ctx context.Context, m *manifest.Manifest, inputs []data.Envelope) ([]data.Envelope, error) {
	sess, err := e.OpenSession(ctx, m)
	if err != nil {
		return nil, err
	}

	go func() {
		for _, env := range inputs {
			if err := sess.SendInput(ctx, env); err != nil {
				break
			}
		}
		_ = sess.Close()
	}()

	var outputs []data.Envelope
	for env := range sess.Output() {
		outputs = append(outputs, env)
	}

	if err := sess.Err(); err != nil {
		return outputs, err
	}
	return outputs, nil
}

// Shutdown stops accepting new sessions and waits for in-flight sessions to
// drain, up to the configured GracefulShutdownTimeout.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.shutdownMu.Lock()
	if e.isShutdown {
		e.shutdownMu.Unlock()
		return nil
	}
	e.isShutdown = true
	close(e.shutdown)
	e.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	shutdownCtx, cancel := context.WithTimeout(ctx, e.config.GracefulShutdownTimeout)
	defer cancel()

	select {
	case <-done:
		return nil
	case <-shutdownCtx.Done():
		return fmt.Errorf("engine: shutdown timeout after %v", e.config.GracefulShutdownTimeout)
	}
}
