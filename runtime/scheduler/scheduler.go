package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AltairaLabs/remotemedia/runtime/data"
	"github.com/AltairaLabs/remotemedia/runtime/events"
	"github.com/AltairaLabs/remotemedia/runtime/node"
	"github.com/AltairaLabs/remotemedia/runtime/statestore"
)

// RetryPolicy bounds the retry-with-backoff behavior applied to transient
// node.NodeError failures from ProcessChunk.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy retries a transient failure up to 3 additional times
// with jittered exponential backoff, capped at one second.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 4, BaseDelay: 25 * time.Millisecond, MaxDelay: time.Second}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d/2 + jitter
}

// Options configures a Run invocation.
type Options struct {
	StateTTL    time.Duration
	RetryPolicy RetryPolicy
	// Events, if non-nil, receives node and backpressure lifecycle events
	// for this run. A nil bus disables publication entirely.
	Events *events.EventBus
}

// publish is a no-op when bus is nil, so callers never have to guard every
// call site with a nil check.
func publish(bus *events.EventBus, typ events.EventType, sessionID string, data events.EventData) {
	if bus == nil {
		return
	}
	bus.Publish(&events.Event{Type: typ, Timestamp: time.Now(), SessionID: sessionID, Data: data})
}

// Run executes plan for one session: it instantiates one node.Node per
// PlanNode, wires bounded channels per the compiled edges, fans externalIn
// out to every source node, merges every sink node's output into
// externalOut, and tears every node down exactly once on return regardless
// of how execution ended.
//
// Run blocks until ctx is cancelled, externalIn is closed and every node has
// drained, or a fatal/invalid-input node error occurs. It closes externalOut
// before returning.
func Run(ctx context.Context, plan *Plan, registry *node.Registry, store statestore.Store, sessionID string, externalIn <-chan data.Envelope, externalOut chan<- data.Envelope, opts Options) error {
	if opts.StateTTL <= 0 {
		opts.StateTTL = statestore.DefaultTTL
	}
	if opts.RetryPolicy.MaxAttempts <= 0 {
		// No policy configured: a transient failure is not retried.
		opts.RetryPolicy = RetryPolicy{MaxAttempts: 1}
	}

	w := newWiring(plan)

	instances := make(map[string]node.Node, len(plan.Nodes))
	for id, pn := range plan.Nodes {
		inst, err := registry.New(pn.Type)
		if err != nil {
			return fmt.Errorf("scheduler: instantiate node %s: %w", id, err)
		}
		instances[id] = inst
	}

	for _, pn := range plan.Nodes {
		if pn.IsSink() {
			w.sinkWG.Add(1)
		}
	}
	go func() {
		w.sinkWG.Wait()
		close(w.sinkOut)
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return dispatchExternalInput(gctx, externalIn, w) })

	for _, id := range plan.TopoOrder {
		id := id
		pn := plan.Nodes[id]
		inst := instances[id]
		handle := newNodeStateHandle(store, id, sessionID, opts.StateTTL)
		g.Go(func() error {
			return runNode(gctx, id, pn, inst, handle, w, sessionID, opts)
		})
	}

	g.Go(func() error { return mergeExternalOutput(gctx, w, externalOut) })

	err := g.Wait()
	return err
}

// wiring holds every runtime channel for one session's execution of a Plan.
type wiring struct {
	// inbound[nodeID][port] is the single channel that node reads on that port.
	inbound map[string]map[string]chan data.Envelope
	// outbound[nodeID][port] lists every channel that node's output on that
	// port must be copied to (fan-out).
	outbound map[string]map[string][]chan data.Envelope
	// sourceIn[nodeID] is the dedicated, per-source-node channel fed by
	// dispatchExternalInput.
	sourceIn map[string]chan data.Envelope
	// sinkOut collects every sink node's emitted envelopes for mergeExternalOutput.
	sinkOut chan data.Envelope
	// sinkWG tracks running sink-node goroutines so sinkOut can be closed once
	// every writer into it has finished (a channel with multiple writers must
	// not be closed by any one of them).
	sinkWG sync.WaitGroup
}

func newWiring(plan *Plan) *wiring {
	w := &wiring{
		inbound:  make(map[string]map[string]chan data.Envelope),
		outbound: make(map[string]map[string][]chan data.Envelope),
		sourceIn: make(map[string]chan data.Envelope),
		sinkOut:  make(chan data.Envelope, DefaultChannelCapacity),
	}
	for id, pn := range plan.Nodes {
		w.inbound[id] = make(map[string]chan data.Envelope)
		w.outbound[id] = make(map[string][]chan data.Envelope)
		if pn.IsSource() {
			w.sourceIn[id] = make(chan data.Envelope, DefaultChannelCapacity)
		}
	}
	for _, e := range plan.Edges {
		ch := make(chan data.Envelope, e.Capacity)
		w.inbound[e.To][e.ToPort] = ch
		w.outbound[e.From][e.FromPort] = append(w.outbound[e.From][e.FromPort], ch)
	}
	return w
}

// dispatchExternalInput fans every envelope from externalIn out to every
// source node's dedicated channel, and closes them all once externalIn
// closes (the session's end-of-input signal).
func dispatchExternalInput(ctx context.Context, externalIn <-chan data.Envelope, w *wiring) error {
	defer func() {
		for _, ch := range w.sourceIn {
			close(ch)
		}
	}()
	for {
		select {
		case env, ok := <-externalIn:
			if !ok {
				return nil
			}
			i := 0
			for _, ch := range w.sourceIn {
				e := env
				if i > 0 {
					e = env.Clone()
				}
				i++
				select {
				case ch <- e:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// mergeExternalOutput copies every sink node's output into externalOut,
// closing externalOut once every sink node has finished (sinkOut closed).
func mergeExternalOutput(ctx context.Context, w *wiring, externalOut chan<- data.Envelope) error {
	defer close(externalOut)
	for {
		select {
		case env, ok := <-w.sinkOut:
			if !ok {
				return nil
			}
			select {
			case externalOut <- env:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runNode drives one node instance for the lifetime of one session: Init,
// the read/process/forward loop, Flush on upstream exhaustion, and Teardown.
func runNode(ctx context.Context, id string, pn PlanNode, inst node.Node, handle *nodeStateHandle, w *wiring, sessionID string, opts Options) (err error) {
	bus := opts.Events
	retry := opts.RetryPolicy
	if pn.IsSink() {
		defer w.sinkWG.Done()
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if terr := inst.Teardown(tctx); terr != nil && err == nil {
			err = fmt.Errorf("scheduler: teardown node %s: %w", id, terr)
		}
		publish(bus, events.EventNodeTeardownCompleted, sessionID, &events.NodeTeardownCompletedData{NodeID: id, NodeType: pn.Type})
	}()

	publish(bus, events.EventNodeInitStarted, sessionID, &events.NodeInitStartedData{NodeID: id, NodeType: pn.Type})
	initStart := time.Now()
	if initErr := inst.Init(ctx, pn.Params, handle); initErr != nil {
		publish(bus, events.EventNodeInitFailed, sessionID, &events.NodeInitFailedData{NodeID: id, NodeType: pn.Type, Error: initErr})
		return fmt.Errorf("scheduler: init node %s: %w", id, initErr)
	}
	publish(bus, events.EventNodeInitCompleted, sessionID, &events.NodeInitCompletedData{NodeID: id, NodeType: pn.Type, Duration: time.Since(initStart)})

	emit := emitter(ctx, id, pn, w, bus, sessionID)

	process := func(env data.Envelope) ([]data.Envelope, error) {
		seq := env.SequenceOrZero()
		publish(bus, events.EventNodeProcessStarted, sessionID, &events.NodeProcessStartedData{NodeID: id, NodeType: pn.Type, Sequence: seq})
		start := time.Now()
		var lastErr error
		for attempt := 0; attempt < retry.MaxAttempts; attempt++ {
			envs, perr := inst.ProcessChunk(ctx, env)
			if perr == nil {
				publish(bus, events.EventNodeProcessCompleted, sessionID, &events.NodeProcessCompletedData{NodeID: id, NodeType: pn.Type, Sequence: seq, Duration: time.Since(start), OutputSize: len(envs)})
				return envs, nil
			}
			lastErr = perr
			if !isTransient(perr) {
				publish(bus, events.EventNodeProcessFailed, sessionID, &events.NodeProcessFailedData{NodeID: id, NodeType: pn.Type, Sequence: seq, Error: perr, Duration: time.Since(start)})
				return nil, perr
			}
			if attempt+1 >= retry.MaxAttempts {
				break
			}
			publish(bus, events.EventNodeProcessRetried, sessionID, &events.NodeProcessRetriedData{NodeID: id, NodeType: pn.Type, Attempt: attempt + 1, Error: perr})
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retry.delay(attempt)):
			}
		}
		err := fmt.Errorf("scheduler: node %s: exhausted retries: %w", id, lastErr)
		publish(bus, events.EventNodeProcessFailed, sessionID, &events.NodeProcessFailedData{NodeID: id, NodeType: pn.Type, Sequence: seq, Error: err, Duration: time.Since(start)})
		return nil, err
	}

	var runErr error
	if pn.IsSource() {
		runErr = pumpSource(ctx, w.sourceIn[id], process, emit)
	} else {
		runErr = pumpInbound(ctx, pn, w.inbound[id], process, emit)
	}
	if runErr != nil {
		return runErr
	}

	flushed, ferr := inst.Flush(ctx)
	if ferr != nil {
		return fmt.Errorf("scheduler: flush node %s: %w", id, ferr)
	}
	publish(bus, events.EventNodeFlushCompleted, sessionID, &events.NodeFlushCompletedData{NodeID: id, NodeType: pn.Type, EnvelopeCount: len(flushed)})
	if err := emit(flushed); err != nil {
		return err
	}

	closeOutbound(id, pn, w)
	return nil
}

// emitter returns a function that routes a node's output envelopes to every
// downstream channel on the matching port (sink nodes instead feed sinkOut).
// A blocked send (full downstream channel) publishes a backpressure event
// pair bracketing the wait.
func emitter(ctx context.Context, id string, pn PlanNode, w *wiring, bus *events.EventBus, sessionID string) func([]data.Envelope) error {
	if pn.IsSink() {
		return func(envs []data.Envelope) error {
			for _, env := range envs {
				if err := sendWithBackpressure(ctx, w.sinkOut, env, id, "", bus, sessionID); err != nil {
					return err
				}
			}
			return nil
		}
	}
	out := w.outbound[id]
	return func(envs []data.Envelope) error {
		for _, env := range envs {
			for port, chans := range out {
				for i, ch := range chans {
					e := env
					if i > 0 {
						e = env.Clone()
					}
					if err := sendWithBackpressure(ctx, ch, e, id, port, bus, sessionID); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}
}

// sendWithBackpressure sends env on ch, publishing EventBackpressureBlocked/
// Resumed around the wait whenever the channel isn't immediately ready.
func sendWithBackpressure(ctx context.Context, ch chan<- data.Envelope, env data.Envelope, id, port string, bus *events.EventBus, sessionID string) error {
	select {
	case ch <- env:
		return nil
	default:
	}
	start := time.Now()
	publish(bus, events.EventBackpressureBlocked, sessionID, &events.BackpressureBlockedData{NodeID: id, Port: port})
	select {
	case ch <- env:
		publish(bus, events.EventBackpressureResumed, sessionID, &events.BackpressureResumedData{NodeID: id, Port: port, Duration: time.Since(start)})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func closeOutbound(id string, pn PlanNode, w *wiring) {
	if pn.IsSink() {
		return
	}
	for _, chans := range w.outbound[id] {
		for _, ch := range chans {
			close(ch)
		}
	}
}

func isTransient(err error) bool {
	var nerr *node.NodeError
	return asNodeError(err, &nerr) && nerr.Code == node.ErrorCodeTransient
}

func asNodeError(err error, target **node.NodeError) bool {
	for err != nil {
		if ne, ok := err.(*node.NodeError); ok {
			*target = ne
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// pumpSource feeds this source node's dedicated external-input channel
// through process until that channel closes.
func pumpSource(ctx context.Context, in <-chan data.Envelope, process func(data.Envelope) ([]data.Envelope, error), emit func([]data.Envelope) error) error {
	for {
		select {
		case env, ok := <-in:
			if !ok {
				return nil
			}
			envs, err := process(env)
			if err != nil {
				return err
			}
			if err := emit(envs); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pumpInbound runs this node's read loop for a non-source node, honoring
// barrier synchronization for multi-input nodes unless the descriptor opts
// into Eager processing.
func pumpInbound(ctx context.Context, pn PlanNode, inbound map[string]chan data.Envelope, process func(data.Envelope) ([]data.Envelope, error), emit func([]data.Envelope) error) error {
	if len(inbound) <= 1 || pn.Descriptor.Eager {
		return pumpEager(ctx, inbound, process, emit)
	}
	return pumpBarrier(ctx, pn.InboundPorts, inbound, process, emit)
}

// pumpEager waits on whichever inbound channel has a value ready, processing
// it immediately, until every channel has closed.
func pumpEager(ctx context.Context, inbound map[string]chan data.Envelope, process func(data.Envelope) ([]data.Envelope, error), emit func([]data.Envelope) error) error {
	open := make(map[string]chan data.Envelope, len(inbound))
	for port, ch := range inbound {
		open[port] = ch
	}
	for len(open) > 0 {
		env, port, ok, err := selectAny(ctx, open)
		if err != nil {
			return err
		}
		if !ok {
			delete(open, port)
			continue
		}
		envs, perr := process(env)
		if perr != nil {
			return perr
		}
		if err := emit(envs); err != nil {
			return err
		}
	}
	return nil
}

// pumpBarrier advances one round at a time: it reads exactly one envelope
// from each still-open port, in declared port order, before starting the
// next round. A port that closes mid-round is dropped from subsequent
// rounds; once every port has closed, the loop ends.
func pumpBarrier(ctx context.Context, ports []string, inbound map[string]chan data.Envelope, process func(data.Envelope) ([]data.Envelope, error), emit func([]data.Envelope) error) error {
	openPorts := make([]string, len(ports))
	copy(openPorts, ports)

	for len(openPorts) > 0 {
		var next []string
		for _, port := range openPorts {
			ch := inbound[port]
			select {
			case env, ok := <-ch:
				if !ok {
					continue
				}
				next = append(next, port)
				envs, perr := process(env)
				if perr != nil {
					return perr
				}
				if err := emit(envs); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		openPorts = next
	}
	return nil
}

// selectAny dynamically selects across an arbitrary number of inbound
// channels, since their count is only known once a manifest is compiled.
func selectAny(ctx context.Context, open map[string]chan data.Envelope) (data.Envelope, string, bool, error) {
	ports := make([]string, 0, len(open)+1)
	cases := make([]reflect.SelectCase, 0, len(open)+1)
	for port, ch := range open {
		ports = append(ports, port)
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)})
	}
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})

	chosen, value, ok := reflect.Select(cases)
	if chosen == len(ports) {
		return data.Envelope{}, "", false, ctx.Err()
	}
	if !ok {
		return data.Envelope{}, ports[chosen], false, nil
	}
	return value.Interface().(data.Envelope), ports[chosen], true, nil
}
