package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltairaLabs/remotemedia/runtime/events"
)

// spanEntry tracks an in-flight span and its context.
type spanEntry struct {
	span trace.Span
	ctx  context.Context //nolint:containedctx // needed to parent child spans
}

// sessionState tracks the root span for a session.
type sessionState struct {
	span trace.Span
	ctx  context.Context //nolint:containedctx // needed to parent child spans
}

// pendingEnd buffers a span completion that arrived before its start. The
// EventBus dispatches each Publish call on its own goroutine, so completion
// events can race ahead of start events for the same key.
type pendingEnd struct {
	errMsg string // empty means success
	attrs  []attribute.KeyValue
}

// SpanListener converts engine lifecycle events into OpenTelemetry spans in
// real time. It implements the events.Listener signature via Handle and
// should be registered with an EventBus using SubscribeAll, alongside (not
// instead of) a metrics/prometheus.MetricsListener. It is safe for
// concurrent use and tolerates out-of-order event delivery.
type SpanListener struct {
	tracer trace.Tracer

	mu          sync.Mutex
	sessions    map[string]*sessionState // sessionID -> root span + ctx
	inflight    map[string]*spanEntry    // span key -> span + ctx
	pendingEnds map[string]*pendingEnd   // buffered completions for out-of-order delivery
}

// NewSpanListener creates a listener that derives spans from runtime events
// using tracer.
func NewSpanListener(tracer trace.Tracer) *SpanListener {
	return &SpanListener{
		tracer:      tracer,
		sessions:    make(map[string]*sessionState),
		inflight:    make(map[string]*spanEntry),
		pendingEnds: make(map[string]*pendingEnd),
	}
}

// Handle processes a single event, creating or completing OTel spans. It is
// designed to be passed to EventBus.SubscribeAll.
func (l *SpanListener) Handle(evt *events.Event) {
	//exhaustive:ignore
	switch evt.Type {
	case events.EventSessionStarted:
		l.startSession(evt)
	case events.EventSessionCompleted:
		l.endSession(evt, "")
	case events.EventSessionFailed:
		l.failSession(evt)
	case events.EventSessionCancelled:
		l.endSession(evt, "cancelled")
	case events.EventNodeInitStarted:
		l.startNodeInit(evt)
	case events.EventNodeInitCompleted:
		l.completeNodeInit(evt)
	case events.EventNodeInitFailed:
		l.failNodeInit(evt)
	case events.EventNodeProcessStarted:
		l.startNodeProcess(evt)
	case events.EventNodeProcessCompleted:
		l.completeNodeProcess(evt)
	case events.EventNodeProcessFailed:
		l.failNodeProcess(evt)
	case events.EventNodeFlushCompleted:
		l.recordNodeFlush(evt)
	case events.EventNodeTeardownCompleted:
		l.recordNodeTeardown(evt)
	case events.EventBackpressureBlocked:
		l.startBackpressure(evt)
	case events.EventBackpressureResumed:
		l.endBackpressure(evt)
	default:
		// No span associated with this event type.
	}
}

// Listener returns an events.Listener bound to Handle, for
// EventBus.SubscribeAll.
func (l *SpanListener) Listener() events.Listener {
	return l.Handle
}

// sessionCtx returns the context to parent child spans under, falling back
// to context.Background if the session's root span is unknown (e.g. it
// completed, or this listener was registered mid-session).
func (l *SpanListener) sessionCtx(sessionID string) context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ss, ok := l.sessions[sessionID]; ok {
		return ss.ctx
	}
	return context.Background()
}

func (l *SpanListener) startSession(evt *events.Event) {
	data, ok := asPtr[events.SessionStartedData](evt.Data)
	attrs := []attribute.KeyValue{attribute.String("session.id", evt.SessionID)}
	if ok {
		attrs = append(attrs, attribute.Int("session.node_count", data.NodeCount))
	}
	ctx, span := l.tracer.Start(context.Background(), "remotemedia.session",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	l.mu.Lock()
	l.sessions[evt.SessionID] = &sessionState{span: span, ctx: ctx}
	l.mu.Unlock()
}

func (l *SpanListener) endSession(evt *events.Event, status string) {
	l.mu.Lock()
	ss, ok := l.sessions[evt.SessionID]
	if ok {
		delete(l.sessions, evt.SessionID)
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	if status != "" {
		ss.span.SetAttributes(attribute.String("session.status", status))
	}
	ss.span.SetStatus(codes.Ok, "")
	ss.span.End()
}

func (l *SpanListener) failSession(evt *events.Event) {
	l.mu.Lock()
	ss, ok := l.sessions[evt.SessionID]
	if ok {
		delete(l.sessions, evt.SessionID)
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	if data, ok := asPtr[events.SessionFailedData](evt.Data); ok && data.Error != nil {
		ss.span.SetStatus(codes.Error, data.Error.Error())
	} else {
		ss.span.SetStatus(codes.Error, "session failed")
	}
	ss.span.End()
}

// initKey identifies a node's Init span.
func initKey(sessionID, nodeID string) string {
	return "init:" + sessionID + ":" + nodeID
}

// processKey identifies a single ProcessChunk call's span, disambiguated by
// sequence so back-to-back chunks on the same node don't collide.
func processKey(sessionID, nodeID string, seq uint64) string {
	return fmt.Sprintf("process:%s:%s:%d", sessionID, nodeID, seq)
}

// backpressureKey identifies a node/port's current blocked-send span.
func backpressureKey(sessionID, nodeID, port string) string {
	return "backpressure:" + sessionID + ":" + nodeID + ":" + port
}

func (l *SpanListener) startNodeInit(evt *events.Event) {
	data, ok := asPtr[events.NodeInitStartedData](evt.Data)
	if !ok {
		return
	}
	l.startSpan(evt.SessionID, initKey(evt.SessionID, data.NodeID), "remotemedia.node.init",
		trace.SpanKindInternal,
		attribute.String("node.id", data.NodeID),
		attribute.String("node.type", data.NodeType),
	)
}

func (l *SpanListener) completeNodeInit(evt *events.Event) {
	data, ok := asPtr[events.NodeInitCompletedData](evt.Data)
	if !ok {
		return
	}
	l.endSpan(initKey(evt.SessionID, data.NodeID),
		attribute.Int64("node.init.duration_ms", data.Duration.Milliseconds()),
	)
}

func (l *SpanListener) failNodeInit(evt *events.Event) {
	data, ok := asPtr[events.NodeInitFailedData](evt.Data)
	if !ok {
		return
	}
	l.failSpan(initKey(evt.SessionID, data.NodeID), data.Error.Error())
}

func (l *SpanListener) startNodeProcess(evt *events.Event) {
	data, ok := asPtr[events.NodeProcessStartedData](evt.Data)
	if !ok {
		return
	}
	l.startSpan(evt.SessionID, processKey(evt.SessionID, data.NodeID, data.Sequence), "remotemedia.node.process",
		trace.SpanKindInternal,
		attribute.String("node.id", data.NodeID),
		attribute.String("node.type", data.NodeType),
		attribute.Int64("chunk.sequence", int64(data.Sequence)),
	)
}

func (l *SpanListener) completeNodeProcess(evt *events.Event) {
	data, ok := asPtr[events.NodeProcessCompletedData](evt.Data)
	if !ok {
		return
	}
	l.endSpan(processKey(evt.SessionID, data.NodeID, data.Sequence),
		attribute.Int64("node.process.duration_ms", data.Duration.Milliseconds()),
		attribute.Int("node.process.output_size", data.OutputSize),
	)
}

func (l *SpanListener) failNodeProcess(evt *events.Event) {
	data, ok := asPtr[events.NodeProcessFailedData](evt.Data)
	if !ok {
		return
	}
	l.failSpan(processKey(evt.SessionID, data.NodeID, data.Sequence), data.Error.Error(),
		attribute.Int64("node.process.duration_ms", data.Duration.Milliseconds()),
	)
}

// recordNodeFlush emits an instantaneous span: Flush has no matching
// "started" event, so there is nothing to pair this completion against.
func (l *SpanListener) recordNodeFlush(evt *events.Event) {
	data, ok := asPtr[events.NodeFlushCompletedData](evt.Data)
	if !ok {
		return
	}
	_, span := l.tracer.Start(l.sessionCtx(evt.SessionID), "remotemedia.node.flush",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("node.id", data.NodeID),
			attribute.String("node.type", data.NodeType),
			attribute.Int("node.flush.envelope_count", data.EnvelopeCount),
		),
	)
	span.SetStatus(codes.Ok, "")
	span.End()
}

func (l *SpanListener) recordNodeTeardown(evt *events.Event) {
	data, ok := asPtr[events.NodeTeardownCompletedData](evt.Data)
	if !ok {
		return
	}
	_, span := l.tracer.Start(l.sessionCtx(evt.SessionID), "remotemedia.node.teardown",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("node.id", data.NodeID),
			attribute.String("node.type", data.NodeType),
		),
	)
	span.SetStatus(codes.Ok, "")
	span.End()
}

func (l *SpanListener) startBackpressure(evt *events.Event) {
	data, ok := asPtr[events.BackpressureBlockedData](evt.Data)
	if !ok {
		return
	}
	l.startSpan(evt.SessionID, backpressureKey(evt.SessionID, data.NodeID, data.Port), "remotemedia.backpressure",
		trace.SpanKindInternal,
		attribute.String("node.id", data.NodeID),
		attribute.String("node.port", data.Port),
	)
}

func (l *SpanListener) endBackpressure(evt *events.Event) {
	data, ok := asPtr[events.BackpressureResumedData](evt.Data)
	if !ok {
		return
	}
	l.endSpan(backpressureKey(evt.SessionID, data.NodeID, data.Port),
		attribute.Int64("backpressure.wait_ms", data.Duration.Milliseconds()),
	)
}

// startSpan starts a span parented under the session root and stores it in
// inflight under key. If a completion for key was already buffered (out-of-
// order delivery), the span is immediately closed out with it.
func (l *SpanListener) startSpan(sessionID, key, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) {
	parentCtx := l.sessionCtx(sessionID)
	ctx, span := l.tracer.Start(parentCtx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
	l.mu.Lock()
	pe, havePending := l.pendingEnds[key]
	if havePending {
		delete(l.pendingEnds, key)
	} else {
		l.inflight[key] = &spanEntry{span: span, ctx: ctx}
	}
	l.mu.Unlock()

	if havePending {
		span.SetAttributes(pe.attrs...)
		if pe.errMsg != "" {
			span.SetStatus(codes.Error, pe.errMsg)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// endSpan ends an inflight span. If the start hasn't arrived yet, the
// completion is buffered and applied when startSpan creates the span.
func (l *SpanListener) endSpan(key string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	entry, ok := l.inflight[key]
	if ok {
		delete(l.inflight, key)
	} else {
		l.pendingEnds[key] = &pendingEnd{attrs: attrs}
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	entry.span.SetAttributes(attrs...)
	entry.span.SetStatus(codes.Ok, "")
	entry.span.End()
}

// failSpan ends an inflight span with an error status, with the same
// out-of-order buffering as endSpan.
func (l *SpanListener) failSpan(key, errMsg string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	entry, ok := l.inflight[key]
	if ok {
		delete(l.inflight, key)
	} else {
		l.pendingEnds[key] = &pendingEnd{errMsg: errMsg, attrs: attrs}
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	entry.span.SetAttributes(attrs...)
	entry.span.SetStatus(codes.Error, errMsg)
	entry.span.End()
}

// asPtr extracts event data as a pointer, handling both value and pointer
// types, since the Data field's static type is the EventData interface.
func asPtr[T any](data any) (*T, bool) {
	if p, ok := data.(*T); ok {
		return p, true
	}
	if v, ok := data.(T); ok {
		return &v, true
	}
	return nil, false
}
