// Package prometheus provides Prometheus metrics exporters for the engine's
// lifecycle events.
package prometheus

import (
	"github.com/AltairaLabs/remotemedia/runtime/events"
)

// Status constants for metric labels.
const (
	statusSuccess   = "success"
	statusError     = "error"
	statusCompleted = "completed"
	statusFailed    = "failed"
	statusCancelled = "cancelled"
)

// MetricsListener records engine lifecycle events as Prometheus metrics.
// It implements the events.Listener signature and should be registered
// with an EventBus using SubscribeAll.
type MetricsListener struct{}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle processes an event and records relevant metrics.
// This method is designed to be used with EventBus.SubscribeAll.
func (l *MetricsListener) Handle(event *events.Event) {
	//exhaustive:ignore
	switch event.Type {
	case events.EventSessionStarted:
		RecordSessionStart()
	case events.EventSessionCompleted:
		l.handleSessionCompleted(event)
	case events.EventSessionFailed:
		l.handleSessionFailed(event)
	case events.EventSessionCancelled:
		l.handleSessionCancelled(event)
	case events.EventNodeInitCompleted:
		l.handleNodeInitCompleted(event)
	case events.EventNodeInitFailed:
		l.handleNodeInitFailed(event)
	case events.EventNodeProcessCompleted:
		l.handleNodeProcessCompleted(event)
	case events.EventNodeProcessFailed:
		l.handleNodeProcessFailed(event)
	case events.EventNodeProcessRetried:
		l.handleNodeProcessRetried(event)
	case events.EventBackpressureBlocked:
		l.handleBackpressureBlocked(event)
	case events.EventStateEntryEvicted:
		l.handleStateEntryEvicted(event)
	case events.EventPlanCompiled:
		l.handlePlanCompiled(event)
	default:
		// Ignore events that don't have metrics
	}
}

func (l *MetricsListener) handleSessionCompleted(event *events.Event) {
	if data, ok := event.Data.(*events.SessionCompletedData); ok {
		RecordSessionEnd(statusCompleted, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleSessionFailed(event *events.Event) {
	if data, ok := event.Data.(*events.SessionFailedData); ok {
		RecordSessionEnd(statusFailed, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleSessionCancelled(event *events.Event) {
	if data, ok := event.Data.(*events.SessionCancelledData); ok {
		RecordSessionEnd(statusCancelled, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleNodeInitCompleted(event *events.Event) {
	if data, ok := event.Data.(*events.NodeInitCompletedData); ok {
		RecordNodeInit(data.NodeType, statusSuccess, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleNodeInitFailed(event *events.Event) {
	if data, ok := event.Data.(*events.NodeInitFailedData); ok {
		RecordNodeInit(data.NodeType, statusError, 0)
	}
}

func (l *MetricsListener) handleNodeProcessCompleted(event *events.Event) {
	if data, ok := event.Data.(*events.NodeProcessCompletedData); ok {
		RecordNodeProcess(data.NodeType, statusSuccess, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleNodeProcessFailed(event *events.Event) {
	if data, ok := event.Data.(*events.NodeProcessFailedData); ok {
		RecordNodeProcess(data.NodeType, statusError, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleNodeProcessRetried(event *events.Event) {
	if data, ok := event.Data.(*events.NodeProcessRetriedData); ok {
		RecordNodeProcessRetried(data.NodeType)
	}
}

func (l *MetricsListener) handleBackpressureBlocked(event *events.Event) {
	if data, ok := event.Data.(*events.BackpressureBlockedData); ok {
		RecordBackpressure(data.NodeID)
	}
}

func (l *MetricsListener) handleStateEntryEvicted(event *events.Event) {
	if data, ok := event.Data.(*events.StateEntryEvictedData); ok {
		RecordStateEntryEvicted(data.Reason)
	}
}

func (l *MetricsListener) handlePlanCompiled(event *events.Event) {
	if data, ok := event.Data.(*events.PlanCompiledData); ok {
		RecordPlanCompiled(data.Duration.Seconds())
	}
}

// Listener returns an events.Listener function that can be registered with an EventBus.
func (l *MetricsListener) Listener() events.Listener {
	return l.Handle
}
