// Package node defines the node contract that every pipeline stage
// implements, plus the registry that maps manifest node types to
// constructors.
package node

import (
	"context"
	"fmt"

	"github.com/AltairaLabs/remotemedia/runtime/data"
)

// Descriptor is the static identity, capability, and parameter schema of a
// node type, as registered with a Registry.
type Descriptor struct {
	// Type is the manifest-facing name, e.g. "resample" or "vad".
	Type string
	// Version is the node implementation's semver string.
	Version string
	// Category groups related node types for descriptor introspection.
	Category string
	// AcceptedKinds lists the data.Kind values this node's input port(s)
	// accept. A node with no accepted kinds is a source: it is never fed
	// from a peer node, only from the session's external input stream.
	AcceptedKinds []data.Kind
	// ProducedKinds lists the data.Kind values this node's ProcessChunk may
	// emit. A node with no produced kinds is a sink (data.KindControl may
	// still be emitted by any node, since control envelopes are not part
	// of kind-compatibility checking).
	ProducedKinds []data.Kind
	// Streaming reports whether the node consumes/produces incrementally
	// (true for nearly every node in a streaming engine) versus requiring
	// its entire input materialized first.
	Streaming bool
	// Stateful reports whether the node reads or writes the session state
	// store via the StateHandle passed to Init.
	Stateful bool
	// Eager opts this node out of all-inputs-barrier synchronization for
	// multi-input nodes: it processes each inbound port independently as
	// chunks arrive, rather than waiting for one chunk on every port.
	Eager bool
	// ParamSchema is a JSON Schema (as a decoded map) describing the
	// node's accepted params. A nil schema means the node accepts
	// arbitrary params unchecked.
	ParamSchema map[string]any
}

// AcceptsKind reports whether this descriptor's node accepts envelopes of
// the given kind on its input port(s). A binary envelope is accepted by any
// node that accepts raw payloads (data.KindBinary in AcceptedKinds), per
// the manifest validator's kind-compatibility rule.
func (d Descriptor) AcceptsKind(k data.Kind) bool {
	for _, accepted := range d.AcceptedKinds {
		if accepted == k {
			return true
		}
	}
	return false
}

// IsSource reports whether this node type has no declared input kinds.
func (d Descriptor) IsSource() bool {
	return len(d.AcceptedKinds) == 0
}

// IsSink reports whether this node type has no declared output kinds.
func (d Descriptor) IsSink() bool {
	return len(d.ProducedKinds) == 0
}

// StateHandle is the narrow view of the session state store a node is
// handed at Init time, scoped to (sessionID, nodeID). Nodes must not
// retain it past Teardown.
type StateHandle interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Node is the contract every pipeline stage implements. A single interface
// covers all processing shapes from the manifest: ProcessChunk returning
// zero envelopes models a sink or a filtering stage, one envelope models a
// 1:1 transform, and more than one models a 1:N fan-out stage; a node with
// no inbound edges in the compiled graph is a source, fed from the
// session's external input stream instead of from a peer node.
type Node interface {
	// Describe returns this node instance's static descriptor.
	Describe() Descriptor

	// Init prepares the node to process chunks for one session. params has
	// already been validated against the node's ParamSchema. state is scoped
	// to this node within this session and is safe for concurrent use by a
	// single node instance (nodes are never shared across sessions).
	Init(ctx context.Context, params map[string]any, state StateHandle) error

	// ProcessChunk handles one input envelope and returns zero or more
	// output envelopes. It must not block beyond what the context allows,
	// and must not retain env past the call — callers may recycle the
	// envelope's buffer once ProcessChunk returns.
	ProcessChunk(ctx context.Context, env data.Envelope) ([]data.Envelope, error)

	// Flush is called when the node's upstream has signalled end-of-stream
	// or a manual flush control envelope, in topological order relative to
	// sibling nodes. It gives the node a chance to emit buffered output
	// (e.g. a resampler's trailing partial frame).
	Flush(ctx context.Context) ([]data.Envelope, error)

	// Teardown releases any resources acquired in Init. It is called
	// exactly once per session, regardless of whether the session ended
	// normally, was cancelled, or failed.
	Teardown(ctx context.Context) error
}

// ErrorCode classifies a NodeError for scheduler and metrics handling.
type ErrorCode string

// Node error classifications.
const (
	// ErrorCodeTransient indicates the failure is likely to succeed on retry.
	ErrorCodeTransient ErrorCode = "transient"
	// ErrorCodeFatal indicates the session cannot continue.
	ErrorCodeFatal ErrorCode = "fatal"
	// ErrorCodeInvalidInput indicates the envelope violated the node's contract.
	ErrorCodeInvalidInput ErrorCode = "invalid_input"
)

// NodeError is the error type nodes should return from ProcessChunk/Flush to
// give the scheduler a classification to act on.
type NodeError struct {
	NodeID string
	Code   ErrorCode
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Code, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// NewError wraps err as a NodeError with the given node ID and classification.
func NewError(nodeID string, code ErrorCode, err error) *NodeError {
	return &NodeError{NodeID: nodeID, Code: code, Err: err}
}
