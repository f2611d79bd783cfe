package builtin

import (
	"context"

	"github.com/AltairaLabs/remotemedia/runtime/data"
	"github.com/AltairaLabs/remotemedia/runtime/node"
)

// PassThroughType is the manifest-facing node_type for PassThrough.
const PassThroughType = "pass_through"

// PassThrough forwards every envelope unchanged, preserving its sequence
// number and metadata. It is useful for tapping a pipeline at a specific
// point (e.g. ahead of a branch used only for recording) without altering
// the stream.
type PassThrough struct{}

// NewPassThrough returns a new PassThrough node instance.
func NewPassThrough() node.Node {
	return &PassThrough{}
}

// Describe returns PassThrough's static descriptor. AcceptedKinds and
// ProducedKinds both list every kind since PassThrough imposes no
// constraint on what flows through it.
func (PassThrough) Describe() node.Descriptor {
	return node.Descriptor{
		Type:          PassThroughType,
		Version:       "1.0.0",
		Category:      "transform",
		AcceptedKinds: []data.Kind{data.KindAudio, data.KindVideo, data.KindText, data.KindBinary, data.KindJSON},
		ProducedKinds: []data.Kind{data.KindAudio, data.KindVideo, data.KindText, data.KindBinary, data.KindJSON},
		Streaming:     true,
	}
}

// Init is a no-op: PassThrough has no params and no state.
func (PassThrough) Init(ctx context.Context, params map[string]any, state node.StateHandle) error {
	return nil
}

// ProcessChunk returns env unchanged.
func (PassThrough) ProcessChunk(ctx context.Context, env data.Envelope) ([]data.Envelope, error) {
	return []data.Envelope{env}, nil
}

// Flush is a no-op: PassThrough buffers nothing.
func (PassThrough) Flush(ctx context.Context) ([]data.Envelope, error) { return nil, nil }

// Teardown is a no-op: PassThrough holds no resources.
func (PassThrough) Teardown(ctx context.Context) error { return nil }
