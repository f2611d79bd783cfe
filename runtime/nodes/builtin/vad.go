package builtin

import (
	"context"
	"fmt"
	"strconv"

	"github.com/AltairaLabs/remotemedia/runtime/audio"
	"github.com/AltairaLabs/remotemedia/runtime/data"
	"github.com/AltairaLabs/remotemedia/runtime/node"
)

// VADType is the manifest-facing node_type for VAD.
const VADType = "vad"

var vadParamSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"start_secs": map[string]any{"type": "number", "minimum": 0},
		"stop_secs":  map[string]any{"type": "number", "minimum": 0},
		"min_volume": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
	},
	"additionalProperties": false,
}

// VAD tags every inbound audio envelope with its voice-activity state and
// emits a Control envelope at each speech boundary: ControlStart on the
// transition into VADStateSpeaking, ControlStop on the transition into
// VADStateQuiet. Unlike Calculator and PassThrough it carries per-session
// analyzer state (accumulated RMS smoothing and the start/stop timers), so
// a fresh *audio.SimpleVAD is built in Init for each session rather than
// shared across them.
type VAD struct {
	analyzer *audio.SimpleVAD
}

// NewVAD returns a fresh, uninitialized VAD node instance.
func NewVAD() node.Node {
	return &VAD{}
}

// Describe returns VAD's static descriptor.
func (v *VAD) Describe() node.Descriptor {
	return node.Descriptor{
		Type:          VADType,
		Version:       "1.0.0",
		Category:      "audio",
		AcceptedKinds: []data.Kind{data.KindAudio},
		ProducedKinds: []data.Kind{data.KindAudio, data.KindControl},
		Streaming:     true,
		Stateful:      true,
		ParamSchema:   vadParamSchema,
	}
}

// Init builds the session's analyzer from the configured params, falling
// back to audio.DefaultVADParams for anything left unspecified.
func (v *VAD) Init(ctx context.Context, params map[string]any, state node.StateHandle) error {
	p := audio.DefaultVADParams()
	if c, ok := params["confidence"].(float64); ok {
		p.Confidence = c
	}
	if s, ok := params["start_secs"].(float64); ok {
		p.StartSecs = s
	}
	if s, ok := params["stop_secs"].(float64); ok {
		p.StopSecs = s
	}
	if m, ok := params["min_volume"].(float64); ok {
		p.MinVolume = m
	}

	analyzer, err := audio.NewSimpleVAD(p)
	if err != nil {
		return fmt.Errorf("vad: %w", err)
	}
	v.analyzer = analyzer
	return nil
}

// ProcessChunk analyzes env's samples, returns the same audio envelope
// annotated with the resulting voice-activity state and confidence, and
// prepends a Control envelope if this chunk crossed a speech boundary.
func (v *VAD) ProcessChunk(ctx context.Context, env data.Envelope) ([]data.Envelope, error) {
	if env.Kind != data.KindAudio || env.Audio == nil {
		return nil, node.NewError(VADType, node.ErrorCodeInvalidInput, fmt.Errorf("vad: expected an audio envelope"))
	}

	prevState := v.analyzer.State()
	confidence, err := v.analyzer.Analyze(ctx, env.Audio.Samples)
	if err != nil {
		return nil, node.NewError(VADType, node.ErrorCodeInvalidInput, err)
	}
	newState := v.analyzer.State()

	out := env.Clone()
	if out.Metadata == nil {
		out.Metadata = make(map[string]string, 2)
	}
	out.Metadata["vad_state"] = newState.String()
	out.Metadata["vad_confidence"] = strconv.FormatFloat(confidence, 'f', 4, 64)

	results := make([]data.Envelope, 0, 2)
	if prevState != audio.VADStateSpeaking && newState == audio.VADStateSpeaking {
		results = append(results, data.NewControl(data.ControlStart, env.SessionID).WithSequence(env.SequenceOrZero()))
	} else if prevState != audio.VADStateQuiet && newState == audio.VADStateQuiet {
		results = append(results, data.NewControl(data.ControlStop, env.SessionID).WithSequence(env.SequenceOrZero()))
	}
	results = append(results, out)
	return results, nil
}

// Flush is a no-op: VAD's state lives in the analyzer, not in buffered
// envelopes.
func (v *VAD) Flush(ctx context.Context) ([]data.Envelope, error) { return nil, nil }

// Teardown is a no-op: the analyzer holds no external resources.
func (v *VAD) Teardown(ctx context.Context) error { return nil }
