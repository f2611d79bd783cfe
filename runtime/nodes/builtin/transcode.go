package builtin

import (
	"context"
	"fmt"

	"github.com/AltairaLabs/remotemedia/runtime/data"
	"github.com/AltairaLabs/remotemedia/runtime/media"
	"github.com/AltairaLabs/remotemedia/runtime/node"
)

// TranscodeType is the manifest-facing node_type for Transcode.
const TranscodeType = "transcode"

var transcodeParamSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"from_mime_type": map[string]any{"type": "string"},
		"to_mime_type":   map[string]any{"type": "string"},
		"sample_rate":    map[string]any{"type": "integer", "minimum": 0},
		"channels":       map[string]any{"type": "integer", "minimum": 0},
		"bit_rate":       map[string]any{"type": "string"},
	},
	"required":             []any{"from_mime_type", "to_mime_type"},
	"additionalProperties": false,
}

// Transcode converts a binary envelope's encoded audio bytes between
// container/codec formats by shelling out to ffmpeg. Unlike Resample, which
// operates on raw PCM already unpacked into an Audio envelope, Transcode
// handles encoded containers (WAV, MP3, FLAC, OGG, AAC, ...) it cannot
// decode in-process.
type Transcode struct {
	converter *media.AudioConverter
	fromMIME  string
	toMIME    string
}

// NewTranscode returns a fresh, uninitialized Transcode node instance.
func NewTranscode() node.Node {
	return &Transcode{}
}

// Describe returns Transcode's static descriptor.
func (t *Transcode) Describe() node.Descriptor {
	return node.Descriptor{
		Type:          TranscodeType,
		Version:       "1.0.0",
		Category:      "audio",
		AcceptedKinds: []data.Kind{data.KindBinary},
		ProducedKinds: []data.Kind{data.KindBinary},
		Streaming:     false,
		ParamSchema:   transcodeParamSchema,
	}
}

// Init builds the underlying ffmpeg-backed converter from params.
func (t *Transcode) Init(ctx context.Context, params map[string]any, state node.StateHandle) error {
	fromMIME, ok := params["from_mime_type"].(string)
	if !ok || fromMIME == "" {
		return fmt.Errorf("transcode: from_mime_type is required")
	}
	toMIME, ok := params["to_mime_type"].(string)
	if !ok || toMIME == "" {
		return fmt.Errorf("transcode: to_mime_type is required")
	}

	cfg := media.DefaultAudioConverterConfig()
	if v, ok := params["sample_rate"].(float64); ok {
		cfg.SampleRate = int(v)
	}
	if v, ok := params["channels"].(float64); ok {
		cfg.Channels = int(v)
	}
	if v, ok := params["bit_rate"].(string); ok {
		cfg.BitRate = v
	}

	t.fromMIME = fromMIME
	t.toMIME = toMIME
	t.converter = media.NewAudioConverter(cfg)
	return nil
}

// ProcessChunk converts env's encoded audio bytes from the source to the
// target format configured at Init. A chunk whose whole encoded container
// must be read before conversion, so this node is not streaming: each
// envelope is expected to carry a complete file's bytes.
func (t *Transcode) ProcessChunk(ctx context.Context, env data.Envelope) ([]data.Envelope, error) {
	if env.Kind != data.KindBinary || env.Binary == nil {
		return nil, node.NewError(TranscodeType, node.ErrorCodeInvalidInput, fmt.Errorf("transcode: expected a binary envelope"))
	}

	result, err := t.converter.ConvertAudio(ctx, env.Binary.Bytes, t.fromMIME, t.toMIME)
	if err != nil {
		return nil, node.NewError(TranscodeType, node.ErrorCodeTransient, err)
	}

	out := data.NewBinary(result.Data)
	out = out.WithSequence(env.SequenceOrZero())
	out.SessionID = env.SessionID
	out.Metadata = map[string]string{
		"format":        result.Format,
		"mime_type":     result.MIMEType,
		"was_converted": fmt.Sprintf("%t", result.WasConverted),
	}
	return []data.Envelope{out}, nil
}

// Flush is a no-op: Transcode converts each envelope's complete payload in
// ProcessChunk, it never buffers a partial one across chunks.
func (t *Transcode) Flush(ctx context.Context) ([]data.Envelope, error) { return nil, nil }

// Teardown is a no-op: Transcode holds no resources beyond the per-call
// ffmpeg subprocess, which runFFmpeg already waits on and cleans up.
func (t *Transcode) Teardown(ctx context.Context) error { return nil }
