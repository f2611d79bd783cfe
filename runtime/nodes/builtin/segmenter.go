package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/AltairaLabs/remotemedia/runtime/audio"
	"github.com/AltairaLabs/remotemedia/runtime/data"
	"github.com/AltairaLabs/remotemedia/runtime/node"
)

// SegmenterType is the manifest-facing node_type for Segmenter.
const SegmenterType = "segmenter"

const defaultSilenceThresholdMS = 500

var segmenterParamSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"silence_threshold_ms": map[string]any{"type": "integer", "minimum": 1},
		"confidence":           map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"start_secs":           map[string]any{"type": "number", "minimum": 0},
		"stop_secs":            map[string]any{"type": "number", "minimum": 0},
		"min_volume":           map[string]any{"type": "number", "minimum": 0, "maximum": 1},
	},
	"additionalProperties": false,
}

// Segmenter consumes a continuous audio stream and emits one complete audio
// envelope per utterance: it runs its own voice-activity analysis and
// closes a segment once silence following speech exceeds
// silence_threshold_ms, discarding the leading and trailing silence in
// between. Unlike VAD, which annotates every chunk in place, Segmenter
// buffers and only emits on segment boundaries (and at Flush, for any
// trailing in-progress segment), so it is not a 1:1 node.
type Segmenter struct {
	analyzer   *audio.SimpleVAD
	detector   *audio.SilenceDetector
	sampleRate uint32
	channels   uint16
	format     data.AudioFormat
	seen       bool
}

// NewSegmenter returns a fresh, uninitialized Segmenter node instance.
func NewSegmenter() node.Node {
	return &Segmenter{}
}

// Describe returns Segmenter's static descriptor.
func (s *Segmenter) Describe() node.Descriptor {
	return node.Descriptor{
		Type:          SegmenterType,
		Version:       "1.0.0",
		Category:      "audio",
		AcceptedKinds: []data.Kind{data.KindAudio},
		ProducedKinds: []data.Kind{data.KindAudio},
		Streaming:     true,
		Stateful:      true,
		ParamSchema:   segmenterParamSchema,
	}
}

// Init builds the session's analyzer and silence detector from the
// configured params, falling back to audio.DefaultVADParams and a 500ms
// silence threshold for anything left unspecified.
func (s *Segmenter) Init(ctx context.Context, params map[string]any, state node.StateHandle) error {
	p := audio.DefaultVADParams()
	if c, ok := params["confidence"].(float64); ok {
		p.Confidence = c
	}
	if v, ok := params["start_secs"].(float64); ok {
		p.StartSecs = v
	}
	if v, ok := params["stop_secs"].(float64); ok {
		p.StopSecs = v
	}
	if v, ok := params["min_volume"].(float64); ok {
		p.MinVolume = v
	}

	analyzer, err := audio.NewSimpleVAD(p)
	if err != nil {
		return fmt.Errorf("segmenter: %w", err)
	}

	thresholdMS := defaultSilenceThresholdMS
	if v, ok := params["silence_threshold_ms"].(float64); ok {
		thresholdMS = int(v)
	}

	s.analyzer = analyzer
	s.detector = audio.NewSilenceDetector(time.Duration(thresholdMS) * time.Millisecond)
	return nil
}

// ProcessChunk feeds env into the analyzer and segment buffer, returning a
// closed segment's envelope when this chunk crosses the closing silence
// boundary and nothing otherwise.
func (s *Segmenter) ProcessChunk(ctx context.Context, env data.Envelope) ([]data.Envelope, error) {
	if env.Kind != data.KindAudio || env.Audio == nil {
		return nil, node.NewError(SegmenterType, node.ErrorCodeInvalidInput, fmt.Errorf("segmenter: expected an audio envelope"))
	}
	if !s.seen {
		s.sampleRate = env.Audio.SampleRate
		s.channels = env.Audio.Channels
		s.format = env.Audio.Format
		s.seen = true
	}

	if _, err := s.analyzer.Analyze(ctx, env.Audio.Samples); err != nil {
		return nil, node.NewError(SegmenterType, node.ErrorCodeInvalidInput, err)
	}
	s.detector.Feed(env.Audio.Samples)

	segment, closed := s.detector.ProcessVADState(s.analyzer.State())
	if !closed {
		return nil, nil
	}
	return s.envelopeFor(segment, env.SessionID, env.SequenceOrZero())
}

// Flush emits any in-progress segment left buffered at end-of-stream.
func (s *Segmenter) Flush(ctx context.Context) ([]data.Envelope, error) {
	if s.detector == nil {
		return nil, nil
	}
	segment := s.detector.Flush()
	if segment == nil {
		return nil, nil
	}
	return s.envelopeFor(segment, "", 0)
}

// envelopeFor builds the output envelope for a closed segment, using the
// format of the first audio chunk this session observed.
func (s *Segmenter) envelopeFor(segment []byte, sessionID string, seq uint64) ([]data.Envelope, error) {
	width := s.format.SampleWidth()
	channels := int(s.channels)
	if channels == 0 {
		channels = 1
	}
	if width == 0 {
		width = 1
	}
	numSamples := uint64(len(segment) / (width * channels))

	out, err := data.NewAudio(segment, s.sampleRate, s.channels, s.format, numSamples)
	if err != nil {
		return nil, node.NewError(SegmenterType, node.ErrorCodeFatal, err)
	}
	out = out.WithSequence(seq)
	out.SessionID = sessionID
	return []data.Envelope{out}, nil
}

// Teardown is a no-op: Segmenter holds no external resources.
func (s *Segmenter) Teardown(ctx context.Context) error { return nil }
