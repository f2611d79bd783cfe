package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/remotemedia/runtime/data"
)

func TestSegmenterEmitsNothingWhileSpeechContinues(t *testing.T) {
	s := NewSegmenter()
	require.NoError(t, s.Init(context.Background(), map[string]any{
		"confidence":           float64(0),
		"start_secs":           float64(0),
		"min_volume":           float64(0),
		"silence_threshold_ms": float64(10_000),
	}, nil))

	loud := pcm16(20000, -20000, 20000, -20000, 20000, -20000, 20000, -20000)
	in, err := data.NewAudio(loud, 16000, 1, data.AudioFormatI16, 8)
	require.NoError(t, err)

	out, err := s.ProcessChunk(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSegmenterClosesSegmentAfterSilence(t *testing.T) {
	s := NewSegmenter()
	require.NoError(t, s.Init(context.Background(), map[string]any{
		"confidence":           float64(0.5),
		"start_secs":           float64(0),
		"stop_secs":            float64(0),
		"min_volume":           float64(0),
		"silence_threshold_ms": float64(0),
	}, nil))

	loud := pcm16(20000, -20000, 20000, -20000, 20000, -20000, 20000, -20000)
	in, err := data.NewAudio(loud, 16000, 1, data.AudioFormatI16, 8)
	require.NoError(t, err)

	// The smoothed RMS rises over three loud chunks: the first stays below
	// confidence 0.5, the second enters VADStateStarting and the third
	// VADStateSpeaking (start_secs=0).
	for range 3 {
		_, err = s.ProcessChunk(context.Background(), in)
		require.NoError(t, err)
	}

	quiet, err := data.NewAudio(pcm16(0, 0, 0, 0, 0, 0, 0, 0), 16000, 1, data.AudioFormatI16, 8)
	require.NoError(t, err)

	// As the smoothed RMS decays, quiet chunks walk the state machine
	// speaking -> stopping -> quiet, closing the segment once
	// silence_threshold_ms (0) has elapsed.
	var out []data.Envelope
	for range 3 {
		out, err = s.ProcessChunk(context.Background(), quiet)
		require.NoError(t, err)
		if len(out) > 0 {
			break
		}
	}
	require.Len(t, out, 1)
	assert.Equal(t, data.KindAudio, out[0].Kind)
	assert.NotZero(t, out[0].Audio.NumSamples)
}

func TestSegmenterFlushReturnsInProgressSegment(t *testing.T) {
	s := NewSegmenter()
	require.NoError(t, s.Init(context.Background(), map[string]any{
		"confidence": float64(0),
		"start_secs": float64(0),
		"min_volume": float64(0),
	}, nil))

	loud := pcm16(20000, -20000, 20000, -20000, 20000, -20000, 20000, -20000)
	in, err := data.NewAudio(loud, 16000, 1, data.AudioFormatI16, 8)
	require.NoError(t, err)

	// With confidence 0 the first chunk enters VADStateStarting and the
	// second VADStateSpeaking; Feed runs before the detector sees each new
	// state, so only the third chunk is buffered.
	for range 3 {
		_, err = s.ProcessChunk(context.Background(), in)
		require.NoError(t, err)
	}

	out, err := s.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, data.KindAudio, out[0].Kind)
}

func TestSegmenterRejectsNonAudioEnvelope(t *testing.T) {
	s := NewSegmenter()
	require.NoError(t, s.Init(context.Background(), map[string]any{}, nil))

	_, err := s.ProcessChunk(context.Background(), data.NewJSON(map[string]any{"a": 1}))
	assert.Error(t, err)
}
