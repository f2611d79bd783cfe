package builtin

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/remotemedia/runtime/data"
)

func pcm16(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestResampleDownsamplesAndPreservesSequence(t *testing.T) {
	r := NewResample()
	require.NoError(t, r.Init(context.Background(), map[string]any{"target_sample_rate": float64(8000)}, nil))

	in, err := data.NewAudio(pcm16(0, 100, 200, 300, 400, 500, 600, 700), 16000, 1, data.AudioFormatI16, 8)
	require.NoError(t, err)
	in = in.WithSequence(7)

	out, err := r.ProcessChunk(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, uint32(8000), out[0].Audio.SampleRate)
	assert.Equal(t, uint64(7), out[0].SequenceOrZero())
	assert.NotEmpty(t, out[0].Audio.Samples)
}

func TestResampleRejectsNonAudioEnvelope(t *testing.T) {
	r := NewResample()
	require.NoError(t, r.Init(context.Background(), map[string]any{"target_sample_rate": float64(8000)}, nil))

	_, err := r.ProcessChunk(context.Background(), data.NewJSON(map[string]any{"a": 1}))
	assert.Error(t, err)
}

func TestResampleInitRejectsMissingTargetRate(t *testing.T) {
	r := NewResample()
	assert.Error(t, r.Init(context.Background(), map[string]any{}, nil))
}
