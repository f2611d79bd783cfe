package builtin

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/AltairaLabs/remotemedia/runtime/audio"
	"github.com/AltairaLabs/remotemedia/runtime/data"
	"github.com/AltairaLabs/remotemedia/runtime/node"
)

// ResampleType is the manifest-facing node_type for Resample.
const ResampleType = "resample"

var resampleParamSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"target_sample_rate": map[string]any{"type": "integer", "minimum": 1},
	},
	"required":             []any{"target_sample_rate"},
	"additionalProperties": false,
}

// Resample converts audio envelopes to a target sample rate using linear
// interpolation. AudioFormatI16 is handled by audio.ResamplePCM16 directly;
// AudioFormatF32 uses resampleF32 below, which applies the same
// interpolation to float32 scalars. AudioFormatI32 is not supported.
type Resample struct {
	targetRate int
}

// NewResample returns a fresh, uninitialized Resample node instance.
func NewResample() node.Node {
	return &Resample{}
}

// Describe returns Resample's static descriptor.
func (r *Resample) Describe() node.Descriptor {
	return node.Descriptor{
		Type:          ResampleType,
		Version:       "1.0.0",
		Category:      "audio",
		AcceptedKinds: []data.Kind{data.KindAudio},
		ProducedKinds: []data.Kind{data.KindAudio},
		Streaming:     true,
		ParamSchema:   resampleParamSchema,
	}
}

// Init reads target_sample_rate from params.
func (r *Resample) Init(ctx context.Context, params map[string]any, state node.StateHandle) error {
	rate, ok := params["target_sample_rate"].(float64)
	if !ok || rate <= 0 {
		return fmt.Errorf("resample: target_sample_rate must be a positive number")
	}
	r.targetRate = int(rate)
	return nil
}

// ProcessChunk resamples env's audio samples to the configured target rate.
func (r *Resample) ProcessChunk(ctx context.Context, env data.Envelope) ([]data.Envelope, error) {
	if env.Kind != data.KindAudio || env.Audio == nil {
		return nil, node.NewError(ResampleType, node.ErrorCodeInvalidInput, fmt.Errorf("resample: expected an audio envelope"))
	}

	var resampled []byte
	var err error
	switch env.Audio.Format {
	case data.AudioFormatI16:
		resampled, err = audio.ResamplePCM16(env.Audio.Samples, int(env.Audio.SampleRate), r.targetRate)
	case data.AudioFormatF32:
		resampled, err = resampleF32(env.Audio.Samples, int(env.Audio.SampleRate), r.targetRate)
	default:
		err = fmt.Errorf("resample: unsupported audio format %q", env.Audio.Format)
	}
	if err != nil {
		return nil, node.NewError(ResampleType, node.ErrorCodeInvalidInput, err)
	}

	width := env.Audio.Format.SampleWidth()
	channels := int(env.Audio.Channels)
	if channels == 0 {
		channels = 1
	}
	numSamples := uint64(len(resampled) / (width * channels))

	out, err := data.NewAudio(resampled, uint32(r.targetRate), env.Audio.Channels, env.Audio.Format, numSamples)
	if err != nil {
		return nil, node.NewError(ResampleType, node.ErrorCodeFatal, err)
	}
	out = out.WithSequence(env.SequenceOrZero())
	out.SessionID = env.SessionID
	return []data.Envelope{out}, nil
}

// resampleF32 applies audio.ResamplePCM16's linear-interpolation algorithm
// to little-endian float32 scalars instead of int16 PCM, for envelopes
// carrying AudioFormatF32 samples (e.g. raw microphone capture buffers).
func resampleF32(input []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates: from=%d, to=%d", fromRate, toRate)
	}
	if fromRate == toRate {
		out := make([]byte, len(input))
		copy(out, input)
		return out, nil
	}

	const bytesPerSample = 4
	if len(input)%bytesPerSample != 0 {
		return nil, fmt.Errorf("input length %d is not a multiple of %d bytes per sample", len(input), bytesPerSample)
	}

	numInputSamples := len(input) / bytesPerSample
	if numInputSamples == 0 {
		return []byte{}, nil
	}

	numOutputSamples := int(float64(numInputSamples) * float64(toRate) / float64(fromRate))
	if numOutputSamples == 0 {
		return []byte{}, nil
	}

	in := make([]float32, numInputSamples)
	for i := range in {
		in[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*bytesPerSample:]))
	}

	out := make([]float32, numOutputSamples)
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		if srcIdx >= numInputSamples-1 {
			out[i] = in[numInputSamples-1]
		} else {
			s0, s1 := float64(in[srcIdx]), float64(in[srcIdx+1])
			out[i] = float32(s0 + frac*(s1-s0))
		}
	}

	result := make([]byte, numOutputSamples*bytesPerSample)
	for i, s := range out {
		binary.LittleEndian.PutUint32(result[i*bytesPerSample:], math.Float32bits(s))
	}
	return result, nil
}

// Flush is a no-op: Resample carries no partial frame across chunks since
// linear interpolation only consumes the samples it's given.
func (r *Resample) Flush(ctx context.Context) ([]data.Envelope, error) { return nil, nil }

// Teardown is a no-op: Resample holds no resources.
func (r *Resample) Teardown(ctx context.Context) error { return nil }
