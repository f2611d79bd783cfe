package builtin

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/remotemedia/runtime/data"
)

func pngFixture(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageResizeShrinksOversizedImage(t *testing.T) {
	r := NewImageResize()
	require.NoError(t, r.Init(context.Background(), map[string]any{
		"max_width":  float64(10),
		"max_height": float64(10),
	}, nil))

	in := data.NewBinary(pngFixture(t, 20, 20))
	out, err := r.ProcessChunk(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, data.KindBinary, out[0].Kind)
	assert.Equal(t, "true", out[0].Metadata["was_resized"])
	assert.Equal(t, "10", out[0].Metadata["width"])
}

func TestImageResizeSkipsImageAlreadyWithinBounds(t *testing.T) {
	r := NewImageResize()
	require.NoError(t, r.Init(context.Background(), map[string]any{
		"max_width":  float64(100),
		"max_height": float64(100),
	}, nil))

	in := data.NewBinary(pngFixture(t, 10, 10))
	out, err := r.ProcessChunk(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "false", out[0].Metadata["was_resized"])
}

func TestImageResizeRejectsNonBinaryEnvelope(t *testing.T) {
	r := NewImageResize()
	require.NoError(t, r.Init(context.Background(), map[string]any{}, nil))

	_, err := r.ProcessChunk(context.Background(), data.NewJSON(map[string]any{"a": 1}))
	assert.Error(t, err)
}

func TestImageResizeRejectsUndecodableBytes(t *testing.T) {
	r := NewImageResize()
	require.NoError(t, r.Init(context.Background(), map[string]any{}, nil))

	_, err := r.ProcessChunk(context.Background(), data.NewBinary([]byte("not an image")))
	assert.Error(t, err)
}
