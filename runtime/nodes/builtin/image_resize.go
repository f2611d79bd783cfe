package builtin

import (
	"context"
	"fmt"

	"github.com/AltairaLabs/remotemedia/runtime/data"
	"github.com/AltairaLabs/remotemedia/runtime/media"
	"github.com/AltairaLabs/remotemedia/runtime/node"
)

// ImageResizeType is the manifest-facing node_type for ImageResize.
const ImageResizeType = "image_resize"

var imageResizeParamSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"max_width":       map[string]any{"type": "integer", "minimum": 0},
		"max_height":      map[string]any{"type": "integer", "minimum": 0},
		"max_size_bytes":  map[string]any{"type": "integer", "minimum": 0},
		"quality":         map[string]any{"type": "integer", "minimum": 1, "maximum": 100},
		"format":          map[string]any{"type": "string", "enum": []any{"", "jpeg", "png"}},
		"skip_if_smaller": map[string]any{"type": "boolean"},
	},
	"additionalProperties": false,
}

// ImageResize decodes a binary envelope's encoded image bytes, resizes it to
// fit within the configured bounds, and re-encodes it. The output format and
// original/resized dimensions are attached to the output envelope's metadata
// rather than modeled as a dedicated image kind, since ResizeImage works in
// terms of encoded bytes, not raw pixel buffers.
type ImageResize struct {
	config media.ImageResizeConfig
}

// NewImageResize returns a fresh, uninitialized ImageResize node instance.
func NewImageResize() node.Node {
	return &ImageResize{}
}

// Describe returns ImageResize's static descriptor.
func (r *ImageResize) Describe() node.Descriptor {
	return node.Descriptor{
		Type:          ImageResizeType,
		Version:       "1.0.0",
		Category:      "image",
		AcceptedKinds: []data.Kind{data.KindBinary},
		ProducedKinds: []data.Kind{data.KindBinary},
		Streaming:     true,
		ParamSchema:   imageResizeParamSchema,
	}
}

// Init builds the resize configuration from params, falling back to
// media.DefaultImageResizeConfig for anything left unspecified.
func (r *ImageResize) Init(ctx context.Context, params map[string]any, state node.StateHandle) error {
	cfg := media.DefaultImageResizeConfig()
	if v, ok := params["max_width"].(float64); ok {
		cfg.MaxWidth = int(v)
	}
	if v, ok := params["max_height"].(float64); ok {
		cfg.MaxHeight = int(v)
	}
	if v, ok := params["max_size_bytes"].(float64); ok {
		cfg.MaxSizeBytes = int64(v)
	}
	if v, ok := params["quality"].(float64); ok {
		cfg.Quality = int(v)
	}
	if v, ok := params["format"].(string); ok {
		cfg.Format = v
	}
	if v, ok := params["skip_if_smaller"].(bool); ok {
		cfg.SkipIfSmaller = v
	}
	r.config = cfg
	return nil
}

// ProcessChunk resizes env's encoded image bytes per the configured bounds.
func (r *ImageResize) ProcessChunk(ctx context.Context, env data.Envelope) ([]data.Envelope, error) {
	if env.Kind != data.KindBinary || env.Binary == nil {
		return nil, node.NewError(ImageResizeType, node.ErrorCodeInvalidInput, fmt.Errorf("image_resize: expected a binary envelope"))
	}

	result, err := media.ResizeImage(env.Binary.Bytes, r.config)
	if err != nil {
		return nil, node.NewError(ImageResizeType, node.ErrorCodeInvalidInput, err)
	}

	out := data.NewBinary(result.Data)
	out = out.WithSequence(env.SequenceOrZero())
	out.SessionID = env.SessionID
	out.Metadata = map[string]string{
		"format":      result.Format,
		"mime_type":   result.MIMEType,
		"width":       fmt.Sprintf("%d", result.Width),
		"height":      fmt.Sprintf("%d", result.Height),
		"was_resized": fmt.Sprintf("%t", result.WasResized),
	}
	return []data.Envelope{out}, nil
}

// Flush is a no-op: ImageResize carries no state across chunks, each image
// is resized independently.
func (r *ImageResize) Flush(ctx context.Context) ([]data.Envelope, error) { return nil, nil }

// Teardown is a no-op: ImageResize holds no resources.
func (r *ImageResize) Teardown(ctx context.Context) error { return nil }
