// Package media provides utilities for processing media content (images, video)
// that arrive as encoded bytes in a Binary envelope, rather than as a raw
// pixel buffer the engine can operate on directly.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"

	_ "image/gif" // Register GIF decoder

	_ "golang.org/x/image/webp" // Register WebP decoder
)

// Image format constants.
const (
	FormatJPEG = "jpeg"
	FormatJPG  = "jpg"
	FormatPNG  = "png"
	FormatGIF  = "gif"
	FormatWebP = "webp"
)

// MIME type constants.
const (
	MIMETypeJPEG = "image/jpeg"
	MIMETypePNG  = "image/png"
	MIMETypeGIF  = "image/gif"
	MIMETypeWebP = "image/webp"
)

// Default configuration values.
const (
	DefaultMaxWidth  = 1024
	DefaultMaxHeight = 1024
	DefaultQuality   = 85
	MinQuality       = 10

	// qualityStep is the fraction quality is multiplied by on each retry of
	// reduceToFitSize, until the encoded size fits maxSize or MinQuality is
	// reached.
	qualityStep = 0.9
)

// ImageResizeConfig bounds an ImageResize node's resize-and-re-encode pass
// over one decoded image.
type ImageResizeConfig struct {
	// MaxWidth is the maximum width in pixels (0 = no limit).
	MaxWidth int

	// MaxHeight is the maximum height in pixels (0 = no limit).
	MaxHeight int

	// MaxSizeBytes is the maximum encoded size in bytes (0 = no limit).
	// If exceeded after resize, quality is reduced iteratively.
	MaxSizeBytes int64

	// Quality is the encoding quality (1-100), used for JPEG output.
	// Default: 85.
	Quality int

	// Format is the output format ("jpeg", "png", "" = the decoded image's
	// format). Only "png" is encoded as PNG; every other format, including
	// a decoded GIF or WebP, is encoded as JPEG.
	Format string

	// PreserveAspectRatio maintains the original aspect ratio when resizing.
	// Default: true.
	PreserveAspectRatio bool

	// SkipIfSmaller skips processing if the image is already within limits.
	// Default: true.
	SkipIfSmaller bool
}

// DefaultImageResizeConfig returns sensible defaults for image resizing.
func DefaultImageResizeConfig() ImageResizeConfig {
	return ImageResizeConfig{
		MaxWidth:            DefaultMaxWidth,
		MaxHeight:           DefaultMaxHeight,
		Quality:             DefaultQuality,
		Format:              "", // Preserve original
		PreserveAspectRatio: true,
		SkipIfSmaller:       true,
	}
}

// ResizeResult describes what ResizeImage did to one image, for a caller to
// attach to its output envelope's metadata.
type ResizeResult struct {
	Data         []byte
	Format       string
	MIMEType     string
	Width        int
	Height       int
	OriginalSize int64
	NewSize      int64
	WasResized   bool
}

// ResizeImage decodes an encoded image, resizes it to fit within config's
// bounds, and re-encodes it. Returns the resized image data, format, and any
// error.
func ResizeImage(data []byte, config ImageResizeConfig) (*ResizeResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	origWidth := bounds.Dx()
	origHeight := bounds.Dy()

	targetWidth, targetHeight := calculateTargetDimensions(
		origWidth, origHeight,
		config.MaxWidth, config.MaxHeight,
		config.PreserveAspectRatio,
	)

	needsResize := targetWidth < origWidth || targetHeight < origHeight
	if config.SkipIfSmaller && !needsResize {
		return &ResizeResult{
			Data:         data,
			Format:       format,
			MIMEType:     formatToMIMEType(format),
			Width:        origWidth,
			Height:       origHeight,
			OriginalSize: int64(len(data)),
			NewSize:      int64(len(data)),
			WasResized:   false,
		}, nil
	}

	resizedImg := img
	if needsResize {
		resizedImg = resizeImageInternal(img, targetWidth, targetHeight)
	}

	outputFormat := config.Format
	if outputFormat == "" {
		outputFormat = format
	}

	quality := config.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}

	encoded, err := encodeImage(resizedImg, outputFormat, quality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	if config.MaxSizeBytes > 0 && int64(len(encoded)) > config.MaxSizeBytes {
		encoded, err = reduceToFitSize(resizedImg, outputFormat, quality, config.MaxSizeBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to reduce image size: %w", err)
		}
	}

	finalBounds := resizedImg.Bounds()
	return &ResizeResult{
		Data:         encoded,
		Format:       outputFormat,
		MIMEType:     formatToMIMEType(outputFormat),
		Width:        finalBounds.Dx(),
		Height:       finalBounds.Dy(),
		OriginalSize: int64(len(data)),
		NewSize:      int64(len(encoded)),
		WasResized:   needsResize || outputFormat != format,
	}, nil
}

// calculateTargetDimensions applies maxWidth/maxHeight constraints to
// origWidth/origHeight, scaling both dimensions together when preserveAspect
// holds so the image is never distorted.
func calculateTargetDimensions(
	origWidth, origHeight, maxWidth, maxHeight int,
	preserveAspect bool,
) (targetWidth, targetHeight int) {
	targetWidth = origWidth
	targetHeight = origHeight

	if maxWidth > 0 && targetWidth > maxWidth {
		if preserveAspect {
			ratio := float64(maxWidth) / float64(targetWidth)
			targetWidth = maxWidth
			targetHeight = int(float64(targetHeight) * ratio)
		} else {
			targetWidth = maxWidth
		}
	}

	if maxHeight > 0 && targetHeight > maxHeight {
		if preserveAspect {
			ratio := float64(maxHeight) / float64(targetHeight)
			targetHeight = maxHeight
			targetWidth = int(float64(targetWidth) * ratio)
		} else {
			targetHeight = maxHeight
		}
	}

	if targetWidth < 1 {
		targetWidth = 1
	}
	if targetHeight < 1 {
		targetHeight = 1
	}

	return targetWidth, targetHeight
}

// resizeImageInternal scales src to width x height using CatmullRom
// resampling, a close approximation of Lanczos suited to downscaling.
func resizeImageInternal(src image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// encodeImage encodes img to the given format. Formats other than PNG fall
// back to JPEG at the given quality.
func encodeImage(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case FormatPNG:
		err = png.Encode(&buf, img)
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	}

	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// reduceToFitSize re-encodes img at progressively lower quality (each step
// multiplying by qualityStep) until the result fits within maxSize or
// MinQuality is reached, whichever comes first.
func reduceToFitSize(img image.Image, format string, startQuality int, maxSize int64) ([]byte, error) {
	quality := startQuality

	for quality >= MinQuality {
		encoded, err := encodeImage(img, format, quality)
		if err != nil {
			return nil, err
		}
		if int64(len(encoded)) <= maxSize {
			return encoded, nil
		}
		quality = int(float64(quality) * qualityStep)
	}

	return encodeImage(img, format, MinQuality)
}

// formatToMIMEType converts a format string to MIME type.
func formatToMIMEType(format string) string {
	switch format {
	case FormatJPEG, FormatJPG:
		return MIMETypeJPEG
	case FormatPNG:
		return MIMETypePNG
	case FormatGIF:
		return MIMETypeGIF
	case FormatWebP:
		return MIMETypeWebP
	default:
		return MIMETypeJPEG
	}
}

// MIMETypeToFormat converts a MIME type to format string.
func MIMETypeToFormat(mimeType string) string {
	switch mimeType {
	case MIMETypeJPEG:
		return FormatJPEG
	case MIMETypePNG:
		return FormatPNG
	case MIMETypeGIF:
		return FormatGIF
	case MIMETypeWebP:
		return FormatWebP
	default:
		return FormatJPEG
	}
}
