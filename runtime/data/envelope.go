// Package data defines the runtime data envelope — the typed value that
// flows along the edges of a pipeline graph.
package data

import (
	"fmt"
	"maps"
	"sync/atomic"
)

// Kind identifies which variant of the envelope is populated.
type Kind string

// Supported envelope kinds.
const (
	KindAudio   Kind = "audio"
	KindVideo   Kind = "video"
	KindText    Kind = "text"
	KindBinary  Kind = "binary"
	KindJSON    Kind = "json"
	KindControl Kind = "control"
)

// AudioFormat identifies the scalar encoding of an Audio payload.
type AudioFormat string

// Supported audio sample formats.
const (
	AudioFormatF32 AudioFormat = "f32"
	AudioFormatI16 AudioFormat = "i16"
	AudioFormatI32 AudioFormat = "i32"
)

// SampleWidth returns the byte width of a single scalar sample for the format.
func (f AudioFormat) SampleWidth() int {
	switch f {
	case AudioFormatF32, AudioFormatI32:
		return 4
	case AudioFormatI16:
		return 2
	default:
		return 0
	}
}

// Audio carries raw PCM-style audio samples.
type Audio struct {
	Samples    []byte
	SampleRate uint32
	Channels   uint16
	Format     AudioFormat
	NumSamples uint64
}

// Video carries a single raw video frame.
type Video struct {
	Pixels      []byte
	Width       uint32
	Height      uint32
	PixelFormat string
	FrameNumber uint64
	IsKeyframe  bool
}

// Text carries UTF-8 text.
type Text struct {
	UTF8 string
}

// Binary carries an opaque byte payload.
type Binary struct {
	Bytes []byte
}

// JSON carries an arbitrary structured value.
type JSON struct {
	Value any
}

// ControlKind identifies the kind of control signal carried by a Control envelope.
type ControlKind string

// Supported control kinds.
const (
	ControlStart ControlKind = "start"
	ControlStop  ControlKind = "stop"
	ControlFlush ControlKind = "flush"
	ControlClose ControlKind = "close"
)

// Control carries a session control signal. Control envelopes are never
// reordered relative to data envelopes of the same session.
type Control struct {
	Kind      ControlKind
	SessionID string
}

// bytesPerPixel returns the byte footprint of one pixel for a pixel format name.
// Unknown formats return 0, which callers treat as "cannot validate shape".
func bytesPerPixel(format string) int {
	switch format {
	case "gray8":
		return 1
	case "gray16", "yuyv422":
		return 2
	case "rgb24", "bgr24":
		return 3
	case "rgba32", "bgra32", "argb32":
		return 4
	default:
		return 0
	}
}

// InvalidDataError reports that an envelope's declared shape disagrees with
// its buffer contents.
type InvalidDataError struct {
	Kind   Kind
	Reason string
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("invalid %s data: %s", e.Kind, e.Reason)
}

// sharedBuffer is a reference-counted handle over a payload buffer, letting
// an edge with fan-out clone an Envelope cheaply: the underlying bytes are
// shared and only released (for pool-backed buffers) once every consumer has
// dropped its reference.
type sharedBuffer struct {
	refs    atomic.Int64
	release func()
}

func newSharedBuffer(release func()) *sharedBuffer {
	b := &sharedBuffer{release: release}
	b.refs.Store(1)
	return b
}

func (b *sharedBuffer) retain() {
	if b != nil {
		b.refs.Add(1)
	}
}

// Release drops one reference; when the last reference is dropped, the
// buffer's release hook (if any) runs. Safe to call on a nil buffer.
func (b *sharedBuffer) Release() {
	if b == nil {
		return
	}
	if b.refs.Add(-1) == 0 && b.release != nil {
		b.release()
	}
}

// Envelope is the tagged union of data variants that flows along pipeline
// edges, plus routing and ordering metadata. Envelopes are value-semantic:
// Clone shares large buffers by reference and deep-copies metadata.
type Envelope struct {
	Kind Kind

	Audio   *Audio
	Video   *Video
	Text    *Text
	Binary  *Binary
	JSON    *JSON
	Control *Control

	// Sequence is non-decreasing per (session, port). A nil Sequence means
	// the producer does not track ordering for this envelope.
	Sequence *uint64

	SessionID string
	Metadata  map[string]string

	buf *sharedBuffer
}

// NewAudio constructs an Audio envelope, validating that
// NumSamples * Channels * SampleWidth(Format) == len(Samples).
func NewAudio(samples []byte, sampleRate uint32, channels uint16, format AudioFormat, numSamples uint64) (Envelope, error) {
	width := format.SampleWidth()
	if width == 0 {
		return Envelope{}, &InvalidDataError{Kind: KindAudio, Reason: fmt.Sprintf("unsupported format %q", format)}
	}
	want := numSamples * uint64(channels) * uint64(width)
	if want != uint64(len(samples)) {
		return Envelope{}, &InvalidDataError{
			Kind: KindAudio,
			Reason: fmt.Sprintf("num_samples(%d)*channels(%d)*sample_width(%d)=%d != len(samples)=%d",
				numSamples, channels, width, want, len(samples)),
		}
	}
	return Envelope{
		Kind: KindAudio,
		Audio: &Audio{
			Samples:    samples,
			SampleRate: sampleRate,
			Channels:   channels,
			Format:     format,
			NumSamples: numSamples,
		},
	}, nil
}

// NewVideo constructs a Video envelope, validating that
// len(Pixels) == Width*Height*bytesPerPixel(PixelFormat) for known formats.
func NewVideo(pixels []byte, width, height uint32, pixelFormat string, frameNumber uint64, isKeyframe bool) (Envelope, error) {
	if bpp := bytesPerPixel(pixelFormat); bpp > 0 {
		want := uint64(width) * uint64(height) * uint64(bpp)
		if want != uint64(len(pixels)) {
			return Envelope{}, &InvalidDataError{
				Kind:   KindVideo,
				Reason: fmt.Sprintf("width(%d)*height(%d)*bytes_per_pixel(%d)=%d != len(pixels)=%d", width, height, bpp, want, len(pixels)),
			}
		}
	}
	return Envelope{
		Kind: KindVideo,
		Video: &Video{
			Pixels:      pixels,
			Width:       width,
			Height:      height,
			PixelFormat: pixelFormat,
			FrameNumber: frameNumber,
			IsKeyframe:  isKeyframe,
		},
	}, nil
}

// NewText constructs a Text envelope.
func NewText(utf8 string) Envelope {
	return Envelope{Kind: KindText, Text: &Text{UTF8: utf8}}
}

// NewBinary constructs a Binary envelope.
func NewBinary(b []byte) Envelope {
	return Envelope{Kind: KindBinary, Binary: &Binary{Bytes: b}}
}

// NewJSON constructs a JSON envelope.
func NewJSON(v any) Envelope {
	return Envelope{Kind: KindJSON, JSON: &JSON{Value: v}}
}

// NewControl constructs a Control envelope.
func NewControl(kind ControlKind, sessionID string) Envelope {
	return Envelope{Kind: KindControl, Control: &Control{Kind: kind, SessionID: sessionID}}
}

// WithPool attaches a release hook that runs once every clone of this
// envelope has been released, e.g. to return a pooled buffer.
func (e Envelope) WithPool(release func()) Envelope {
	e.buf = newSharedBuffer(release)
	return e
}

// Clone returns a cheap copy: Audio/Video/Binary payload buffers are shared
// by reference (refcounted), Metadata is deep-copied.
func (e Envelope) Clone() Envelope {
	out := e
	if e.buf != nil {
		e.buf.retain()
		out.buf = e.buf
	}
	if e.Metadata != nil {
		out.Metadata = make(map[string]string, len(e.Metadata))
		maps.Copy(out.Metadata, e.Metadata)
	}
	return out
}

// Release drops this envelope's reference to its shared buffer, if any.
func (e Envelope) Release() {
	e.buf.Release()
}

// Size returns an approximate payload size in bytes, for metrics.
func (e Envelope) Size() int {
	switch e.Kind {
	case KindAudio:
		if e.Audio != nil {
			return len(e.Audio.Samples)
		}
	case KindVideo:
		if e.Video != nil {
			return len(e.Video.Pixels)
		}
	case KindText:
		if e.Text != nil {
			return len(e.Text.UTF8)
		}
	case KindBinary:
		if e.Binary != nil {
			return len(e.Binary.Bytes)
		}
	}
	return 0
}

// SequenceOrZero returns the envelope's sequence number, or 0 if untracked.
func (e Envelope) SequenceOrZero() uint64 {
	if e.Sequence == nil {
		return 0
	}
	return *e.Sequence
}

// WithSequence returns a copy of the envelope with the given sequence number set.
func (e Envelope) WithSequence(seq uint64) Envelope {
	e.Sequence = &seq
	return e
}

// IsControl reports whether this envelope carries a control signal.
func (e Envelope) IsControl() bool {
	return e.Kind == KindControl
}
