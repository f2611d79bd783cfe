package audio

import (
	"sync"
	"time"
)

// SilenceDetector segments a continuous audio stream into discrete
// utterances: it accumulates chunks while speech is in progress and closes
// the segment once silence following that speech exceeds Threshold.
type SilenceDetector struct {
	// Threshold is the silence duration required to close a segment.
	Threshold time.Duration

	mu           sync.Mutex
	silenceStart time.Time
	inSilence    bool
	userSpeaking bool
	audioBuffer  []byte
	lastVADState VADState
	hadSpeech    bool
}

// NewSilenceDetector creates a SilenceDetector with the given threshold.
func NewSilenceDetector(threshold time.Duration) *SilenceDetector {
	return &SilenceDetector{
		Threshold:    threshold,
		silenceStart: time.Now(),
		inSilence:    true,
		lastVADState: VADStateQuiet,
	}
}

// Name returns the detector identifier.
func (d *SilenceDetector) Name() string {
	return "silence"
}

// Feed appends audio to the segment currently being accumulated. It is a
// no-op before the first VADStateSpeaking transition. Call it before
// ProcessVADState for the same chunk so a chunk that itself crosses the
// silence boundary is still included in the segment it closes.
func (d *SilenceDetector) Feed(audio []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.userSpeaking || d.hadSpeech {
		d.audioBuffer = append(d.audioBuffer, audio...)
	}
}

// ProcessVADState applies a VAD state transition. When accumulated silence
// following speech reaches Threshold it closes the segment, returning its
// buffered audio and true; otherwise it returns nil, false.
func (d *SilenceDetector) ProcessVADState(state VADState) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	prevState := d.lastVADState
	d.lastVADState = state

	switch state {
	case VADStateSpeaking:
		d.userSpeaking = true
		d.hadSpeech = true
		d.inSilence = false

	case VADStateStopping:
		if prevState == VADStateSpeaking {
			d.silenceStart = now
			d.inSilence = true
		}

	case VADStateQuiet:
		if d.hadSpeech && d.inSilence {
			if now.Sub(d.silenceStart) >= d.Threshold {
				return d.closeSegment(), true
			}
		} else if !d.inSilence {
			d.silenceStart = now
			d.inSilence = true
		}
		d.userSpeaking = false

	case VADStateStarting:
		d.inSilence = false
	}

	return nil, false
}

// closeSegment returns and clears the buffered audio; the result is non-nil
// even when no audio was fed. Must be called with mu held.
func (d *SilenceDetector) closeSegment() []byte {
	segment := d.audioBuffer
	if segment == nil {
		segment = []byte{}
	}
	d.audioBuffer = nil
	d.hadSpeech = false
	d.userSpeaking = false
	return segment
}

// IsUserSpeaking reports whether speech is in progress: it is true from a
// VADStateSpeaking transition until the next VADStateQuiet. After that
// Quiet the segment keeps accumulating fed audio until it closes, while
// IsUserSpeaking already reports false.
func (d *SilenceDetector) IsUserSpeaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.userSpeaking
}

// Reset clears all state for a new stream.
func (d *SilenceDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.silenceStart = time.Now()
	d.inSilence = true
	d.userSpeaking = false
	d.audioBuffer = nil
	d.lastVADState = VADStateQuiet
	d.hadSpeech = false
}

// Flush closes and returns any in-progress segment, e.g. at end of stream.
// Returns nil if no speech has been accumulated.
func (d *SilenceDetector) Flush() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.hadSpeech || len(d.audioBuffer) == 0 {
		return nil
	}
	return d.closeSegment()
}
