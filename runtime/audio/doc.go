// Package audio provides PCM sample-rate conversion, voice activity
// detection (VAD), and silence-based segmentation for audio envelopes
// flowing through the engine.
//
//   - Resample: linear-interpolation PCM16 sample-rate conversion
//   - VAD: RMS-threshold voice activity detection with a smoothed,
//     hysteresis-based state machine (quiet/starting/speaking/stopping)
//   - SilenceDetector: groups a continuous stream into discrete segments,
//     closing one once silence following speech exceeds a threshold
//
// # Usage Example
//
//	vad, _ := audio.NewSimpleVAD(audio.DefaultVADParams())
//	segmenter := audio.NewSilenceDetector(500 * time.Millisecond)
//
//	for chunk := range audioStream {
//	    vad.Analyze(ctx, chunk)
//	    segmenter.Feed(chunk)
//	    if segment, closed := segmenter.ProcessVADState(vad.State()); closed {
//	        // segment holds one complete utterance
//	    }
//	}
package audio
