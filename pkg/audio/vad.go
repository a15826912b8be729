package audio

import "time"

// VADState enumerates the detector's hysteresis states.
type VADState int

const (
	// StateSilence means no voice is being tracked.
	StateSilence VADState = iota

	// StateCandidateVoice means energy rose above the threshold but not yet
	// for enough consecutive frames to open a segment.
	StateCandidateVoice

	// StateVoice means a segment is open and collecting frames.
	StateVoice

	// StateCandidateSilence means energy dropped below the threshold inside
	// an open segment but not yet for enough consecutive frames to close it.
	StateCandidateSilence
)

// String returns the lowercase state name.
func (s VADState) String() string {
	switch s {
	case StateSilence:
		return "silence"
	case StateCandidateVoice:
		return "candidate_voice"
	case StateVoice:
		return "voice"
	case StateCandidateSilence:
		return "candidate_silence"
	default:
		return "unknown"
	}
}

// VADConfig tunes the energy detector.
type VADConfig struct {
	// Threshold is the normalized RMS energy above which a frame counts as
	// voice. See EstimateOptimalThreshold for deriving one from a noise floor.
	Threshold float64

	// VoiceFramesRequired is how many consecutive voiced frames open a
	// segment. 1 opens on the first voiced frame.
	VoiceFramesRequired int

	// SilenceFramesRequired is how many consecutive silent frames close an
	// open segment.
	SilenceFramesRequired int

	// MaxSegmentDuration closes a segment immediately once its voice span
	// reaches this length, voiced or not.
	MaxSegmentDuration time.Duration

	// EnableZCR gates voiced frames on zero-crossing rate as well: frames
	// with ZCR above MaxVoiceZCR are treated as noise even when loud.
	EnableZCR bool

	// MaxVoiceZCR is the upper ZCR bound for voiced frames when EnableZCR is
	// set.
	MaxVoiceZCR float64
}

// withDefaults fills zero fields with working defaults.
func (c VADConfig) withDefaults() VADConfig {
	if c.Threshold <= 0 {
		c.Threshold = 0.01
	}
	if c.VoiceFramesRequired <= 0 {
		c.VoiceFramesRequired = 3
	}
	if c.SilenceFramesRequired <= 0 {
		c.SilenceFramesRequired = 10
	}
	if c.MaxSegmentDuration <= 0 {
		c.MaxSegmentDuration = 10 * time.Second
	}
	if c.MaxVoiceZCR <= 0 {
		c.MaxVoiceZCR = 0.35
	}
	return c
}

// Detector is the hysteretic voice activity detector. Feed it frames in
// arrival order; it emits a VoiceSegment when an utterance ends (voice to
// silence transition or segment timeout).
//
// Not safe for concurrent use; create one per audio stream.
type Detector struct {
	cfg        VADConfig
	state      VADState
	voiceRun   int
	silenceRun int
	frames     []AudioData
	duration   time.Duration
}

// NewDetector creates a detector with the given configuration. Zero config
// fields fall back to defaults.
func NewDetector(cfg VADConfig) *Detector {
	return &Detector{cfg: cfg.withDefaults()}
}

// State returns the current hysteresis state.
func (d *Detector) State() VADState {
	return d.state
}

// Threshold returns the active energy threshold.
func (d *Detector) Threshold() float64 {
	return d.cfg.Threshold
}

// SetThreshold replaces the energy threshold. Applies from the next frame;
// used for hot configuration updates.
func (d *Detector) SetThreshold(t float64) {
	if t > 0 {
		d.cfg.Threshold = t
	}
}

// ProcessFrame advances the state machine with one frame. When the frame
// completes an utterance, the closed segment is returned with ok=true.
func (d *Detector) ProcessFrame(frame AudioData) (seg VoiceSegment, ok bool) {
	voiced := d.isVoiced(frame)

	switch d.state {
	case StateSilence:
		if !voiced {
			return VoiceSegment{}, false
		}
		d.voiceRun = 1
		d.frames = append(d.frames[:0], frame)
		d.duration = frame.Duration()
		if d.voiceRun >= d.cfg.VoiceFramesRequired {
			d.state = StateVoice
		} else {
			d.state = StateCandidateVoice
		}

	case StateCandidateVoice:
		if !voiced {
			// False start: drop the candidate buffer.
			d.reset(StateSilence)
			return VoiceSegment{}, false
		}
		d.voiceRun++
		d.append(frame)
		if d.voiceRun >= d.cfg.VoiceFramesRequired {
			d.state = StateVoice
		}

	case StateVoice:
		d.append(frame)
		if !voiced {
			d.silenceRun = 1
			if d.silenceRun >= d.cfg.SilenceFramesRequired {
				return d.close(), true
			}
			d.state = StateCandidateSilence
		}

	case StateCandidateSilence:
		d.append(frame)
		if voiced {
			d.silenceRun = 0
			d.state = StateVoice
		} else {
			d.silenceRun++
			if d.silenceRun >= d.cfg.SilenceFramesRequired {
				return d.close(), true
			}
		}
	}

	// Timeout close applies to any open segment.
	if d.state == StateVoice || d.state == StateCandidateSilence {
		if d.duration >= d.cfg.MaxSegmentDuration {
			return d.close(), true
		}
	}
	return VoiceSegment{}, false
}

// Flush closes and returns any open segment. Candidate buffers that never
// reached the voice state are discarded.
func (d *Detector) Flush() (VoiceSegment, bool) {
	if d.state == StateVoice || d.state == StateCandidateSilence {
		return d.close(), true
	}
	d.reset(StateSilence)
	return VoiceSegment{}, false
}

// Reset discards all buffered state and returns to silence.
func (d *Detector) Reset() {
	d.reset(StateSilence)
}

func (d *Detector) isVoiced(frame AudioData) bool {
	if RMS(frame.Data) <= d.cfg.Threshold {
		return false
	}
	if d.cfg.EnableZCR && ZCR(frame.Data) > d.cfg.MaxVoiceZCR {
		return false
	}
	return true
}

func (d *Detector) append(frame AudioData) {
	d.frames = append(d.frames, frame)
	d.duration += frame.Duration()
}

func (d *Detector) close() VoiceSegment {
	frames := make([]AudioData, len(d.frames))
	copy(frames, d.frames)
	seg := VoiceSegment{Frames: frames, Duration: d.duration}
	d.reset(StateSilence)
	return seg
}

func (d *Detector) reset(state VADState) {
	d.state = state
	d.voiceRun = 0
	d.silenceRun = 0
	d.frames = d.frames[:0]
	d.duration = 0
}
