package audio_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attalus-io/vestibule/pkg/audio"
)

// voicedFrame builds a 10ms frame at 16kHz with constant amplitude amp.
// Constant-sign data keeps the zero-crossing rate at zero.
func voicedFrame(amp int16) audio.AudioData {
	samples := make([]int16, 160)
	for i := range samples {
		samples[i] = amp
	}
	return audio.NewAudioData(samplesToBytes(samples), 16000, 1)
}

// noisyFrame builds a 10ms frame whose samples alternate sign every sample,
// giving maximal zero-crossing rate at the same energy as voicedFrame.
func noisyFrame(amp int16) audio.AudioData {
	samples := make([]int16, 160)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amp
		} else {
			samples[i] = -amp
		}
	}
	return audio.NewAudioData(samplesToBytes(samples), 16000, 1)
}

func silentFrame() audio.AudioData {
	return audio.NewAudioData(make([]byte, 320), 16000, 1)
}

func TestDetector_SingleFrameDoesNotOpen(t *testing.T) {
	d := audio.NewDetector(audio.VADConfig{
		Threshold:             0.01,
		VoiceFramesRequired:   3,
		SilenceFramesRequired: 2,
	})

	_, ok := d.ProcessFrame(voicedFrame(1000))
	require.False(t, ok, "segment emitted after one voiced frame")
	assert.Equal(t, audio.StateCandidateVoice, d.State())

	// A silent frame before the run completes is a false start.
	_, ok = d.ProcessFrame(silentFrame())
	require.False(t, ok, "segment emitted on false start")
	assert.Equal(t, audio.StateSilence, d.State())

	_, ok = d.Flush()
	assert.False(t, ok, "flush after false start returned a segment")
}

func TestDetector_OpensAndCloses(t *testing.T) {
	d := audio.NewDetector(audio.VADConfig{
		Threshold:             0.01,
		VoiceFramesRequired:   3,
		SilenceFramesRequired: 2,
	})

	for i := 0; i < 3; i++ {
		_, ok := d.ProcessFrame(voicedFrame(1000))
		require.False(t, ok, "segment emitted during voiced frame %d", i)
	}
	require.Equal(t, audio.StateVoice, d.State())

	_, ok := d.ProcessFrame(silentFrame())
	require.False(t, ok, "segment emitted on first silent frame")
	require.Equal(t, audio.StateCandidateSilence, d.State())

	seg, ok := d.ProcessFrame(silentFrame())
	require.True(t, ok, "no segment after the silence run completed")
	assert.Len(t, seg.Frames, 5)
	assert.Equal(t, 50*time.Millisecond, seg.Duration)
	assert.Equal(t, audio.StateSilence, d.State())
}

func TestDetector_SingleFrameRequirement(t *testing.T) {
	d := audio.NewDetector(audio.VADConfig{
		Threshold:             0.01,
		VoiceFramesRequired:   1,
		SilenceFramesRequired: 1,
	})

	_, ok := d.ProcessFrame(voicedFrame(1000))
	require.False(t, ok, "segment emitted while voice is ongoing")
	require.Equal(t, audio.StateVoice, d.State())

	seg, ok := d.ProcessFrame(silentFrame())
	require.True(t, ok, "single silent frame did not close the segment")
	assert.Len(t, seg.Frames, 2)
}

func TestDetector_CandidateSilenceRecovery(t *testing.T) {
	d := audio.NewDetector(audio.VADConfig{
		Threshold:             0.01,
		VoiceFramesRequired:   1,
		SilenceFramesRequired: 3,
	})

	d.ProcessFrame(voicedFrame(1000))
	d.ProcessFrame(silentFrame())
	d.ProcessFrame(silentFrame())
	require.Equal(t, audio.StateCandidateSilence, d.State())

	// Voice resumes: the pause stays inside the segment.
	_, ok := d.ProcessFrame(voicedFrame(1000))
	require.False(t, ok, "segment closed despite voice resuming")
	require.Equal(t, audio.StateVoice, d.State())

	var seg audio.VoiceSegment
	for i := 0; i < 3; i++ {
		seg, ok = d.ProcessFrame(silentFrame())
	}
	require.True(t, ok, "segment did not close after full silence run")
	assert.Len(t, seg.Frames, 7)
}

func TestDetector_TimeoutClosesSegment(t *testing.T) {
	d := audio.NewDetector(audio.VADConfig{
		Threshold:             0.01,
		VoiceFramesRequired:   1,
		SilenceFramesRequired: 10,
		MaxSegmentDuration:    50 * time.Millisecond,
	})

	var seg audio.VoiceSegment
	var ok bool
	for i := 0; i < 5; i++ {
		seg, ok = d.ProcessFrame(voicedFrame(1000))
		if i < 4 {
			require.False(t, ok, "segment closed early at frame %d", i)
		}
	}
	require.True(t, ok, "segment not closed at max duration")
	assert.Len(t, seg.Frames, 5)
	assert.Equal(t, 50*time.Millisecond, seg.Duration)
}

func TestDetector_Flush(t *testing.T) {
	d := audio.NewDetector(audio.VADConfig{
		Threshold:           0.01,
		VoiceFramesRequired: 1,
	})

	d.ProcessFrame(voicedFrame(1000))
	d.ProcessFrame(voicedFrame(1000))

	seg, ok := d.Flush()
	require.True(t, ok, "flush did not return the open segment")
	assert.Len(t, seg.Frames, 2)

	_, ok = d.Flush()
	assert.False(t, ok, "second flush returned a segment")
}

func TestDetector_ZCRGate(t *testing.T) {
	d := audio.NewDetector(audio.VADConfig{
		Threshold:           0.01,
		VoiceFramesRequired: 1,
		EnableZCR:           true,
		MaxVoiceZCR:         0.35,
	})

	// Loud but maximally crossing: hiss, not voice.
	d.ProcessFrame(noisyFrame(1000))
	assert.Equal(t, audio.StateSilence, d.State(), "noisy frame opened tracking")

	d.ProcessFrame(voicedFrame(1000))
	assert.Equal(t, audio.StateVoice, d.State(), "voiced frame ignored")
}

func TestDetector_SetThreshold(t *testing.T) {
	d := audio.NewDetector(audio.VADConfig{
		Threshold:           0.01,
		VoiceFramesRequired: 1,
	})

	// Amplitude 1000 is ~0.031 normalized RMS.
	d.SetThreshold(0.05)
	require.Equal(t, 0.05, d.Threshold())
	d.ProcessFrame(voicedFrame(1000))
	assert.Equal(t, audio.StateSilence, d.State(), "frame below raised threshold opened tracking")

	d.SetThreshold(0.02)
	d.ProcessFrame(voicedFrame(1000))
	assert.Equal(t, audio.StateVoice, d.State(), "frame above lowered threshold ignored")
}

func TestVoiceSegment_Combined(t *testing.T) {
	d := audio.NewDetector(audio.VADConfig{
		Threshold:             0.01,
		VoiceFramesRequired:   1,
		SilenceFramesRequired: 1,
	})

	d.ProcessFrame(voicedFrame(1000))
	d.ProcessFrame(voicedFrame(2000))
	seg, ok := d.ProcessFrame(silentFrame())
	require.True(t, ok, "segment did not close")

	combined := seg.Combined()
	assert.Len(t, combined.Data, 3*320)
	assert.Equal(t, 16000, combined.SampleRate)
	assert.Equal(t, 1, combined.Channels)

	ms, ok := combined.Meta(audio.MetaVoiceDurationMs)
	require.True(t, ok, "combined frame missing voice duration metadata")
	assert.Equal(t, int64(30), ms)
}

func TestVoiceSegment_NormalizeForASR(t *testing.T) {
	quiet := audio.VoiceSegment{
		Frames:   []audio.AudioData{voicedFrame(300)},
		Duration: 10 * time.Millisecond,
	}
	loud := audio.VoiceSegment{
		Frames:   []audio.AudioData{voicedFrame(20000)},
		Duration: 10 * time.Millisecond,
	}

	const target = 0.1

	boosted := quiet.NormalizeForASR(target)
	assert.InDelta(t, target, audio.RMS(boosted.Combined().Data), target*0.05, "boosted RMS")
	// Original frames must be untouched.
	assert.LessOrEqual(t, audio.RMS(quiet.Combined().Data), 0.02, "source segment mutated")

	// Louder than target: left alone.
	same := loud.NormalizeForASR(target)
	assert.Same(t, &loud.Frames[0].Data[0], &same.Frames[0].Data[0], "already-loud segment was rewritten")
}
