package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/attalus-io/vestibule/internal/config"
)

func TestDiff_Identical(t *testing.T) {
	t.Parallel()

	old := config.DefaultConfig()
	new := config.DefaultConfig()
	c := config.Diff(old, new)
	assert.True(t, c.Empty(), "identical configs should diff empty: %+v", c)
}

func TestDiff_LogLevelIsHot(t *testing.T) {
	t.Parallel()

	old := config.DefaultConfig()
	new := config.DefaultConfig()
	new.System.LogLevel = config.LogDebug

	c := config.Diff(old, new)
	assert.True(t, c.LogLevelChanged, "log level change not detected")
	assert.Equal(t, config.LogDebug, c.NewLogLevel)
	assert.Empty(t, c.RestartRequired, "log level should not require a restart")
	assert.True(t, c.HotApplicable(), "log level change should be hot-applicable")
}

func TestDiff_VADTuningIsHot(t *testing.T) {
	t.Parallel()

	old := config.DefaultConfig()
	new := config.DefaultConfig()
	new.VAD.Threshold = 0.05

	c := config.Diff(old, new)
	assert.True(t, c.VADChanged, "vad change not detected")
	assert.Empty(t, c.RestartRequired, "vad tuning should not require a restart")
}

func TestDiff_WakePhrasesAreHot(t *testing.T) {
	t.Parallel()

	old := config.DefaultConfig()
	new := config.DefaultConfig()
	new.VoiceTrigger.Phrases = append(new.VoiceTrigger.Phrases, "вестибюль")

	c := config.Diff(old, new)
	assert.True(t, c.VoiceTriggerChanged, "wake phrase change not detected")
	assert.Empty(t, c.RestartRequired, "wake phrases should not require a restart")
}

func TestDiff_NLUAliasesAreHot(t *testing.T) {
	t.Parallel()

	old := config.DefaultConfig()
	new := config.DefaultConfig()
	new.NLU.ProviderAliases = map[string][]string{"openai": {"опенэйай"}}

	c := config.Diff(old, new)
	assert.True(t, c.NLUChanged, "alias change not detected")
	assert.Empty(t, c.RestartRequired, "aliases should not require a restart")
}

func TestDiff_LLMParametersVersusProvider(t *testing.T) {
	t.Parallel()

	old := config.DefaultConfig()
	tuned := config.DefaultConfig()
	tuned.LLM.Temperature = 0.9

	c := config.Diff(old, tuned)
	assert.True(t, c.LLMChanged, "temperature change not detected")
	assert.NotContains(t, c.RestartRequired, "llm", "generation parameters should not require a restart")

	swapped := config.DefaultConfig()
	swapped.LLM.Provider.Name = "ollama"

	c = config.Diff(old, swapped)
	assert.False(t, c.LLMChanged, "provider swap is not a hot parameter change")
	assert.Contains(t, c.RestartRequired, "llm", "provider swap should require a restart")
}

func TestDiff_TTSVoiceVersusChain(t *testing.T) {
	t.Parallel()

	old := config.DefaultConfig()
	voiced := config.DefaultConfig()
	voiced.TTS.Voice = "alloy"

	c := config.Diff(old, voiced)
	assert.True(t, c.TTSChanged, "voice change not detected")
	assert.NotContains(t, c.RestartRequired, "tts", "voice change should not require a restart")

	rechained := config.DefaultConfig()
	rechained.TTS.DefaultProvider = "openai"

	c = config.Diff(old, rechained)
	assert.Contains(t, c.RestartRequired, "tts", "provider chain change should require a restart")
}

func TestDiff_RestartSections(t *testing.T) {
	t.Parallel()

	old := config.DefaultConfig()
	new := config.DefaultConfig()
	new.System.WebPort = 9000
	new.Components[config.ComponentWeb] = true
	new.ASR.DefaultProvider = "whisper"

	c := config.Diff(old, new)
	for _, section := range []string{"system", "components", "asr"} {
		assert.Contains(t, c.RestartRequired, section)
	}
	assert.False(t, c.HotApplicable(), "no hot changes expected: %+v", c)
	assert.False(t, c.Empty(), "diff should not be empty")
}

func TestDiff_InputsRequireRestart(t *testing.T) {
	t.Parallel()

	old := config.DefaultConfig()
	new := config.DefaultConfig()
	new.Inputs.Microphone.Enabled = true

	c := config.Diff(old, new)
	assert.Contains(t, c.RestartRequired, "inputs", "input changes should require a restart")
}
