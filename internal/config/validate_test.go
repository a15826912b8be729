package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attalus-io/vestibule/internal/config"
)

func hasIssue(issues []config.Issue, substr string) bool {
	for _, is := range issues {
		if strings.Contains(is.String(), substr) {
			return true
		}
	}
	return false
}

func issueStrings(issues []config.Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.String()
	}
	return out
}

func TestValidate_DefaultConfigClean(t *testing.T) {
	t.Parallel()

	res := config.Validate(config.DefaultConfig())
	require.True(t, res.Valid(), "default config should be valid: %v", res.Err())
	assert.Empty(t, res.Warnings, "default config should produce no warnings: %v", issueStrings(res.Warnings))
	assert.Empty(t, res.Infos, "default config should produce no infos: %v", issueStrings(res.Infos))
}

func TestValidate_PortConflict(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.System.MetricsPort = cfg.System.WebPort
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Errors, "conflicts with web port"),
		"expected port conflict error, got: %v", issueStrings(res.Errors))
}

func TestValidate_DefaultInputDisabled(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Inputs.Default = config.InputMicrophone
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Errors, `default input "microphone" is not enabled`),
		"expected disabled-default error, got: %v", issueStrings(res.Errors))
}

func TestValidate_NoInputsEnabled(t *testing.T) {
	t.Parallel()

	off := false
	cfg := config.DefaultConfig()
	cfg.Inputs.CLI.Enabled = &off
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Errors, "no input sources enabled"),
		"expected no-inputs error, got: %v", issueStrings(res.Errors))
}

func TestValidate_UnknownDefaultInput(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Inputs.Default = "telepathy"
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Errors, `unknown input "telepathy"`),
		"expected unknown-input error, got: %v", issueStrings(res.Errors))
}

func TestValidate_StageWithoutComponent(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Workflows.UnifiedVoiceAssistant.ASREnabled = true
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Errors, "stage requires the asr component"),
		"expected stage/component mismatch error, got: %v", issueStrings(res.Errors))
}

func TestValidate_ComponentWithoutStage(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Components[config.ComponentLLM] = true
	cfg.LLM.Provider.Name = "ollama"
	res := config.Validate(cfg)
	require.True(t, res.Valid(), "unexpected errors: %v", issueStrings(res.Errors))
	assert.True(t, hasIssue(res.Warnings, "no pipeline stage uses it"),
		"expected unused-component warning, got: %v", issueStrings(res.Warnings))
}

func TestValidate_TTSRequiresPlayback(t *testing.T) {
	t.Parallel()

	off := false
	cfg := config.DefaultConfig()
	cfg.System.AudioPlaybackEnabled = &off
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Errors, "tts component requires system.audio_playback_enabled"),
		"expected playback requirement error, got: %v", issueStrings(res.Errors))
}

func TestValidate_WebInputRequiresWebComponent(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Inputs.Web.Enabled = true
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Errors, "web input requires the web component"),
		"expected web component error, got: %v", issueStrings(res.Errors))
}

func TestValidate_BlankWakePhrase(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Components[config.ComponentVoiceTrigger] = true
	cfg.Workflows.UnifiedVoiceAssistant.VoiceTriggerEnabled = true
	cfg.VoiceTrigger.Phrases = []string{"джарвис", "   "}
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Errors, "blank wake phrase"),
		"expected blank-phrase error, got: %v", issueStrings(res.Errors))
}

func TestValidate_VADBounds(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.VAD.Threshold = 1.5
	cfg.VAD.VoiceFramesRequired = 0
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Errors, "vad.threshold"),
		"expected threshold error, got: %v", issueStrings(res.Errors))
	assert.True(t, hasIssue(res.Errors, "vad.voice_frames_required"),
		"expected frame count error, got: %v", issueStrings(res.Errors))

	high := config.DefaultConfig()
	high.VAD.Threshold = 0.5
	res = config.Validate(high)
	require.True(t, res.Valid(), "high threshold should not be fatal: %v", issueStrings(res.Errors))
	assert.True(t, hasIssue(res.Warnings, "very high"),
		"expected high-threshold warning, got: %v", issueStrings(res.Warnings))
}

func TestValidate_TTSSpeedOutOfRange(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.TTS.Speed = 3.0
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Errors, "speed 3.00 out of range"),
		"expected speed error, got: %v", issueStrings(res.Errors))
}

func TestValidate_LLMTemperatureOutOfRange(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Components[config.ComponentLLM] = true
	cfg.Workflows.UnifiedVoiceAssistant.LLMEnabled = true
	cfg.LLM.Provider.Name = "ollama"
	cfg.LLM.Temperature = 2.5
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Errors, "temperature 2.50 out of range"),
		"expected temperature error, got: %v", issueStrings(res.Errors))
}

func TestValidate_LLMWithoutProvider(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Components[config.ComponentLLM] = true
	cfg.Workflows.UnifiedVoiceAssistant.LLMEnabled = true
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Errors, "no provider configured"),
		"expected missing-provider error, got: %v", issueStrings(res.Errors))
}

func TestValidate_DuplicateProviderEntries(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.TTS.Providers = []config.ProviderEntry{
		{Name: "openai"},
		{Name: "openai"},
	}
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Errors, `duplicate provider entry "openai" (first at index 0)`),
		"expected duplicate error, got: %v", issueStrings(res.Errors))
}

func TestValidate_UnknownProviderWarns(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.ASR.Providers = []config.ProviderEntry{{Name: "kaldi"}}
	res := config.Validate(cfg)
	require.True(t, res.Valid(), "unknown provider should not be fatal: %v", issueStrings(res.Errors))
	assert.True(t, hasIssue(res.Warnings, `unknown asr provider "kaldi"`),
		"expected unknown-provider warning, got: %v", issueStrings(res.Warnings))
}

func TestValidate_DefaultProviderUnavailable(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.NLU.DefaultProvider = "bert"
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Errors, `default provider "bert" is not available`),
		"expected unavailable-default error, got: %v", issueStrings(res.Errors))
}

func TestValidate_DefaultProviderDisabled(t *testing.T) {
	t.Parallel()

	off := false
	cfg := config.DefaultConfig()
	cfg.TTS.Providers = []config.ProviderEntry{{Name: "console", Enabled: &off}}
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Errors, `default provider "console" is disabled`),
		"expected disabled-default error, got: %v", issueStrings(res.Errors))
}

func TestValidate_FallbackUnavailableWarns(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.NLU.FallbackProviders = []string{"fuzzy", "bert"}
	res := config.Validate(cfg)
	require.True(t, res.Valid(), "missing fallback should not be fatal: %v", issueStrings(res.Errors))
	assert.True(t, hasIssue(res.Warnings, `fallback provider "bert" is not available`),
		"expected fallback warning, got: %v", issueStrings(res.Warnings))
}

func TestValidate_DestructiveNotContextual(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.IntentSystem.DestructiveCommands = append(cfg.IntentSystem.DestructiveCommands, "purge")
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Warnings, `destructive command "purge" is not in contextual_commands`),
		"expected destructive-command warning, got: %v", issueStrings(res.Warnings))
}

func TestValidate_DomainPriorities(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.IntentSystem.DomainPriorities["weather"] = -5
	cfg.IntentSystem.DomainPriorities["media"] = 150
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Errors, "priority must not be negative"),
		"expected negative-priority error, got: %v", issueStrings(res.Errors))
	assert.True(t, hasIssue(res.Warnings, "priority 150 exceeds 100 and will be capped"),
		"expected cap warning, got: %v", issueStrings(res.Warnings))
}

func TestValidate_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.IntentSystem.Analytics.Backend = "postgres"
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Errors, "postgres backend requires a DSN"),
		"expected DSN error, got: %v", issueStrings(res.Errors))

	cfg.IntentSystem.Analytics.PostgresDSN = "postgres://localhost/assistant"
	res = config.Validate(cfg)
	assert.True(t, res.Valid(), "DSN should satisfy the check: %v", issueStrings(res.Errors))
}

func TestValidate_ResamplingDisabledMismatch(t *testing.T) {
	t.Parallel()

	off := false
	cfg := config.DefaultConfig()
	cfg.Inputs.Microphone.Enabled = true
	cfg.Inputs.Microphone.SampleRate = 44100
	cfg.Components[config.ComponentASR] = true
	cfg.Workflows.UnifiedVoiceAssistant.ASREnabled = true
	cfg.ASR.SampleRate = 16000
	cfg.ASR.AllowResampling = &off
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Errors, "resampling is disabled"),
		"expected rate mismatch error, got: %v", issueStrings(res.Errors))

	cfg.ASR.AllowResampling = nil
	res = config.Validate(cfg)
	require.True(t, res.Valid(), "mismatch with resampling allowed should not be fatal: %v", issueStrings(res.Errors))
	assert.True(t, hasIssue(res.Warnings, "resampled to 16000 Hz per utterance"),
		"expected resampling warning, got: %v", issueStrings(res.Warnings))
}

func TestValidate_VoiceTriggerRateMismatch(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Inputs.Microphone.Enabled = true
	cfg.Inputs.Microphone.SampleRate = 48000
	cfg.Components[config.ComponentVoiceTrigger] = true
	cfg.Workflows.UnifiedVoiceAssistant.VoiceTriggerEnabled = true
	res := config.Validate(cfg)
	require.True(t, res.Valid(), "unexpected errors: %v", issueStrings(res.Errors))
	assert.True(t, hasIssue(res.Warnings, "every frame will be resampled"),
		"expected per-frame resampling warning, got: %v", issueStrings(res.Warnings))
}

func TestValidate_AssetsCreated(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Assets.Root = filepath.Join(t.TempDir(), "assets")
	res := config.Validate(cfg)
	require.True(t, res.Valid(), "creatable asset root should be valid: %v", issueStrings(res.Errors))
	for _, dir := range []string{cfg.Assets.ModelsPath(), cfg.Assets.CachePath(), cfg.Assets.CredentialsPath()} {
		fi, err := os.Stat(dir)
		require.NoError(t, err, "directory %q should have been created", dir)
		assert.True(t, fi.IsDir(), "%q should be a directory", dir)
	}
}

func TestValidate_AssetsNotCreatable(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	cfg := config.DefaultConfig()
	cfg.Assets.Root = blocker
	res := config.Validate(cfg)
	assert.True(t, hasIssue(res.Errors, "cannot create directory"),
		"expected creation error, got: %v", issueStrings(res.Errors))
}

func TestValidate_Idempotent(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Assets.Root = filepath.Join(t.TempDir(), "assets")

	first := config.Validate(cfg)
	second := config.Validate(cfg)
	assert.Equal(t, first, second, "validating the same config twice should yield identical results")
}

func TestValidate_UnknownComponentWarns(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Components["jetpack"] = true
	res := config.Validate(cfg)
	require.True(t, res.Valid(), "unknown component should not be fatal: %v", issueStrings(res.Errors))
	assert.True(t, hasIssue(res.Warnings, `unknown component "jetpack"`),
		"expected unknown-component warning, got: %v", issueStrings(res.Warnings))
}
