// Package components implements the managed runtime units of the assistant:
// audio processing and playback, speech recognition, wake-phrase detection,
// transcript normalization, intent recognition, intent execution, reply
// enrichment, and speech synthesis.
//
// Each unit satisfies [component.Component] and is registered with the
// component manager by the application wiring. Units that sit in front of a
// provider chain (asr, tts, nlu) construct their providers from the
// configuration's provider entries and wrap them in fallback groups, so a
// failing backend degrades to the next configured one instead of taking the
// pipeline down.
package components
