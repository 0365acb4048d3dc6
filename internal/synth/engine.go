// Package synth turns text chunks into PCM audio through a remote speech
// synthesis service, with retries, oversize re-splitting and failure
// classification.
package synth

import (
	"context"
	"fmt"

	"github.com/dgnsrekt/narrate/internal/ttypes"
)

// Engine performs a single synthesis call. It returns the raw audio payload
// on success and an *APIError for a non-success response. Any other error
// is treated as a network failure.
type Engine interface {
	Synthesize(ctx context.Context, text string, cred ttypes.Credential) ([]byte, error)
}

// VoiceConfig is the fixed voice of a run.
type VoiceConfig struct {
	LanguageCode string  `mapstructure:"languageCode" yaml:"languageCode"`
	VoiceName    string  `mapstructure:"voiceName" yaml:"voiceName"`
	SpeakingRate float64 `mapstructure:"speakingRate" yaml:"speakingRate"`
	SampleRate   int     `mapstructure:"sampleRate" yaml:"sampleRate"`
}

// DefaultVoiceConfig returns the default voice.
func DefaultVoiceConfig() VoiceConfig {
	return VoiceConfig{
		LanguageCode: "en-US",
		VoiceName:    "en-US-Chirp3-HD-Enceladus",
		SpeakingRate: 0.95,
		SampleRate:   ttypes.DefaultSampleRate,
	}
}

// APIError is a non-success response of the synthesis service.
type APIError struct {
	// StatusCode is the HTTP status.
	StatusCode int

	// Status is the service's status name, e.g. RESOURCE_EXHAUSTED.
	Status string

	// Message is the human-readable message used for classification.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}
