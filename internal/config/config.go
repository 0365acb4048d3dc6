// Package config holds the narrate configuration: defaults, loading from
// viper and the environment, validation, and conversion into the options of
// the pipeline packages.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgnsrekt/narrate/internal/audio"
	"github.com/dgnsrekt/narrate/internal/cache"
	"github.com/dgnsrekt/narrate/internal/pipeline"
	"github.com/dgnsrekt/narrate/internal/segment"
	"github.com/dgnsrekt/narrate/internal/synth"
	"github.com/dgnsrekt/narrate/internal/ttypes"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the complete narrate configuration.
type Config struct {
	Voice      synth.VoiceConfig `mapstructure:"voice" yaml:"voice"`
	Segment    SegmentConfig     `mapstructure:"segment" yaml:"segment"`
	Retry      RetryConfig       `mapstructure:"retry" yaml:"retry"`
	Assembly   AssemblyConfig    `mapstructure:"assembly" yaml:"assembly"`
	Service    ServiceConfig     `mapstructure:"service" yaml:"service"`
	Cache      CacheConfig       `mapstructure:"cache" yaml:"cache"`
	Output     OutputConfig      `mapstructure:"output" yaml:"output"`
	Transcribe TranscribeConfig  `mapstructure:"transcribe" yaml:"transcribe"`

	// APIKeys may be set in the file, but the environment is preferred.
	APIKeys []string `mapstructure:"apiKeys" yaml:"apiKeys,omitempty"`
}

// SegmentConfig controls text segmentation.
type SegmentConfig struct {
	MaxChunkBytes    int `mapstructure:"maxChunkBytes" yaml:"maxChunkBytes"`
	MaxSentenceBytes int `mapstructure:"maxSentenceBytes" yaml:"maxSentenceBytes"`
	Markdown         bool `mapstructure:"markdown" yaml:"markdown"`
}

// RetryConfig controls retries of failed synthesis calls.
type RetryConfig struct {
	MaxAttempts          int     `mapstructure:"maxAttempts" yaml:"maxAttempts"`
	BaseBackoffSeconds   float64 `mapstructure:"baseBackoffSeconds" yaml:"baseBackoffSeconds"`
	BackoffMultiplier    float64 `mapstructure:"backoffMultiplier" yaml:"backoffMultiplier"`
	RetryableStatusCodes []int   `mapstructure:"retryableStatusCodes" yaml:"retryableStatusCodes"`
	MaxRecursionDepth    int     `mapstructure:"maxRecursionDepth" yaml:"maxRecursionDepth"`

	// WaitForRecovery retries transient failures forever.
	WaitForRecovery         bool    `mapstructure:"waitForRecovery" yaml:"waitForRecovery"`
	RecoveryIntervalSeconds float64 `mapstructure:"recoveryIntervalSeconds" yaml:"recoveryIntervalSeconds"`
}

// AssemblyConfig controls how chunk audio is joined.
type AssemblyConfig struct {
	InterChunkSilenceMs int `mapstructure:"interChunkSilenceMs" yaml:"interChunkSilenceMs"`
	FadeDurationMs      int `mapstructure:"fadeDurationMs" yaml:"fadeDurationMs"`
	TrailingSilenceMs   int `mapstructure:"trailingSilenceMs" yaml:"trailingSilenceMs"`
}

// ServiceConfig controls the connection to the synthesis service.
type ServiceConfig struct {
	BaseURL               string  `mapstructure:"baseURL" yaml:"baseURL"`
	RequestTimeoutSeconds float64 `mapstructure:"requestTimeoutSeconds" yaml:"requestTimeoutSeconds"`
	ProbeTimeoutSeconds   float64 `mapstructure:"probeTimeoutSeconds" yaml:"probeTimeoutSeconds"`
	Concurrency           int     `mapstructure:"concurrency" yaml:"concurrency"`
	RequestsPerMinute     int     `mapstructure:"requestsPerMinute" yaml:"requestsPerMinute"`
}

// CacheConfig controls the audio cache.
type CacheConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir      string `mapstructure:"dir" yaml:"dir"`
	MemoryMB int    `mapstructure:"memoryMB" yaml:"memoryMB"`
	DiskMB   int    `mapstructure:"diskMB" yaml:"diskMB"`
	TTLDays  int    `mapstructure:"ttlDays" yaml:"ttlDays"`
}

// OutputConfig controls where narrations are written.
type OutputConfig struct {
	Dir  string `mapstructure:"dir" yaml:"dir"`
	Name string `mapstructure:"name" yaml:"name"`
}

// TranscribeConfig configures the optional subtitle step.
type TranscribeConfig struct {
	// Command is run with --audio and --language appended. Empty disables
	// transcription.
	Command  string `mapstructure:"command" yaml:"command"`
	Language string `mapstructure:"language" yaml:"language"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	policy := ttypes.DefaultRetryPolicy()
	asm := audio.DefaultAssemblyConfig()
	cc := cache.DefaultConfig()

	return Config{
		Voice: synth.DefaultVoiceConfig(),
		Segment: SegmentConfig{
			MaxChunkBytes:    segment.DefaultMaxChunkBytes,
			MaxSentenceBytes: segment.DefaultMaxSentenceBytes,
		},
		Retry: RetryConfig{
			MaxAttempts:             policy.MaxAttempts,
			BaseBackoffSeconds:      policy.BaseBackoff.Seconds(),
			BackoffMultiplier:       policy.BackoffMultiplier,
			RetryableStatusCodes:    policy.RetryableStatusCodes,
			MaxRecursionDepth:       synth.DefaultMaxRecursionDepth,
			RecoveryIntervalSeconds: policy.InfiniteRetryInterval.Seconds(),
		},
		Assembly: AssemblyConfig{
			InterChunkSilenceMs: int(asm.InterChunkSilence.Milliseconds()),
			FadeDurationMs:      int(asm.FadeDuration.Milliseconds()),
			TrailingSilenceMs:   int(asm.TrailingSilence.Milliseconds()),
		},
		Service: ServiceConfig{
			BaseURL:               synth.DefaultBaseURL,
			RequestTimeoutSeconds: synth.DefaultRequestTimeout.Seconds(),
			ProbeTimeoutSeconds:   15,
			Concurrency:           pipeline.DefaultConcurrency,
			RequestsPerMinute:     300,
		},
		Cache: CacheConfig{
			Enabled:  true,
			MemoryMB: int(cc.MemoryCapacity >> 20),
			DiskMB:   int(cc.DiskCapacity >> 20),
			TTLDays:  int(cc.TTL / (24 * time.Hour)),
		},
		Output: OutputConfig{
			Dir:  ".",
			Name: "narration",
		},
		Transcribe: TranscribeConfig{
			Language: "en",
		},
	}
}

// SetDefaults registers every default with v so that partial config files
// and environment overrides resolve against them.
func SetDefaults(v *viper.Viper) error {
	var m map[string]interface{}
	b, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return err
	}
	setDefaults(v, "", m)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, m map[string]interface{}) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]interface{}); ok {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// LoadFromViper decodes v over the defaults and validates the result.
func LoadFromViper(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Segment.MaxChunkBytes > 0, "segment.maxChunkBytes must be positive, got %d", c.Segment.MaxChunkBytes)
	check(c.Segment.MaxSentenceBytes > 0, "segment.maxSentenceBytes must be positive, got %d", c.Segment.MaxSentenceBytes)
	check(c.Segment.MaxSentenceBytes <= c.Segment.MaxChunkBytes,
		"segment.maxSentenceBytes (%d) must not exceed segment.maxChunkBytes (%d)",
		c.Segment.MaxSentenceBytes, c.Segment.MaxChunkBytes)
	check(c.Retry.MaxAttempts >= 1, "retry.maxAttempts must be at least 1, got %d", c.Retry.MaxAttempts)
	check(c.Retry.BaseBackoffSeconds >= 0, "retry.baseBackoffSeconds must not be negative")
	check(c.Retry.BackoffMultiplier >= 1, "retry.backoffMultiplier must be at least 1, got %.2f", c.Retry.BackoffMultiplier)
	check(c.Retry.MaxRecursionDepth >= 0, "retry.maxRecursionDepth must not be negative")
	check(!c.Retry.WaitForRecovery || c.Retry.RecoveryIntervalSeconds > 0,
		"retry.recoveryIntervalSeconds must be positive when waitForRecovery is set")
	check(c.Assembly.InterChunkSilenceMs >= 0 && c.Assembly.FadeDurationMs >= 0 && c.Assembly.TrailingSilenceMs >= 0,
		"assembly durations must not be negative")
	check(c.Voice.SampleRate >= 8000 && c.Voice.SampleRate <= 48000,
		"voice.sampleRate must be between 8000 and 48000, got %d", c.Voice.SampleRate)
	check(c.Voice.SpeakingRate >= 0.25 && c.Voice.SpeakingRate <= 4,
		"voice.speakingRate must be between 0.25 and 4.0, got %.2f", c.Voice.SpeakingRate)
	check(c.Voice.LanguageCode != "", "voice.languageCode must be set")
	check(c.Voice.VoiceName != "", "voice.voiceName must be set")
	check(c.Service.BaseURL != "", "service.baseURL must be set")
	check(c.Service.RequestTimeoutSeconds > 0, "service.requestTimeoutSeconds must be positive")
	check(c.Service.ProbeTimeoutSeconds > 0, "service.probeTimeoutSeconds must be positive")
	check(c.Service.Concurrency >= 1, "service.concurrency must be at least 1, got %d", c.Service.Concurrency)
	check(c.Service.RequestsPerMinute >= 0, "service.requestsPerMinute must not be negative")
	check(!c.Cache.Enabled || c.Cache.MemoryMB > 0, "cache.memoryMB must be positive when the cache is enabled")
	check(c.Cache.DiskMB >= 0 && c.Cache.TTLDays >= 0, "cache sizes must not be negative")

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// RetryPolicy returns the retry policy of c.
func (c Config) RetryPolicy() ttypes.RetryPolicy {
	return ttypes.RetryPolicy{
		MaxAttempts:                c.Retry.MaxAttempts,
		BaseBackoff:                seconds(c.Retry.BaseBackoffSeconds),
		BackoffMultiplier:          c.Retry.BackoffMultiplier,
		RetryableStatusCodes:       c.Retry.RetryableStatusCodes,
		TreatUnavailableAsInfinite: c.Retry.WaitForRecovery,
		InfiniteRetryInterval:      seconds(c.Retry.RecoveryIntervalSeconds),
	}
}

// SynthOptions returns the synthesis client options of c. store may be nil.
func (c Config) SynthOptions(store cache.Store) synth.Options {
	return synth.Options{
		Voice:             c.Voice,
		Policy:            c.RetryPolicy(),
		MaxChunkBytes:     c.Segment.MaxChunkBytes,
		MaxRecursionDepth: c.Retry.MaxRecursionDepth,
		RequestTimeout:    seconds(c.Service.RequestTimeoutSeconds),
		RequestsPerMinute: c.Service.RequestsPerMinute,
		Cache:             store,
	}
}

// PipelineOptions returns the pipeline options of c.
func (c Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		MaxChunkBytes: c.Segment.MaxChunkBytes,
		Concurrency:   c.Service.Concurrency,
		ProbeTimeout:  seconds(c.Service.ProbeTimeoutSeconds),
		Assembly: audio.AssemblyConfig{
			InterChunkSilence: millis(c.Assembly.InterChunkSilenceMs),
			FadeDuration:      millis(c.Assembly.FadeDurationMs),
			TrailingSilence:   millis(c.Assembly.TrailingSilenceMs),
		},
	}
}

// CacheOptions returns the cache configuration of c with dir as the disk
// location when c.Cache.Dir is empty.
func (c Config) CacheOptions(dir string) cache.Config {
	if c.Cache.Dir != "" {
		dir = c.Cache.Dir
	}
	return cache.Config{
		MemoryCapacity:   int64(c.Cache.MemoryMB) << 20,
		DiskCapacity:     int64(c.Cache.DiskMB) << 20,
		Dir:              dir,
		CompressionLevel: 3,
		TTL:              time.Duration(c.Cache.TTLDays) * 24 * time.Hour,
	}
}

// YAML renders c as a config file.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
