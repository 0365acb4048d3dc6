// Package ttypes holds the types shared by the narration pipeline packages.
package ttypes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Audio format constants. Output is always mono, 16-bit signed little-endian PCM.
const (
	// DefaultSampleRate is the sample rate used when none is configured.
	DefaultSampleRate = 24000
	// Channels is the number of audio channels (1 = mono).
	Channels = 1
	// BitDepth is the bit depth per sample.
	BitDepth = 16
	// SampleWidth is the number of bytes per sample.
	SampleWidth = BitDepth / 8
)

// TextChunk is a piece of the input text small enough for one synthesis call.
type TextChunk struct {
	// Index is the chunk's position in the segmented text.
	Index int

	// Text is the chunk content.
	Text string
}

// CredentialStatus tracks the result of probing a credential.
type CredentialStatus int

const (
	// CredentialUntested means the credential has not been probed yet.
	CredentialUntested CredentialStatus = iota

	// CredentialValid means the probe call succeeded.
	CredentialValid

	// CredentialInvalid means the probe call failed.
	CredentialInvalid
)

// String returns the string representation of the status
func (s CredentialStatus) String() string {
	switch s {
	case CredentialUntested:
		return "untested"
	case CredentialValid:
		return "valid"
	case CredentialInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Credential is one API key of the synthesis service.
type Credential struct {
	// Ordinal is the 1-based position of the key in the configured list.
	Ordinal int

	// Secret is the API key itself. It is never logged.
	Secret string

	// Status is set once by the credential pool.
	Status CredentialStatus
}

// Fingerprint returns a short stable identifier of the secret, safe to log
// and to use in cache keys.
func (c Credential) Fingerprint() string {
	sum := sha256.Sum256([]byte(c.Secret))
	return hex.EncodeToString(sum[:6])
}

// String implements fmt.Stringer without leaking the secret.
func (c Credential) String() string {
	return fmt.Sprintf("credential #%d (%s)", c.Ordinal, c.Fingerprint())
}

// AudioFormat describes a PCM stream.
type AudioFormat struct {
	SampleRate  int
	Channels    int
	SampleWidth int
}

// NewAudioFormat returns the mono 16-bit format at the given sample rate.
func NewAudioFormat(sampleRate int) AudioFormat {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return AudioFormat{
		SampleRate:  sampleRate,
		Channels:    Channels,
		SampleWidth: SampleWidth,
	}
}

// FrameSize returns the number of bytes in one frame.
func (f AudioFormat) FrameSize() int {
	return f.Channels * f.SampleWidth
}

// BytesForDuration returns the frame-aligned byte length of d at this format.
func (f AudioFormat) BytesForDuration(d time.Duration) int {
	if d <= 0 || f.SampleRate <= 0 {
		return 0
	}
	frames := int64(d) * int64(f.SampleRate) / int64(time.Second)
	return int(frames) * f.FrameSize()
}

// Duration returns the playback duration of n bytes of PCM at this format.
func (f AudioFormat) Duration(n int) time.Duration {
	if f.SampleRate <= 0 || f.FrameSize() == 0 {
		return 0
	}
	frames := int64(n / f.FrameSize())
	return time.Duration(frames * int64(time.Second) / int64(f.SampleRate))
}

// AudioSegment is the raw PCM result of synthesizing one chunk.
type AudioSegment struct {
	// Index is the index of the originating chunk.
	Index int

	// PCM holds little-endian signed 16-bit samples.
	PCM []byte

	// Format describes PCM.
	Format AudioFormat
}

// Duration returns the playback duration of the segment.
func (s AudioSegment) Duration() time.Duration {
	return s.Format.Duration(len(s.PCM))
}

// AssembledAudio is the final PCM buffer of a narration.
type AssembledAudio struct {
	PCM    []byte
	Format AudioFormat
}

// Duration returns the playback duration of the assembled audio.
func (a AssembledAudio) Duration() time.Duration {
	return a.Format.Duration(len(a.PCM))
}

// Frames returns the number of PCM frames.
func (a AssembledAudio) Frames() int {
	if a.Format.FrameSize() == 0 {
		return 0
	}
	return len(a.PCM) / a.Format.FrameSize()
}

// RetryPolicy controls how transient synthesis failures are retried.
// It is configuration and never mutated at runtime.
type RetryPolicy struct {
	// MaxAttempts bounds the number of calls per chunk in bounded mode.
	MaxAttempts int

	// BaseBackoff is the delay before the first retry.
	BaseBackoff time.Duration

	// BackoffMultiplier grows the delay per attempt.
	BackoffMultiplier float64

	// RetryableStatusCodes lists HTTP statuses treated as transient.
	RetryableStatusCodes []int

	// TreatUnavailableAsInfinite switches to the wait-for-recovery mode:
	// transient failures are retried forever at InfiniteRetryInterval.
	TreatUnavailableAsInfinite bool

	// InfiniteRetryInterval is the fixed delay of the wait-for-recovery mode.
	InfiniteRetryInterval time.Duration
}

// DefaultRetryPolicy returns the bounded exponential backoff policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:           5,
		BaseBackoff:           2 * time.Second,
		BackoffMultiplier:     2,
		RetryableStatusCodes:  []int{429, 500, 502, 503, 504},
		InfiniteRetryInterval: 30 * time.Second,
	}
}

// Backoff returns the delay after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.TreatUnavailableAsInfinite {
		return p.InfiniteRetryInterval
	}
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseBackoff)
	for i := 1; i < attempt; i++ {
		d *= p.BackoffMultiplier
	}
	return time.Duration(d)
}

// IsRetryableStatus reports whether code is in RetryableStatusCodes.
func (p RetryPolicy) IsRetryableStatus(code int) bool {
	for _, c := range p.RetryableStatusCodes {
		if c == code {
			return true
		}
	}
	return false
}
