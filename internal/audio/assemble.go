package audio

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/ttypes"
	"github.com/dustin/go-humanize"
)

// AssemblyConfig controls how segments are joined.
type AssemblyConfig struct {
	// InterChunkSilence is inserted between consecutive segments.
	InterChunkSilence time.Duration

	// FadeDuration is the length of the linear fade-out at the end.
	FadeDuration time.Duration

	// TrailingSilence is appended after the fade.
	TrailingSilence time.Duration
}

// DefaultAssemblyConfig returns the default assembly settings.
func DefaultAssemblyConfig() AssemblyConfig {
	return AssemblyConfig{
		InterChunkSilence: 300 * time.Millisecond,
		FadeDuration:      3 * time.Second,
		TrailingSilence:   2 * time.Second,
	}
}

// Assemble concatenates segments in chunk order with silence between them,
// fades out the tail and appends trailing silence.
//
// All segments must share one format. A mismatch is a programming error and
// Assemble panics with an ErrorCodeAssembly *ttypes.NarrateError.
func Assemble(segments []ttypes.AudioSegment, cfg AssemblyConfig) ttypes.AssembledAudio {
	if len(segments) == 0 {
		return ttypes.AssembledAudio{}
	}

	ordered := make([]ttypes.AudioSegment, len(segments))
	copy(ordered, segments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	format := ordered[0].Format
	gap := Silence(format, cfg.InterChunkSilence)

	size := len(gap) * (len(ordered) - 1)
	for _, seg := range ordered {
		if seg.Format != format {
			panic(ttypes.NewError(ttypes.ErrorCodeAssembly,
				fmt.Sprintf("segment %d has format %+v, want %+v", seg.Index, seg.Format, format), nil))
		}
		if err := ValidatePCM(seg.PCM, format); err != nil {
			panic(ttypes.NewError(ttypes.ErrorCodeAssembly, fmt.Sprintf("segment %d", seg.Index), err))
		}
		size += len(seg.PCM)
	}

	trailing := Silence(format, cfg.TrailingSilence)
	pcm := make([]byte, 0, size+len(trailing))
	for i, seg := range ordered {
		if i > 0 {
			pcm = append(pcm, gap...)
		}
		pcm = append(pcm, seg.PCM...)
	}

	FadeOut(pcm, format.BytesForDuration(cfg.FadeDuration)/ttypes.SampleWidth)
	pcm = append(pcm, trailing...)

	out := ttypes.AssembledAudio{PCM: pcm, Format: format}
	log.Debug("Assembled audio",
		"segments", len(ordered),
		"size", humanize.Bytes(uint64(len(pcm))),
		"duration", out.Duration())
	return out
}

// FadeOut fades the last N = fadeSamples samples of pcm to silence in place.
// Faded sample i, counting from 0, is scaled by 1 - (i+1)/N, truncating
// toward zero. The plain 1 - i/N ramp would leave the first sample untouched
// and the last one above zero; shifting by one lands the final sample on
// zero instead. N is capped at the number of samples; N == 0 is a no-op.
func FadeOut(pcm []byte, fadeSamples int) {
	total := len(pcm) / ttypes.SampleWidth
	n := fadeSamples
	if n > total {
		n = total
	}
	if n <= 0 {
		return
	}
	start := total - n
	for i := 0; i < n; i++ {
		s := int64(sampleAt(pcm, start+i))
		putSample(pcm, start+i, int16(s*int64(n-1-i)/int64(n)))
	}
}
