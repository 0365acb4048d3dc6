// Package pipeline runs a narration end to end: credential validation,
// segmentation, synthesis with credential failover, assembly and WAV output.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/audio"
	"github.com/dgnsrekt/narrate/internal/credential"
	"github.com/dgnsrekt/narrate/internal/segment"
	"github.com/dgnsrekt/narrate/internal/ttypes"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of chunks synthesized at once.
const DefaultConcurrency = 4

// Synthesizer produces the audio of one chunk with one credential.
type Synthesizer interface {
	Synthesize(ctx context.Context, chunk ttypes.TextChunk, cred ttypes.Credential) (ttypes.AudioSegment, error)
	Format() ttypes.AudioFormat
}

// Options configures a Pipeline.
type Options struct {
	// MaxChunkBytes is the byte budget of one synthesis request.
	MaxChunkBytes int

	// Concurrency bounds in-flight synthesis calls per credential.
	Concurrency int

	// ProbeTimeout bounds each credential validation call.
	ProbeTimeout time.Duration

	Assembly audio.AssemblyConfig
}

// Result describes a finished narration.
type Result struct {
	// Path is the written WAV file.
	Path string

	// Chunks is the number of text chunks synthesized.
	Chunks int

	// Credential is the credential that produced the audio. It is the zero
	// value for empty input.
	Credential ttypes.Credential

	// Duration is the playback length of the WAV file.
	Duration time.Duration

	// Abandoned counts credentials given up on before success.
	Abandoned int
}

// Pipeline turns text into a WAV file.
type Pipeline struct {
	prober      credential.Prober
	synthesizer Synthesizer
	segmenter   *segment.Segmenter
	opts        Options
}

// New creates a pipeline.
func New(prober credential.Prober, synthesizer Synthesizer, segmenter *segment.Segmenter, opts Options) *Pipeline {
	if opts.MaxChunkBytes <= 0 {
		opts.MaxChunkBytes = segment.DefaultMaxChunkBytes
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Pipeline{
		prober:      prober,
		synthesizer: synthesizer,
		segmenter:   segmenter,
		opts:        opts,
	}
}

// Run narrates text into a WAV file at outPath.
//
// Credentials are validated first; with none valid Run fails with
// ttypes.ErrNoValidCredentials. Each valid credential then gets the whole
// chunk sequence. Audio is only kept when every chunk succeeded with the
// same credential. If no credential succeeds, the error matches
// ttypes.ErrAllCredentialsFailed and wraps the last credential's error.
// Cancelling ctx aborts in-flight calls and returns ctx.Err().
func (p *Pipeline) Run(ctx context.Context, text string, credentials []string, outPath string) (*Result, error) {
	pool := credential.NewPool(p.prober, p.opts.ProbeTimeout)
	valid := pool.Validate(ctx, credentials)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pool.Exhausted() {
		return nil, ttypes.NewError(ttypes.ErrorCodeNoValidCredentials,
			fmt.Sprintf("none of %d configured credential(s) passed validation", len(pool.All())), nil)
	}

	chunks := p.segmenter.Split(text, p.opts.MaxChunkBytes)
	if len(chunks) == 0 {
		log.Info("Input is empty, writing empty audio")
		return p.write(outPath, ttypes.AssembledAudio{Format: p.synthesizer.Format()}, &Result{})
	}
	log.Info("Starting narration", "chunks", len(chunks), "credentials", len(valid))

	var lastErr error
	abandoned := 0
	for !pool.Exhausted() {
		cred, _ := pool.Next()

		segments, err := p.synthesizeAll(ctx, chunks, cred)
		if err == nil {
			assembled := audio.Assemble(segments, p.opts.Assembly)
			return p.write(outPath, assembled, &Result{
				Chunks:     len(chunks),
				Credential: cred,
				Abandoned:  abandoned,
			})
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		log.Warn("Abandoning credential", "credential", cred, "code", ttypes.CodeOf(err), "error", err)
		lastErr = err
		abandoned++
	}

	return nil, ttypes.NewError(ttypes.ErrorCodeAllCredentialsFailed,
		fmt.Sprintf("%d valid credential(s) failed", len(valid)), lastErr)
}

// synthesizeAll synthesizes every chunk with cred on a bounded worker pool.
// The first failure cancels the remaining calls. Results are ordered by
// chunk index.
func (p *Pipeline) synthesizeAll(ctx context.Context, chunks []ttypes.TextChunk, cred ttypes.Credential) ([]ttypes.AudioSegment, error) {
	log.Info("Synthesizing", "credential", cred, "chunks", len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	segments := make([]ttypes.AudioSegment, len(chunks))
	for i, chunk := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			seg, err := p.synthesizer.Synthesize(gctx, chunk, cred)
			if err != nil {
				return err
			}
			segments[i] = seg
			log.Debug("Chunk done", "chunk", chunk.Index, "of", len(chunks))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// the loop may stop early without any worker failing
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return segments, nil
}

func (p *Pipeline) write(outPath string, a ttypes.AssembledAudio, res *Result) (*Result, error) {
	if err := audio.WriteWAV(outPath, a); err != nil {
		return nil, fmt.Errorf("failed to write audio: %w", err)
	}
	res.Path = outPath
	res.Duration = a.Format.Duration(len(a.PCM))
	return res, nil
}
