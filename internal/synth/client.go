package synth

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/audio"
	"github.com/dgnsrekt/narrate/internal/cache"
	"github.com/dgnsrekt/narrate/internal/segment"
	"github.com/dgnsrekt/narrate/internal/ttypes"
	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

// DefaultMaxRecursionDepth bounds oversize re-splitting.
const DefaultMaxRecursionDepth = 3

// Options configures a Client.
type Options struct {
	Voice  VoiceConfig
	Policy ttypes.RetryPolicy

	// MaxChunkBytes is the budget the chunks were cut with.
	MaxChunkBytes int

	// MaxRecursionDepth bounds how many times a chunk may be halved after
	// the service rejects it as too long.
	MaxRecursionDepth int

	// RequestTimeout bounds each attempt.
	RequestTimeout time.Duration

	// RequestsPerMinute paces calls across all workers. Zero disables pacing.
	RequestsPerMinute int

	// Cache stores synthesized chunks. Nil disables caching.
	Cache cache.Store
}

// Client synthesizes chunks with retry, oversize re-splitting and failure
// classification. One Client serves one run and is safe for concurrent use.
type Client struct {
	engine    Engine
	segmenter *segment.Segmenter
	opts      Options
	format    ttypes.AudioFormat
	limiter   *rate.Limiter

	// replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// attempt is the retry state of one piece of text with one credential.
type attempt struct {
	number  int
	lastErr error
	backoff time.Duration
}

// NewClient creates a client.
func NewClient(engine Engine, segmenter *segment.Segmenter, opts Options) *Client {
	if opts.MaxChunkBytes <= 0 {
		opts.MaxChunkBytes = segment.DefaultMaxChunkBytes
	}
	if opts.MaxRecursionDepth < 0 {
		opts.MaxRecursionDepth = 0
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy.MaxAttempts = 1
	}

	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}

	return &Client{
		engine:    engine,
		segmenter: segmenter,
		opts:      opts,
		format:    ttypes.NewAudioFormat(opts.Voice.SampleRate),
		limiter:   rate.NewLimiter(limit, 1),
		sleep:     sleepContext,
	}
}

// Format returns the format of the audio the client produces.
func (c *Client) Format() ttypes.AudioFormat {
	return c.format
}

// Synthesize returns the audio of chunk spoken with cred.
//
// Errors are *ttypes.NarrateError values whose code tells the caller what
// happened: every code returned here ends the credential for the run. A
// cancelled ctx is returned as ctx.Err().
func (c *Client) Synthesize(ctx context.Context, chunk ttypes.TextChunk, cred ttypes.Credential) (ttypes.AudioSegment, error) {
	key := c.cacheKey(chunk.Text, cred)
	if key != "" {
		if pcm, ok := c.opts.Cache.Get(key); ok {
			log.Debug("Using cached audio", "chunk", chunk.Index, "credential", cred)
			return ttypes.AudioSegment{Index: chunk.Index, PCM: pcm, Format: c.format}, nil
		}
	}

	budget := c.opts.MaxChunkBytes
	if len(chunk.Text) < budget {
		budget = len(chunk.Text)
	}
	pcm, err := c.synthesize(ctx, chunk.Text, budget, 0, cred)
	if err != nil {
		if ne, ok := err.(*ttypes.NarrateError); ok {
			ne.WithContext("chunk", chunk.Index)
		}
		return ttypes.AudioSegment{}, err
	}

	seg := ttypes.AudioSegment{Index: chunk.Index, PCM: pcm, Format: c.format}
	log.Debug("Synthesized chunk",
		"chunk", chunk.Index,
		"credential", cred,
		"size", humanize.Bytes(uint64(len(pcm))),
		"duration", seg.Duration())

	if key != "" {
		if err := c.opts.Cache.Put(key, pcm); err != nil {
			log.Warn("Failed to cache audio", "chunk", chunk.Index, "error", err)
		}
	}
	return seg, nil
}

func (c *Client) cacheKey(text string, cred ttypes.Credential) string {
	if c.opts.Cache == nil {
		return ""
	}
	return cache.Key(cache.KeyParts{
		Credential:   cred.Fingerprint(),
		Voice:        c.opts.Voice.VoiceName,
		Language:     c.opts.Voice.LanguageCode,
		SpeakingRate: c.opts.Voice.SpeakingRate,
		SampleRate:   c.format.SampleRate,
		Text:         text,
	})
}

// synthesize runs the attempt loop for text. budget is the byte budget text
// was cut with and depth the number of re-splits above it.
func (c *Client) synthesize(ctx context.Context, text string, budget, depth int, cred ttypes.Credential) ([]byte, error) {
	policy := c.opts.Policy
	var a attempt

	for {
		a.number++
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}

		pcm, err := c.call(ctx, text, cred)
		if err == nil {
			return pcm, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.lastErr = err

		if ttypes.CodeOf(err) == ttypes.ErrorCodeAssembly {
			return nil, ttypes.NewError(ttypes.ErrorCodePermanentCredential,
				"service returned audio in an unexpected format", err)
		}

		class, msg := ClassifyError(err, policy)
		switch class {
		case ClassOversize:
			return c.resplit(ctx, text, budget, depth, cred, msg)
		case ClassPermanent:
			return nil, ttypes.NewError(ttypes.ErrorCodePermanentCredential, "credential rejected", a.lastErr).
				WithContext("attempt", a.number)
		}

		if policy.TreatUnavailableAsInfinite {
			a.backoff = policy.InfiniteRetryInterval
			log.Warn("Synthesis service unavailable, waiting for recovery",
				"credential", cred,
				"attempt", a.number,
				"retry_in", a.backoff,
				"error", msg)
		} else {
			if a.number >= policy.MaxAttempts {
				return nil, ttypes.NewError(ttypes.ErrorCodeTransientService,
					fmt.Sprintf("gave up after %d attempts", a.number), a.lastErr).
					WithContext("attempt", a.number)
			}
			a.backoff = policy.Backoff(a.number)
			log.Debug("Retrying synthesis",
				"credential", cred,
				"attempt", a.number,
				"retry_in", a.backoff,
				"error", msg)
		}

		if err := c.sleep(ctx, a.backoff); err != nil {
			return nil, err
		}
	}
}

// call performs one attempt under the per-attempt timeout and decodes the
// payload.
func (c *Client) call(ctx context.Context, text string, cred ttypes.Credential) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	payload, err := c.engine.Synthesize(ctx, text, cred)
	if err != nil {
		return nil, err
	}
	return audio.DecodePayload(payload, c.format)
}

// resplit halves the budget, splits text again and synthesizes the pieces
// in order with the same credential.
func (c *Client) resplit(ctx context.Context, text string, budget, depth int, cred ttypes.Credential, msg string) ([]byte, error) {
	next := budget / 2
	if depth >= c.opts.MaxRecursionDepth || next < 1 {
		return nil, ttypes.NewError(ttypes.ErrorCodeRecursionExhausted,
			fmt.Sprintf("input of %d bytes still rejected after %d re-splits: %s", len(text), depth, msg), nil)
	}

	chunks := c.segmenter.Split(text, next)
	log.Info("Service rejected chunk as too long, splitting it",
		"bytes", len(text),
		"budget", next,
		"parts", len(chunks),
		"depth", depth+1)

	var pcm []byte
	for _, sub := range chunks {
		part, err := c.synthesize(ctx, sub.Text, next, depth+1, cred)
		if err != nil {
			return nil, err
		}
		pcm = append(pcm, part...)
	}
	return pcm, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
