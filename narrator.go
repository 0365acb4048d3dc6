package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/cache"
	"github.com/dgnsrekt/narrate/internal/config"
	"github.com/dgnsrekt/narrate/internal/pipeline"
	"github.com/dgnsrekt/narrate/internal/segment"
	"github.com/dgnsrekt/narrate/internal/synth"
	"github.com/dgnsrekt/narrate/internal/transcribe"
	"github.com/dgnsrekt/narrate/utils"
	gap "github.com/muesli/go-app-paths"
)

// narrator wires the configured pipeline together. One narrator may run
// several narrations; each run validates the credentials again.
type narrator struct {
	cfg      config.Config
	keys     []string
	cache    *cache.Manager
	pipeline *pipeline.Pipeline
}

// narration is the outcome of one run.
type narration struct {
	Result    *pipeline.Result
	Subtitles string
	Elapsed   time.Duration
}

func newNarrator(cfg config.Config, flagKeys []string) (*narrator, error) {
	e, err := config.ParseEnvironment()
	if err != nil {
		return nil, err
	}
	keys, err := config.Credentials(flagKeys, e, cfg)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, errors.New("no API keys configured: set NARRATE_API_KEYS or pass --api-key")
	}

	n := &narrator{cfg: cfg, keys: keys}

	var store cache.Store
	if cfg.Cache.Enabled {
		dir, err := cacheDir()
		if err != nil {
			log.Warn("Could not find cache directory, keeping audio in memory only", "error", err)
		}
		if n.cache, err = cache.NewManager(cfg.CacheOptions(dir)); err != nil {
			return nil, fmt.Errorf("unable to open audio cache: %w", err)
		}
		store = n.cache
	}

	engine := synth.NewGoogleEngine(cfg.Voice, synth.WithBaseURL(cfg.Service.BaseURL))
	segmenter := segment.NewSegmenter(cfg.Segment.MaxSentenceBytes)
	client := synth.NewClient(engine, segmenter, cfg.SynthOptions(store))
	n.pipeline = pipeline.New(engine, client, segmenter, cfg.PipelineOptions())
	return n, nil
}

func cacheDir() (string, error) {
	dir, err := gap.NewScope(gap.User, "narrate").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "audio"), nil
}

// Narrate synthesizes text into <output dir>/<name>.wav.
func (n *narrator) Narrate(ctx context.Context, text, name string) (*narration, error) {
	out := filepath.Join(utils.ExpandPath(n.cfg.Output.Dir), name+".wav")
	start := time.Now()

	// watch mode keeps the cache open across runs
	if n.cache != nil {
		n.cache.Prune()
	}
	res, err := n.pipeline.Run(ctx, text, n.keys, out)
	if err != nil {
		return nil, err
	}
	return &narration{Result: res, Elapsed: time.Since(start)}, nil
}

// Transcribe writes subtitles next to the WAV file and returns their path.
func (n *narrator) Transcribe(ctx context.Context, wavPath string) (string, error) {
	if n.cfg.Transcribe.Command == "" {
		return "", errors.New("subtitles requested but transcribe.command is not configured")
	}
	t, err := transcribe.NewExecTranscriber(n.cfg.Transcribe.Command, n.cfg.Transcribe.Language)
	if err != nil {
		return "", err
	}
	segments, err := t.Transcribe(ctx, wavPath)
	if err != nil {
		return "", err
	}
	srt := strings.TrimSuffix(wavPath, filepath.Ext(wavPath)) + ".srt"
	if err := transcribe.WriteSRTFile(srt, segments); err != nil {
		return "", err
	}
	return srt, nil
}

func (n *narrator) Close() error {
	if n.cache == nil {
		return nil
	}
	return n.cache.Close()
}
