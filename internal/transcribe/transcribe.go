// Package transcribe turns a narration back into timed text with an external
// speech recognizer and writes it as SRT subtitles.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-shellwords"
)

// Segment is a span of recognized speech, in seconds from the start.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcriber recognizes the speech in a WAV file.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) ([]Segment, error)
}

// ExecTranscriber runs a recognizer command. The command receives
// --audio <path> and --language <code> and prints
// {"segments":[{"start":..,"end":..,"text":".."}]} on stdout.
type ExecTranscriber struct {
	cmd      []string
	language string
}

type execResult struct {
	Segments []Segment `json:"segments"`
}

// NewExecTranscriber parses command with shell quoting rules.
func NewExecTranscriber(command, language string) (*ExecTranscriber, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse transcribe command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("transcribe command is empty")
	}
	return &ExecTranscriber{cmd: args, language: language}, nil
}

// Transcribe runs the command on wavPath. The segments are returned exactly
// as the command printed them.
func (t *ExecTranscriber) Transcribe(ctx context.Context, wavPath string) ([]Segment, error) {
	args := append([]string{}, t.cmd[1:]...)
	args = append(args, "--audio", wavPath)
	if t.language != "" {
		args = append(args, "--language", t.language)
	}

	log.Debug("Running transcriber", "command", t.cmd[0], "args", args)
	command := exec.CommandContext(ctx, t.cmd[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("transcribe command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode transcribe response: %w", err)
	}

	log.Info("Transcribed narration", "segments", len(resp.Segments))
	return resp.Segments, nil
}
