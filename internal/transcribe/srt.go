package transcribe

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// FormatTimestamp renders seconds as an SRT timestamp, HH:MM:SS,mmm.
// Negative values clamp to zero.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

// WriteSRT writes segments as numbered SRT cues, one per segment, with
// surrounding whitespace trimmed from the text.
func WriteSRT(w io.Writer, segments []Segment) error {
	bw := bufio.NewWriter(w)
	for i, s := range segments {
		if _, err := fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n",
			i+1, FormatTimestamp(s.Start), FormatTimestamp(s.End), strings.TrimSpace(s.Text)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteSRTFile writes segments to path, creating parent directories.
func WriteSRTFile(path string, segments []Segment) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		return fmt.Errorf("unable to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create subtitle file: %w", err)
	}
	if err := WriteSRT(f, segments); err != nil {
		_ = f.Close()
		return fmt.Errorf("unable to write subtitle file: %w", err)
	}
	return f.Close()
}
