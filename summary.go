package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// printSummary reports a finished narration. Without a terminal only the
// written paths are printed, one per line, so the output can be piped.
func printSummary(w io.Writer, n *narration, tty bool) {
	r := n.Result
	if !tty {
		_, _ = fmt.Fprintln(w, r.Path)
		if n.Subtitles != "" {
			_, _ = fmt.Fprintln(w, n.Subtitles)
		}
		return
	}

	size := "?"
	if st, err := os.Stat(r.Path); err == nil {
		size = humanize.Bytes(uint64(st.Size())) //nolint:gosec
	}

	rows := [][2]string{
		{"Wrote", r.Path},
		{"Length", r.Duration.Round(time.Second).String()},
		{"Size", size},
		{"Chunks", humanize.Comma(int64(r.Chunks))},
		{"Took", n.Elapsed.Round(time.Second).String()},
	}
	if r.Credential.Ordinal > 0 {
		rows = append(rows, [2]string{"Key", r.Credential.String()})
	}
	if n.Subtitles != "" {
		rows = append(rows, [2]string{"Subtitles", n.Subtitles})
	}

	var b strings.Builder
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString("  " + labelStyle.Render(row[0]) + valueStyle.Render(row[1]) + "\n")
	}
	if r.Abandoned > 0 {
		b.WriteString("  " + warnStyle.Render(fmt.Sprintf("%d %s abandoned along the way", r.Abandoned, plural(r.Abandoned, "key", "keys"))) + "\n")
	}
	_, _ = fmt.Fprintln(w, b.String())
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
