package segment

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// PlainText extracts narratable text from markdown. Code and HTML blocks are
// dropped, link targets and image URLs are omitted, and every block becomes
// its own paragraph so the segmenter can cut between them.
func PlainText(markdown string) string {
	md := goldmark.New()
	reader := text.NewReader([]byte(markdown))
	doc := md.Parser().Parse(reader)

	var blocks []string
	var buf strings.Builder
	flush := func() {
		if b := collapseSpace(buf.String()); b != "" {
			blocks = append(blocks, terminate(b))
		}
		buf.Reset()
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Image:
			return ast.WalkSkipChildren, nil
		case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
			if !entering {
				flush()
			}
		case *ast.ThematicBreak:
			flush()
		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(reader.Source()))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				buf.Write(node.Value)
			}
		}
		return ast.WalkContinue, nil
	})
	flush()

	return strings.Join(blocks, "\n\n")
}
