package utils

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var (
	fenceOpen  = regexp.MustCompile("^```[A-Za-z]*\\s*\n?")
	blankLines = regexp.MustCompile(`\n{2,}`)

	gfm = goldmark.New(goldmark.WithExtensions(extension.GFM))
)

// CleanMarkdown strips outer code fences (``` or ```markdown) that models
// like to wrap answers in.
func CleanMarkdown(input string) string {
	cleaned := strings.TrimSpace(input)
	if strings.HasPrefix(cleaned, "```") && strings.HasSuffix(cleaned, "```") && len(cleaned) >= 6 {
		cleaned = fenceOpen.ReplaceAllString(cleaned, "")
		cleaned = strings.TrimSuffix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
	}
	return cleaned
}

// PlainText parses input as Markdown and returns its text with the markup
// removed, one line per block or soft line break.
func PlainText(input string) string {
	src := []byte(input)
	doc := gfm.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		default:
			if !entering && n.Type() == ast.TypeBlock {
				b.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(blankLines.ReplaceAllString(b.String(), "\n"))
}

// ToHTML renders Markdown, GFM tables included, to an HTML fragment.
func ToHTML(input string) (string, error) {
	var buf bytes.Buffer
	if err := gfm.Convert([]byte(input), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
