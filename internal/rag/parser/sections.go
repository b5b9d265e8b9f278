package parser

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var boldLine = regexp.MustCompile(`^\s*(?:\*\*([^*]+)\*\*|__([^_]+)__)\s*:?\s*$`)

type header struct {
	title     string
	lineStart int // first byte of the header line
	bodyStart int // first byte after the header
}

// markdownSections splits on top-level headings (ATX or setext) and on paragraphs
// opening with a bold-only line such as "**Budget:**". Text before the first header
// and sections with an empty body are dropped.
func markdownSections(raw string) (map[string]string, []string) {
	src := []byte(raw)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var headers []header
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		var title string
		switch node := n.(type) {
		case *ast.Heading:
			title = inlineText(node, src)
		case *ast.Paragraph:
			t, ok := boldTitle(node, src)
			if !ok {
				continue
			}
			title = t
		default:
			continue
		}
		lines := n.Lines()
		if title == "" || lines.Len() == 0 {
			continue
		}
		first, last := lines.At(0), lines.At(lines.Len()-1)
		if _, isParagraph := n.(*ast.Paragraph); isParagraph {
			last = first
		}
		headers = append(headers, header{
			title:     title,
			lineStart: lineStart(src, first.Start),
			bodyStart: skipUnderline(src, lineEnd(src, last)),
		})
	}

	sections := make(map[string]string)
	var order []string
	for i, h := range headers {
		end := len(src)
		if i+1 < len(headers) {
			end = headers[i+1].lineStart
		}
		if h.bodyStart > end {
			continue
		}
		body := strings.TrimSpace(string(src[h.bodyStart:end]))
		if body == "" {
			continue
		}
		if existing, ok := sections[h.title]; ok {
			sections[h.title] = existing + "\n\n" + body
			continue
		}
		sections[h.title] = body
		order = append(order, h.title)
	}
	return sections, order
}

// boldTitle matches a paragraph whose first line is only bold text, optionally
// followed by a colon. The rest of the paragraph is the section body.
func boldTitle(p *ast.Paragraph, src []byte) (string, bool) {
	if p.Lines().Len() == 0 {
		return "", false
	}
	first := p.Lines().At(0)
	m := boldLine.FindStringSubmatch(string(first.Value(src)))
	if m == nil {
		return "", false
	}
	title := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(m[1]+m[2]), ":"))
	return title, title != ""
}

func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func lineStart(src []byte, pos int) int {
	if pos > len(src) {
		pos = len(src)
	}
	return bytes.LastIndexByte(src[:pos], '\n') + 1
}

// lineEnd returns the offset just past the newline ending the line of seg.
func lineEnd(src []byte, seg text.Segment) int {
	pos := seg.Stop - 1
	if pos < seg.Start {
		pos = seg.Start
	}
	if pos >= len(src) {
		return len(src)
	}
	idx := bytes.IndexByte(src[pos:], '\n')
	if idx < 0 {
		return len(src)
	}
	return pos + idx + 1
}

// skipUnderline steps over a setext underline (=== or ---) starting at pos.
func skipUnderline(src []byte, pos int) int {
	if pos >= len(src) {
		return len(src)
	}
	end := len(src)
	if idx := bytes.IndexByte(src[pos:], '\n'); idx >= 0 {
		end = pos + idx + 1
	}
	line := strings.TrimSpace(string(src[pos:end]))
	if line != "" && (strings.Trim(line, "=") == "" || strings.Trim(line, "-") == "") {
		return end
	}
	return pos
}
