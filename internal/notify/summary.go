package notify

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	goldmarktext "github.com/yuin/goldmark/text"
)

// MaxSummaryLength caps the derived turn summary.
const MaxSummaryLength = 100

// Summarize derives a short notification summary from assistant output:
// markdown is flattened to plain text, then the first one or two sentences
// are kept, capped at MaxSummaryLength characters.
func Summarize(markdown string) string {
	plain := plainText(markdown)
	plain = strings.Join(strings.Fields(plain), " ")
	if plain == "" {
		return ""
	}

	sentences := splitSentences(plain)
	summary := sentences[0]
	if len(sentences) > 1 {
		extended := summary + " " + sentences[1]
		if len([]rune(extended)) <= MaxSummaryLength {
			summary = extended
		}
	}

	runes := []rune(summary)
	if len(runes) > MaxSummaryLength {
		return string(runes[:MaxSummaryLength-1]) + "…"
	}
	return summary
}

// plainText flattens markdown to its visible text. Code blocks are omitted;
// a summary is about what the answer says, not how it says it.
func plainText(markdown string) string {
	source := []byte(markdown)
	md := goldmark.New()
	doc := md.Parser().Parse(goldmarktext.NewReader(source))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if _, ok := n.(*ast.Paragraph); ok {
				sb.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			sb.Write(v.Segment.Value(source))
			if v.SoftLineBreak() || v.HardLineBreak() {
				sb.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

// splitSentences breaks text on terminal punctuation followed by a space.
// The punctuation stays with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 == len(runes) || runes[i+1] == ' ' {
				sentences = append(sentences, strings.TrimSpace(string(runes[start:i+1])))
				start = i + 1
			}
		}
	}
	if start < len(runes) {
		rest := strings.TrimSpace(string(runes[start:]))
		if rest != "" {
			sentences = append(sentences, rest)
		}
	}
	if len(sentences) == 0 {
		return []string{strings.TrimSpace(text)}
	}
	return sentences
}
