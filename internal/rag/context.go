package rag

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"

	"github.com/BarAvidan1996/eilam-sub000/internal/search/web"
	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
)

// minFragment is the smallest truncated tail worth adding to a context.
const minFragment = 80

var sentenceEnd = regexp.MustCompile(`[^.!?\n]+[.!?\n]*`)

// EstimateTokens approximates a prompt's token count as ceil(chars/4).
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// BuildContext concatenates documents best first until budget characters
// are used. The first document that does not fit is cut at a sentence
// boundary, or mid-sentence when no sentence fits, and nothing after it is
// added. The result never exceeds budget characters.
func BuildContext(docs []models.RetrievedDocument, budget int) string {
	var b strings.Builder
	used := 0

	for i, doc := range docs {
		header := fmt.Sprintf("[%d] %s\n", i+1, doc.Title)
		body := strings.TrimSpace(doc.Content)
		block := header + body + "\n\n"

		n := utf8.RuneCountInString(block)
		if used+n <= budget {
			b.WriteString(block)
			used += n
			continue
		}

		remaining := budget - used - utf8.RuneCountInString(header) - 2
		if remaining >= minFragment {
			b.WriteString(header)
			b.WriteString(truncateSentences(body, remaining))
			b.WriteString("\n\n")
		}
		break
	}

	return strings.TrimRight(b.String(), "\n")
}

// truncateSentences returns the longest run of leading sentences that fits
// in limit characters, falling back to a hard cut.
func truncateSentences(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}

	var out strings.Builder
	used := 0
	for _, s := range sentences(text) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		add := utf8.RuneCountInString(s)
		if used > 0 {
			add++
		}
		if used+add > limit {
			break
		}
		if used > 0 {
			out.WriteByte(' ')
		}
		out.WriteString(s)
		used += add
	}
	if used > 0 {
		return out.String()
	}

	runes := []rune(text)
	return string(runes[:limit])
}

func sentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTokenization(false),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err == nil {
		if sents := doc.Sentences(); len(sents) > 1 {
			out := make([]string, len(sents))
			for i, s := range sents {
				out[i] = s.Text
			}
			return out
		}
	}
	return sentenceEnd.FindAllString(text, -1)
}

// BuildWebContext formats search results for the web-grounded prompt.
func BuildWebContext(results []web.SearchResult, budget int) string {
	docs := make([]models.RetrievedDocument, len(results))
	for i, r := range results {
		docs[i] = models.RetrievedDocument{
			Document: models.Document{
				Title:   fmt.Sprintf("%s (%s)", r.Title, r.URL),
				Content: r.Content,
			},
		}
	}
	return BuildContext(docs, budget)
}
