package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/BarAvidan1996/eilam-sub000/internal/search/web"
	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
)

func doc(title, content string) models.RetrievedDocument {
	return models.RetrievedDocument{Document: models.Document{Title: title, Content: content}}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 3, EstimateTokens("שלום עולם"))
}

func TestBuildContext_NeverExceedsBudget(t *testing.T) {
	sentence := "Stay in the protected space for ten minutes after the siren. "
	hebrew := "היכנסו למרחב המוגן ושהו בו עשר דקות. "
	corpora := [][]models.RetrievedDocument{
		{doc("Sirens", strings.Repeat(sentence, 200))},
		{doc("Short", "Keep water."), doc("Long", strings.Repeat(sentence, 80)), doc("Never", "unused")},
		{doc("מרחב מוגן", strings.Repeat(hebrew, 150))},
		{doc("Wall", strings.Repeat("x", 10000))},
		{},
	}

	for _, budget := range []int{0, 1, 50, 100, 500, 2500} {
		for _, docs := range corpora {
			out := BuildContext(docs, budget)
			assert.LessOrEqual(t, utf8.RuneCountInString(out), budget)
			assert.True(t, utf8.ValidString(out))
		}
	}
}

func TestBuildContext_KeepsWholeDocumentsThatFit(t *testing.T) {
	out := BuildContext([]models.RetrievedDocument{
		doc("First", "Go to the shelter."),
		doc("Second", "Bring water."),
	}, 2500)

	assert.Equal(t, "[1] First\nGo to the shelter.\n\n[2] Second\nBring water.", out)
}

func TestBuildContext_TruncatesAtSentenceAndStops(t *testing.T) {
	long := "The first sentence is about sirens. The second sentence is about shelters. " +
		strings.Repeat("Filler text follows here without much meaning at all. ", 20)
	out := BuildContext([]models.RetrievedDocument{
		doc("Short", "Keep water."),
		doc("Long", long),
		doc("Third", "Should never appear."),
	}, 200)

	assert.Contains(t, out, "[2] Long")
	assert.Contains(t, out, "The first sentence is about sirens.")
	assert.NotContains(t, out, "Third")
	assert.True(t, strings.HasSuffix(out, "."), out)
}

func TestBuildContext_HardCutWithoutPunctuation(t *testing.T) {
	out := BuildContext([]models.RetrievedDocument{doc("Wall", strings.Repeat("a", 500))}, 120)

	assert.True(t, strings.HasPrefix(out, "[1] Wall\n"))
	assert.LessOrEqual(t, utf8.RuneCountInString(out), 120)
	assert.Greater(t, utf8.RuneCountInString(out), minFragment)
}

func TestBuildContext_SkipsTinyTail(t *testing.T) {
	first := doc("One", strings.Repeat("b", 90))
	out := BuildContext([]models.RetrievedDocument{first, doc("Two", strings.Repeat("c", 500))}, 150)

	assert.NotContains(t, out, "Two")
	assert.Contains(t, out, "[1] One")
}

func TestBuildWebContext(t *testing.T) {
	out := BuildWebContext([]web.SearchResult{
		{Title: "Update", URL: "https://www.oref.org.il/a", Content: "Stay near shelters."},
	}, 2500)

	assert.Equal(t, "[1] Update (https://www.oref.org.il/a)\nStay near shelters.", out)
}
