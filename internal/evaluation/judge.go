package evaluation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/language"
	"github.com/BarAvidan1996/eilam-sub000/internal/llm"
	"github.com/BarAvidan1996/eilam-sub000/internal/metrics"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
)

const judgeSystemPrompt = `You are a strict reviewer of answers given by a civil-defense emergency assistant.
Decide whether the answer directly and accurately addresses the question.
An answer that says the information is unavailable, changes the subject or is vague does NOT address it.
Reply with a single word: "yes" or "no".`

// Judge asks a second, independent model call whether a drafted answer is
// responsive to the question.
type Judge struct {
	generator llm.Generator
	model     string
}

func NewJudge(generator llm.Generator, model string) *Judge {
	return &Judge{generator: generator, model: model}
}

// IsSufficient returns the verdict. Callers decide what a failed call means.
func (j *Judge) IsSufficient(ctx context.Context, question, answer string) (bool, error) {
	resp, err := j.generator.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: judgeSystemPrompt,
		UserPrompt:   fmt.Sprintf("Question:\n%s\n\nAnswer:\n%s\n\nDoes the answer directly and accurately address the question?", question, answer),
		Temperature:  0,
		MaxTokens:    3,
		Model:        j.model,
	})
	if err != nil {
		metrics.JudgeVerdicts.WithLabelValues("error").Inc()
		return false, fmt.Errorf("quality judge call failed: %w", err)
	}

	ok := ParseVerdict(resp.Content)
	verdict := "insufficient"
	if ok {
		verdict = "sufficient"
	}
	metrics.JudgeVerdicts.WithLabelValues(verdict).Inc()
	logger.Debug("Quality judge verdict",
		zap.String("verdict", verdict),
		zap.String("raw", resp.Content),
	)
	return ok, nil
}

// ParseVerdict accepts "yes" or its Hebrew equivalent at the start of the
// reply; anything else is a "no".
func ParseVerdict(content string) bool {
	v := strings.ToLower(strings.TrimSpace(content))
	v = strings.TrimLeft(v, "\"'`*")
	return strings.HasPrefix(v, "yes") || strings.HasPrefix(v, "כן")
}

// NoAnswerMarkers are the phrases the grounded prompt tells the model to use
// when the context does not contain the answer.
var NoAnswerMarkers = map[language.Code][]string{
	language.English: {"no answer found", "i don't know", "i do not know", "not in the provided"},
	language.Hebrew:  {"לא נמצאה תשובה", "לא מצאתי", "אין לי מידע", "איני יודע", "אני לא יודע"},
}

// ContainsNoAnswer reports whether answer admits the context was insufficient.
func ContainsNoAnswer(answer string) bool {
	lower := strings.ToLower(answer)
	for _, markers := range NoAnswerMarkers {
		for _, m := range markers {
			if strings.Contains(lower, m) {
				return true
			}
		}
	}
	return false
}
