package timeentity

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/llm"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
)

// TimeEntity biases web search toward recent results. Zero values mean
// "not stated".
type TimeEntity struct {
	Days         int    `json:"days,omitempty"`
	TimeRange    string `json:"timeRange,omitempty"`
	SpecificDate string `json:"specificDate,omitempty"`
	IsRecent     bool   `json:"isRecent"`
}

func (t TimeEntity) IsZero() bool {
	return t == TimeEntity{}
}

type phrase struct {
	text string
	days int
}

var (
	phrases = []phrase{
		{"today", 1}, {"tonight", 1}, {"yesterday", 2},
		{"this week", 7}, {"past week", 7}, {"last week", 7},
		{"this month", 30}, {"past month", 30}, {"last month", 30},
		{"this year", 365}, {"past year", 365}, {"last year", 365},
		{"היום", 1}, {"הלילה", 1}, {"אתמול", 2},
		{"השבוע", 7}, {"בשבוע האחרון", 7},
		{"החודש", 30}, {"בחודש האחרון", 30},
		{"השנה", 365}, {"בשנה האחרונה", 365},
	}

	recencyWords = []string{
		"now", "current", "currently", "latest", "recent", "recently", "ongoing", "breaking", "news",
		"עכשיו", "כרגע", "הנוכחי", "הנוכחית", "הנוכחיים", "עדכני", "עדכנית", "עדכון", "עדכונים",
		"האחרון", "האחרונה", "האחרונים", "האחרונות", "חדשות", "המצב",
	}

	lastDaysEN  = regexp.MustCompile(`(?:last|past) (\d+) days?`)
	lastWeeksEN = regexp.MustCompile(`(?:last|past) (\d+) weeks?`)
	lastDaysHE  = regexp.MustCompile(`(\d+) (?:הימים|ימים) (?:האחרונים|אחרונים)`)
	isoDate     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDate   = regexp.MustCompile(`\b(\d{1,2})[/.](\d{1,2})[/.](\d{4})\b`)
)

// normalize lowercases and reduces text to space-separated letter/digit runs,
// padded so phrase matches can require whole words.
func normalize(text string) string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return " " + strings.Join(tokens, " ") + " "
}

// Parse extracts a TimeEntity using fixed English and Hebrew rules.
func Parse(question string) TimeEntity {
	var te TimeEntity
	norm := normalize(question)

	for _, p := range phrases {
		if strings.Contains(norm, " "+p.text+" ") {
			if te.Days == 0 || p.days < te.Days {
				te.Days = p.days
			}
			te.IsRecent = true
		}
	}

	for _, re := range []*regexp.Regexp{lastDaysEN, lastDaysHE} {
		if m := re.FindStringSubmatch(norm); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				te.Days = n
				te.IsRecent = true
			}
		}
	}
	if m := lastWeeksEN.FindStringSubmatch(norm); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			te.Days = n * 7
			te.IsRecent = true
		}
	}

	if !te.IsRecent {
		for _, w := range recencyWords {
			if strings.Contains(norm, " "+w+" ") {
				te.IsRecent = true
				break
			}
		}
	}

	te.SpecificDate = parseDate(question)
	if te.Days > 0 {
		te.TimeRange = RangeForDays(te.Days)
	}
	return te
}

func parseDate(text string) string {
	if m := isoDate.FindStringSubmatch(text); m != nil {
		if t, err := time.Parse("2006-01-02", m[0]); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if m := slashDate.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if t.Day() == day && int(t.Month()) == month {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// RangeForDays maps a day count onto the search provider's coarse ranges.
func RangeForDays(days int) string {
	switch {
	case days <= 1:
		return "day"
	case days <= 7:
		return "week"
	case days <= 31:
		return "month"
	default:
		return "year"
	}
}

const extractPrompt = `You extract time references from user questions about emergencies and civil defense.
Return ONLY a JSON object with these fields:
{"days": <integer or 0>, "timeRange": "day"|"week"|"month"|"year"|"", "specificDate": "YYYY-MM-DD" or "", "isRecent": true|false}
"isRecent" is true when the question asks about the current or latest situation.`

// Extractor refines the rule-based result with a model call when a
// generator is configured.
type Extractor struct {
	generator llm.Generator
}

func NewExtractor(generator llm.Generator) *Extractor {
	return &Extractor{generator: generator}
}

func (e *Extractor) Extract(ctx context.Context, question string) TimeEntity {
	rules := Parse(question)
	if e == nil || e.generator == nil {
		return rules
	}

	resp, err := e.generator.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: extractPrompt,
		UserPrompt:   question,
		Temperature:  0,
		MaxTokens:    100,
	})
	if err != nil {
		logger.Warn("Time entity extraction failed, using rules", zap.Error(err))
		return rules
	}

	refined, err := decode(resp.Content)
	if err != nil {
		logger.Warn("Time entity response unparseable, using rules", zap.Error(err))
		return rules
	}

	if refined.SpecificDate == "" {
		refined.SpecificDate = rules.SpecificDate
	}
	if refined.Days == 0 && refined.TimeRange == "" {
		refined.Days = rules.Days
		refined.TimeRange = rules.TimeRange
	}
	if refined.Days > 0 && refined.TimeRange == "" {
		refined.TimeRange = RangeForDays(refined.Days)
	}
	refined.IsRecent = refined.IsRecent || rules.IsRecent
	return refined
}

func decode(content string) (TimeEntity, error) {
	var te TimeEntity
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return te, fmt.Errorf("no JSON object in %q", content)
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &te); err != nil {
		return te, err
	}
	if te.Days < 0 {
		te.Days = 0
	}
	switch te.TimeRange {
	case "", "day", "week", "month", "year":
	default:
		te.TimeRange = ""
	}
	return te, nil
}
