package router

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/llm"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
)

type Route string

const (
	RouteDocuments     Route = "documents"
	RouteCurrentEvents Route = "current_events"
	RouteGeneral       Route = "general"
)

const classifyPrompt = `You route questions for a civil-defense emergency assistant.
Reply with exactly one word:
- documents: preparedness, shelters, alerts procedures, first aid, emergency kits, official guidance
- current_events: the current or recent situation, news, ongoing incidents, today's alerts
- general: anything else`

// Router classifies a question before retrieval. Any failure routes to
// documents so the normal path still runs.
type Router struct {
	generator llm.Generator
}

func New(generator llm.Generator) *Router {
	return &Router{generator: generator}
}

func (r *Router) Classify(ctx context.Context, question string) Route {
	resp, err := r.generator.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: classifyPrompt,
		UserPrompt:   question,
		Temperature:  0,
		MaxTokens:    5,
	})
	if err != nil {
		logger.Warn("Query routing failed, defaulting to documents", zap.Error(err))
		return RouteDocuments
	}

	route := parse(resp.Content)
	logger.Debug("Query routed", zap.String("route", string(route)))
	return route
}

func parse(content string) Route {
	verdict := strings.ToLower(strings.TrimSpace(content))
	verdict = strings.Trim(verdict, " .\"'`")
	switch {
	case strings.HasPrefix(verdict, string(RouteCurrentEvents)), strings.HasPrefix(verdict, "current"):
		return RouteCurrentEvents
	case strings.HasPrefix(verdict, string(RouteGeneral)):
		return RouteGeneral
	default:
		return RouteDocuments
	}
}
