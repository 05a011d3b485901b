package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BarAvidan1996/eilam-sub000/internal/llm"
)

type stubGenerator struct {
	content string
	err     error
}

func (s stubGenerator) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.content}, nil
}

func TestClassify(t *testing.T) {
	tests := []struct {
		reply string
		want  Route
	}{
		{"documents", RouteDocuments},
		{"current_events", RouteCurrentEvents},
		{" Current events.", RouteCurrentEvents},
		{"GENERAL", RouteGeneral},
		{"I am not sure", RouteDocuments},
		{"", RouteDocuments},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			assert.Equal(t, tt.want, New(stubGenerator{content: tt.reply}).Classify(context.Background(), "q"))
		})
	}
}

func TestClassify_ErrorDefaultsToDocuments(t *testing.T) {
	r := New(stubGenerator{err: errors.New("rate limited")})
	assert.Equal(t, RouteDocuments, r.Classify(context.Background(), "q"))
}
