package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BarAvidan1996/eilam-sub000/internal/ingestion"
	"github.com/BarAvidan1996/eilam-sub000/internal/rag"
	"github.com/BarAvidan1996/eilam-sub000/internal/session"
	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
	"github.com/BarAvidan1996/eilam-sub000/internal/storage/sqlite"
)

type mockAnswerer struct{ mock.Mock }

func (m *mockAnswerer) Answer(ctx context.Context, req rag.Request) (*rag.Result, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*rag.Result)
	return res, args.Error(1)
}

type mockHistory struct{ mock.Mock }

func (m *mockHistory) GetQueryHistory(ctx context.Context, userID, sessionID string, limit int) ([]models.QueryRecord, error) {
	args := m.Called(ctx, userID, sessionID, limit)
	recs, _ := args.Get(0).([]models.QueryRecord)
	return recs, args.Error(1)
}

func (m *mockHistory) StoreFeedback(ctx context.Context, feedback *models.Feedback) error {
	return m.Called(ctx, feedback).Error(0)
}

type mockChat struct{ mock.Mock }

func (m *mockChat) CreateSession(ctx context.Context, userID string) (*models.ChatSession, error) {
	args := m.Called(ctx, userID)
	s, _ := args.Get(0).(*models.ChatSession)
	return s, args.Error(1)
}

func (m *mockChat) ListMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	args := m.Called(ctx, sessionID)
	msgs, _ := args.Get(0).([]models.ChatMessage)
	return msgs, args.Error(1)
}

func (m *mockChat) Chat(ctx context.Context, sessionID, message string) (*rag.Result, error) {
	args := m.Called(ctx, sessionID, message)
	res, _ := args.Get(0).(*rag.Result)
	return res, args.Error(1)
}

type mockIngester struct{ mock.Mock }

func (m *mockIngester) Ingest(ctx context.Context, req ingestion.Request) (*ingestion.Result, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*ingestion.Result)
	return res, args.Error(1)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type prunerFunc func(ctx context.Context, days int) (int64, error)

func (f prunerFunc) Prune(ctx context.Context, days int) (int64, error) { return f(ctx, days) }

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	out := map[string]interface{}{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

func TestAsk(t *testing.T) {
	answerer := new(mockAnswerer)
	app := fiber.New()
	app.Post("/ask", NewQueryHandler(answerer, new(mockHistory)).Ask)

	answerer.On("Answer", mock.Anything, rag.Request{Question: "מה עושים באזעקה?"}).Return(&rag.Result{
		Answer:         "היכנסו למרחב המוגן.",
		Sources:        []models.Source{{Title: "Guide", Similarity: 0.85, SourceType: models.SourceOfficial}},
		DocumentsFound: 1,
		Language:       "he",
	}, nil).Once()

	status, body := do(t, app, "POST", "/ask", `{"question":" מה עושים באזעקה? "}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "היכנסו למרחב המוגן.", body["answer"])
	assert.Equal(t, false, body["usedFallback"])
	assert.Equal(t, false, body["usedWebSearch"])
	sources := body["sources"].([]interface{})
	require.Len(t, sources, 1)
	assert.Equal(t, "official", sources[0].(map[string]interface{})["sourceType"])
	assert.NotContains(t, body, "debugError")

	answerer.On("Answer", mock.Anything, rag.Request{Question: ""}).Return(nil, rag.ErrEmptyQuestion).Once()
	status, _ = do(t, app, "POST", "/ask", `{"question":"   "}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = do(t, app, "POST", "/ask", `{bad`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	answerer.AssertExpectations(t)
}

func TestAsk_TotalFailureStillOK(t *testing.T) {
	answerer := new(mockAnswerer)
	app := fiber.New()
	app.Post("/ask", NewQueryHandler(answerer, new(mockHistory)).Ask)

	answerer.On("Answer", mock.Anything, mock.Anything).Return(&rag.Result{
		Answer:       "Sorry",
		Sources:      []models.Source{},
		UsedFallback: true,
		DebugError:   "llm down",
	}, nil).Once()

	status, body := do(t, app, "POST", "/ask", `{"question":"q"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "llm down", body["debugError"])
}

func TestHistoryAndFeedback(t *testing.T) {
	history := new(mockHistory)
	h := NewQueryHandler(new(mockAnswerer), history)
	app := fiber.New()
	app.Get("/history", h.GetQueryHistory)
	app.Post("/feedback", h.SubmitFeedback)

	status, _ := do(t, app, "GET", "/history", "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	history.On("GetQueryHistory", mock.Anything, "u1", "", 5).Return([]models.QueryRecord{{ID: "q1"}}, nil).Once()
	status, body := do(t, app, "GET", "/history?userId=u1&limit=5", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["history"], 1)

	status, _ = do(t, app, "POST", "/feedback", `{"queryId":"q1"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	history.On("StoreFeedback", mock.Anything, mock.MatchedBy(func(f *models.Feedback) bool {
		return f.QueryID == "q1" && !f.Helpful
	})).Return(nil).Once()
	status, _ = do(t, app, "POST", "/feedback", `{"queryId":"q1","helpful":false,"comment":"outdated"}`)
	assert.Equal(t, fiber.StatusCreated, status)

	history.On("StoreFeedback", mock.Anything, mock.Anything).Return(sqlite.ErrNotFound).Once()
	status, _ = do(t, app, "POST", "/feedback", `{"queryId":"nope","helpful":true}`)
	assert.Equal(t, fiber.StatusNotFound, status)

	history.AssertExpectations(t)
}

func TestSessionsAndChat(t *testing.T) {
	chat := new(mockChat)
	h := NewChatHandler(chat)
	app := fiber.New()
	app.Post("/sessions", h.CreateSession)
	app.Get("/sessions/:id/messages", h.ListMessages)
	app.Post("/chat", h.Chat)

	chat.On("CreateSession", mock.Anything, "u1").Return(&models.ChatSession{ID: "s1", UserID: "u1", CreatedAt: time.Now()}, nil).Once()
	status, body := do(t, app, "POST", "/sessions", `{"userId":"u1"}`)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "s1", body["sessionId"])

	chat.On("CreateSession", mock.Anything, "").Return(&models.ChatSession{ID: "s2"}, nil).Once()
	status, _ = do(t, app, "POST", "/sessions", "")
	assert.Equal(t, fiber.StatusCreated, status)

	chat.On("ListMessages", mock.Anything, "missing").Return(nil, session.ErrSessionNotFound).Once()
	status, _ = do(t, app, "GET", "/sessions/missing/messages", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	chat.On("ListMessages", mock.Anything, "s1").Return([]models.ChatMessage{
		{ID: "m1", Role: models.RoleUser, Content: "hi"},
	}, nil).Once()
	status, body = do(t, app, "GET", "/sessions/s1/messages", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["messages"], 1)

	status, _ = do(t, app, "POST", "/chat", `{"message":"hi"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	chat.On("Chat", mock.Anything, "s1", "What is a shelter?").Return(&rag.Result{
		Answer:        "A shelter is...",
		Sources:       []models.Source{{Title: "r", URL: "https://www.oref.org.il", SourceType: models.SourceWeb}},
		UsedFallback:  true,
		UsedWebSearch: true,
	}, nil).Once()
	status, body = do(t, app, "POST", "/chat", `{"message":"What is a shelter?","sessionId":"s1"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["usedWebSearch"])

	chat.On("Chat", mock.Anything, "gone", "hi").Return(nil, session.ErrSessionNotFound).Once()
	status, _ = do(t, app, "POST", "/chat", `{"message":"hi","sessionId":"gone"}`)
	assert.Equal(t, fiber.StatusNotFound, status)

	chat.AssertExpectations(t)
}

func TestUploadDocument(t *testing.T) {
	ingester := new(mockIngester)
	app := fiber.New()
	app.Post("/documents", NewDocumentHandler(ingester).UploadDocument)

	ingester.On("Ingest", mock.Anything, mock.MatchedBy(func(r ingestion.Request) bool { return r.Title == "" })).
		Return(nil, ingestion.ErrNoTitle).Once()
	status, _ := do(t, app, "POST", "/documents", `{"content":"x"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	ingester.On("Ingest", mock.Anything, mock.MatchedBy(func(r ingestion.Request) bool { return r.Title == "Kit" })).
		Return(&ingestion.Result{DocumentIDs: []string{"a"}, Chunks: 1, Language: "en"}, nil).Once()
	status, body := do(t, app, "POST", "/documents", `{"title":"Kit","content":"Keep water."}`)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, float64(1), body["chunks"])

	ingester.On("Ingest", mock.Anything, mock.Anything).Return(nil, errors.New("milvus down")).Once()
	status, _ = do(t, app, "POST", "/documents", `{"title":"Other","content":"text"}`)
	assert.Equal(t, fiber.StatusInternalServerError, status)
}

func TestPruneCache(t *testing.T) {
	var gotDays int
	app := fiber.New()
	app.Post("/prune", NewAdminHandler(prunerFunc(func(_ context.Context, days int) (int64, error) {
		gotDays = days
		return 3, nil
	}), 30).PruneCache)

	status, body := do(t, app, "POST", "/prune", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 30, gotDays)
	assert.Equal(t, float64(3), body["removed"])

	status, _ = do(t, app, "POST", "/prune?days=7", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 7, gotDays)

	status, _ = do(t, app, "POST", "/prune?days=-1", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestReady(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	app := fiber.New()
	app.Get("/ready", NewHealthHandler(map[string]Pinger{"sqlite": ok}).Ready)
	app.Get("/ready-down", NewHealthHandler(map[string]Pinger{"sqlite": ok, "redis": down}).Ready)
	app.Get("/health", NewHealthHandler(nil).Health)

	status, _ := do(t, app, "GET", "/ready", "")
	assert.Equal(t, fiber.StatusOK, status)

	status, body := do(t, app, "GET", "/ready-down", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["sqlite"])
	assert.Equal(t, "connection refused", checks["redis"])

	status, body = do(t, app, "GET", "/health", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}

func TestSplitIntoWords(t *testing.T) {
	assert.Equal(t, []string{"Enter", "the", "shelter.", "\n", "Stay"}, splitIntoWords("Enter  the shelter.\nStay"))
	assert.Empty(t, splitIntoWords(""))
}
