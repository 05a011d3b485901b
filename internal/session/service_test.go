package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BarAvidan1996/eilam-sub000/internal/rag"
	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
	"github.com/BarAvidan1996/eilam-sub000/internal/storage/sqlite"
)

type mockAnswerer struct {
	mock.Mock
}

func (m *mockAnswerer) Answer(ctx context.Context, req rag.Request) (*rag.Result, error) {
	args := m.Called(ctx, req)
	if res, ok := args.Get(0).(*rag.Result); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestService(t *testing.T, answerer Answerer) *Service {
	t.Helper()
	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "eilam.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { _ = db.Close() })

	svc := NewService(db, answerer)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return svc
}

func TestCreateSession(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	anon, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, anon.ID)
	assert.Empty(t, anon.UserID)

	owned, err := svc.CreateSession(ctx, "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, anon.ID, owned.ID)

	got, err := svc.GetSession(ctx, owned.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
}

func TestAppendAndListMessages(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)

	_, err = svc.AppendMessage(ctx, session.ID, "What do I do during a siren?", models.RoleUser, nil)
	require.NoError(t, err)
	_, err = svc.AppendMessage(ctx, session.ID, "Enter the protected space.", models.RoleAssistant, []models.Source{
		{Title: "Guide", Similarity: 0.85, SourceType: models.SourceOfficial},
	})
	require.NoError(t, err)

	messages, err := svc.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, models.RoleAssistant, messages[1].Role)
	require.Len(t, messages[1].Sources, 1)
	assert.Equal(t, "Guide", messages[1].Sources[0].Title)
	assert.True(t, messages[0].CreatedAt.Before(messages[1].CreatedAt))
}

func TestAppendMessage_Validation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)

	_, err = svc.AppendMessage(ctx, session.ID, "hi", models.MessageRole("system"), nil)
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = svc.AppendMessage(ctx, session.ID, "   ", models.RoleUser, nil)
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = svc.AppendMessage(ctx, "missing", "hi", models.RoleUser, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.ListMessages(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestChat_StoresBothTurns(t *testing.T) {
	answerer := new(mockAnswerer)
	svc := newTestService(t, answerer)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "user-7")
	require.NoError(t, err)

	result := &rag.Result{
		Answer:  "Enter the protected space and stay for ten minutes.",
		Sources: []models.Source{{Title: "Guide", Similarity: 0.85, SourceType: models.SourceOfficial}},
	}
	answerer.On("Answer", mock.Anything, rag.Request{
		Question:  "מה עושים באזעקה?",
		SessionID: session.ID,
		UserID:    "user-7",
	}).Return(result, nil).Once()

	got, err := svc.Chat(ctx, session.ID, "מה עושים באזעקה?")
	require.NoError(t, err)
	assert.Same(t, result, got)

	messages, err := svc.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "מה עושים באזעקה?", messages[0].Content)
	assert.Equal(t, result.Answer, messages[1].Content)
	assert.Equal(t, result.Sources, messages[1].Sources)

	answerer.AssertExpectations(t)
}

func TestChat_UnknownSession(t *testing.T) {
	answerer := new(mockAnswerer)
	svc := newTestService(t, answerer)

	_, err := svc.Chat(context.Background(), "missing", "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	answerer.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything)
}

func TestChat_AnswerErrorKeepsUserMessage(t *testing.T) {
	answerer := new(mockAnswerer)
	svc := newTestService(t, answerer)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)

	answerer.On("Answer", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()

	_, err = svc.Chat(ctx, session.ID, "hello")
	require.Error(t, err)

	messages, err := svc.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, models.RoleUser, messages[0].Role)
}

func TestChat_EmptyMessage(t *testing.T) {
	svc := newTestService(t, new(mockAnswerer))
	_, err := svc.Chat(context.Background(), "any", " ")
	assert.ErrorIs(t, err, rag.ErrEmptyQuestion)
}
