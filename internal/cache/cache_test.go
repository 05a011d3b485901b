package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetCachedAnswer(ctx context.Context, question, language string) (*models.CachedAnswer, error) {
	args := m.Called(ctx, question, language)
	entry, _ := args.Get(0).(*models.CachedAnswer)
	return entry, args.Error(1)
}

func (m *mockStore) SaveAnswerToCache(ctx context.Context, question, language, answer string, sources []models.Source) error {
	args := m.Called(ctx, question, language, answer, sources)
	return args.Error(0)
}

func (m *mockStore) CleanOldCache(ctx context.Context, daysOld int) (int64, error) {
	args := m.Called(ctx, daysOld)
	return args.Get(0).(int64), args.Error(1)
}

func TestGet_StoreErrorIsMiss(t *testing.T) {
	store := new(mockStore)
	store.On("GetCachedAnswer", mock.Anything, "q", "en").Return(nil, errors.New("db down"))

	svc := NewService(store)
	assert.Nil(t, svc.Get(context.Background(), "q", "en"))
	store.AssertExpectations(t)
}

func TestPut_StoreErrorSwallowed(t *testing.T) {
	store := new(mockStore)
	store.On("SaveAnswerToCache", mock.Anything, "q", "en", "a", mock.Anything).Return(errors.New("disk full"))

	svc := NewService(store, WithLRU(8, time.Minute))
	assert.NotPanics(t, func() { svc.Put(context.Background(), "q", "en", "a", nil) })

	// A failed write must not be served from the in-process layer either.
	store.On("GetCachedAnswer", mock.Anything, "q", "en").Return(nil, nil)
	assert.Nil(t, svc.Get(context.Background(), "q", "en"))
}

func TestGet_LRUFrontServesRepeatReads(t *testing.T) {
	store := new(mockStore)
	entry := &models.CachedAnswer{Question: "q", Language: "he", Answer: "a", Sources: []models.Source{{Title: "t"}}}
	store.On("GetCachedAnswer", mock.Anything, "q", "he").Return(entry, nil).Once()

	svc := NewService(store, WithLRU(8, time.Minute))
	first := svc.Get(context.Background(), "q", "he")
	second := svc.Get(context.Background(), "q", "he")

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.Sources, second.Sources)
	store.AssertNumberOfCalls(t, "GetCachedAnswer", 1)
}

func TestPrune_PurgesFrontAndReportsErrors(t *testing.T) {
	store := new(mockStore)
	store.On("SaveAnswerToCache", mock.Anything, "q", "en", "a", mock.Anything).Return(nil)
	store.On("CleanOldCache", mock.Anything, 30).Return(int64(4), nil).Once()
	store.On("CleanOldCache", mock.Anything, 7).Return(int64(0), errors.New("locked")).Once()
	store.On("GetCachedAnswer", mock.Anything, "q", "en").Return(nil, nil)

	svc := NewService(store, WithLRU(8, time.Minute))
	svc.Put(context.Background(), "q", "en", "a", nil)

	removed, err := svc.Prune(context.Background(), 30)
	require.NoError(t, err)
	assert.EqualValues(t, 4, removed)
	assert.Nil(t, svc.Get(context.Background(), "q", "en"))

	_, err = svc.Prune(context.Background(), 7)
	assert.Error(t, err)
}
