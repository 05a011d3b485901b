package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BarAvidan1996/eilam-sub000/internal/timeentity"
)

func TestSearch_NotConfigured(t *testing.T) {
	resp, err := NewClient(Config{}).Search(context.Background(), "q", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
	require.NotNil(t, resp)
	assert.False(t, resp.Success)
}

func TestSearch_SendsDomainsAndRecency(t *testing.T) {
	var got tavilyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "Update", "url": "https://www.oref.org.il/a", "content": "<p>Stay   near <b>shelter</b></p><script>x()</script>", "score": 0.91},
				{"title": "", "url": "https://x", "content": "   "},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "key", Endpoint: srv.URL, MaxResults: 3})
	te := &timeentity.TimeEntity{Days: 1, TimeRange: "day", IsRecent: true, SpecificDate: "2024-04-14"}
	resp, err := c.Search(context.Background(), "sirens", te)
	require.NoError(t, err)

	assert.Equal(t, "sirens 2024-04-14", got.Query)
	assert.Equal(t, 3, got.MaxResults)
	assert.Equal(t, DefaultDomains, got.IncludeDomains)
	assert.Equal(t, "news", got.Topic)
	assert.Equal(t, 1, got.Days)
	assert.Equal(t, "day", got.TimeRange)

	assert.True(t, resp.Success)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Stay near shelter", resp.Results[0].Content)
	assert.InDelta(t, 0.91, resp.Results[0].Score, 1e-9)
}

func TestSearch_EmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	resp, err := NewClient(Config{APIKey: "key", Endpoint: srv.URL}).Search(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Empty(t, resp.Results)
}

func TestSearch_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(Config{APIKey: "bad", Endpoint: srv.URL}).Search(context.Background(), "q", nil)
	assert.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestSearch_ServerErrorSingleAttemptByDefault(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(Config{APIKey: "key", Endpoint: srv.URL}).Search(context.Background(), "q", nil)
	assert.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCleanContent_CapsLength(t *testing.T) {
	long := make([]rune, 3000)
	for i := range long {
		long[i] = 'א'
	}
	assert.Len(t, []rune(cleanContent(string(long))), 2000)
}
