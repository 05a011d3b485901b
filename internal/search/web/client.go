package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/metrics"
	"github.com/BarAvidan1996/eilam-sub000/internal/timeentity"
	"github.com/BarAvidan1996/eilam-sub000/pkg/circuitbreaker"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
	"github.com/BarAvidan1996/eilam-sub000/pkg/retry"
)

const defaultEndpoint = "https://api.tavily.com/search"

var ErrNotConfigured = errors.New("web search is not configured")

// DefaultDomains are the authoritative civil-defense sources searches are
// scoped to.
var DefaultDomains = []string{
	"oref.org.il",
	"gov.il",
	"idf.il",
	"mda.org.il",
	"ynet.co.il",
	"timesofisrael.com",
}

type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type Response struct {
	Success bool           `json:"success"`
	Results []SearchResult `json:"results"`
}

type Config struct {
	APIKey         string
	Endpoint       string
	MaxResults     int
	Timeout        time.Duration
	IncludeDomains []string
	// RetryAttempts defaults to a single try; the pipeline owns escalation.
	RetryAttempts int
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
}

func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	if len(cfg.IncludeDomains) == 0 {
		cfg.IncludeDomains = DefaultDomains
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cb: circuitbreaker.NewCircuitBreaker("web_search", circuitbreaker.Config{
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
			Observer:         metrics.BreakerObserver(),
			Logger:           logger.GetLogger(),
		}),
	}
}

type tavilyRequest struct {
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"`
	MaxResults     int      `json:"max_results"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	Topic          string   `json:"topic,omitempty"`
	Days           int      `json:"days,omitempty"`
	TimeRange      string   `json:"time_range,omitempty"`
}

type tavilyResponse struct {
	Results []SearchResult `json:"results"`
}

// Search queries Tavily. A nil timeEntity means no recency bias.
func (c *Client) Search(ctx context.Context, query string, te *timeentity.TimeEntity) (*Response, error) {
	if c.cfg.APIKey == "" {
		return &Response{}, ErrNotConfigured
	}

	logger.Info("Performing web search", zap.String("query", query))

	payload := tavilyRequest{
		Query:          withDate(query, te),
		SearchDepth:    "advanced",
		MaxResults:     c.cfg.MaxResults,
		IncludeDomains: c.cfg.IncludeDomains,
	}
	if te != nil && te.IsRecent {
		payload.Topic = "news"
		payload.Days = te.Days
		if payload.Days == 0 {
			payload.Days = 7
		}
		payload.TimeRange = te.TimeRange
	}

	var parsed tavilyResponse
	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, retry.Config{
			MaxAttempts:  c.cfg.RetryAttempts,
			InitialDelay: 300 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2,
		}, func() error {
			return c.post(ctx, payload, &parsed)
		})
	})
	if err != nil {
		metrics.WebSearchTriggered.WithLabelValues("error").Inc()
		return &Response{}, fmt.Errorf("web search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		r.Content = cleanContent(r.Content)
		if r.Content == "" && r.Title == "" {
			continue
		}
		results = append(results, r)
	}

	outcome := "results"
	if len(results) == 0 {
		outcome = "empty"
	}
	metrics.WebSearchTriggered.WithLabelValues(outcome).Inc()
	logger.Info("Web search completed", zap.Int("results", len(results)))

	return &Response{Success: len(results) > 0, Results: results}, nil
}

func (c *Client) post(ctx context.Context, payload tavilyRequest, out *tavilyResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("search returned status %d", resp.StatusCode)
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return retry.Permanent(fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

func withDate(query string, te *timeentity.TimeEntity) string {
	if te == nil || te.SpecificDate == "" || strings.Contains(query, te.SpecificDate) {
		return query
	}
	return query + " " + te.SpecificDate
}

// cleanContent strips markup some sources leak into snippets and caps length.
func cleanContent(content string) string {
	if strings.ContainsAny(content, "<>") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(content)); err == nil {
			doc.Find("script, style, nav, footer, header").Remove()
			content = doc.Text()
		}
	}
	content = strings.Join(strings.Fields(content), " ")

	const maxRunes = 2000
	if r := []rune(content); len(r) > maxRunes {
		content = string(r[:maxRunes])
	}
	return content
}
