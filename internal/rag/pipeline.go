package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/internal/evaluation"
	"github.com/BarAvidan1996/eilam-sub000/internal/language"
	"github.com/BarAvidan1996/eilam-sub000/internal/llm"
	"github.com/BarAvidan1996/eilam-sub000/internal/metrics"
	"github.com/BarAvidan1996/eilam-sub000/internal/router"
	"github.com/BarAvidan1996/eilam-sub000/internal/search/web"
	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
	"github.com/BarAvidan1996/eilam-sub000/internal/timeentity"
	"github.com/BarAvidan1996/eilam-sub000/pkg/config"
	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
)

var ErrEmptyQuestion = errors.New("question is required")

// maxSteps bounds the state machine; the longest legal walk is six transitions.
const maxSteps = 16

type AnswerCache interface {
	Get(ctx context.Context, question, language string) *models.CachedAnswer
	Put(ctx context.Context, question, language, answer string, sources []models.Source)
}

type Retriever interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Search(ctx context.Context, embedding []float32, lang language.Code, limit int) ([]models.RetrievedDocument, error)
}

type Judge interface {
	IsSufficient(ctx context.Context, question, answer string) (bool, error)
}

type WebSearcher interface {
	Search(ctx context.Context, query string, te *timeentity.TimeEntity) (*web.Response, error)
}

type TimeExtractor interface {
	Extract(ctx context.Context, question string) timeentity.TimeEntity
}

type Router interface {
	Classify(ctx context.Context, question string) router.Route
}

// Recorder persists one row per answered question.
type Recorder interface {
	InsertQueryRecord(ctx context.Context, record *models.QueryRecord, sources []models.Source) error
}

// Deps are the collaborators of a Pipeline. Cache, Web, Time, Router and
// Recorder may be nil.
type Deps struct {
	Cache     AnswerCache
	Retriever Retriever
	Generator llm.Generator
	Judge     Judge
	Web       WebSearcher
	Time      TimeExtractor
	Router    Router
	Recorder  Recorder
}

type Config struct {
	MatchCount         int
	ContextCharBudget  int
	MaxPromptTokens    int
	MinAnswerLength    int
	WebResultsInPrompt int
	GenerationTimeout  time.Duration
	Temperature        float32
	MaxTokens          int
	Policies           map[Stage]StagePolicy
}

func ConfigFromSettings(rag config.RAGConfig, gen config.LLMConfig) Config {
	return Config{
		MatchCount:        rag.MatchCount,
		ContextCharBudget: rag.ContextCharBudget,
		MaxPromptTokens:   rag.MaxPromptTokens,
		MinAnswerLength:   rag.MinAnswerLength,
		GenerationTimeout: rag.GenerationTimeout(),
		Temperature:       gen.Temperature,
		MaxTokens:         gen.MaxTokens,
	}
}

func (c Config) withDefaults() Config {
	if c.MatchCount <= 0 {
		c.MatchCount = 3
	}
	if c.ContextCharBudget <= 0 {
		c.ContextCharBudget = 2500
	}
	if c.MaxPromptTokens <= 0 {
		c.MaxPromptTokens = 3800
	}
	if c.MinAnswerLength <= 0 {
		c.MinAnswerLength = 20
	}
	if c.WebResultsInPrompt <= 0 {
		c.WebResultsInPrompt = 3
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 30 * time.Second
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 800
	}
	policies := DefaultPolicies()
	for stage, p := range c.Policies {
		policies[stage] = p
	}
	c.Policies = policies
	return c
}

type Request struct {
	Question  string
	SessionID string
	UserID    string
}

type Result struct {
	QueryID        string          `json:"queryId,omitempty"`
	Answer         string          `json:"answer"`
	Sources        []models.Source `json:"sources"`
	UsedFallback   bool            `json:"usedFallback"`
	UsedWebSearch  bool            `json:"usedWebSearch"`
	UsedCache      bool            `json:"usedCache"`
	DocumentsFound int             `json:"documentsFound"`
	DebugError     string          `json:"debugError,omitempty"`
	Language       string          `json:"language"`
	Path           Path            `json:"-"`
	Terminal       State           `json:"-"`
}

// Pipeline answers questions. It holds no per-request state and is safe
// for concurrent use.
type Pipeline struct {
	deps Deps
	cfg  Config
}

func NewPipeline(deps Deps, cfg Config) *Pipeline {
	if deps.Time == nil {
		deps.Time = timeentity.NewExtractor(nil)
	}
	return &Pipeline{deps: deps, cfg: cfg.withDefaults()}
}

// run is the state carried between transitions of one request.
type run struct {
	question string
	lang     language.Code
	docs     []models.RetrievedDocument
	draft    string
	reduced  bool
	err      error
	result   Result
}

// Answer runs the full pipeline. The only error is ErrEmptyQuestion; every
// other failure is folded into the Result.
func (p *Pipeline) Answer(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, ErrEmptyQuestion
	}

	start := time.Now()
	lang := language.Detect(req.Question)

	var res *Result
	if cached := p.lookup(ctx, req.Question, lang); cached != nil {
		res = fromCache(cached, lang)
	} else {
		res = p.execute(ctx, req.Question, lang)
		if res.Terminal == StateDone && p.deps.Cache != nil {
			p.deps.Cache.Put(ctx, req.Question, lang.String(), res.Answer, res.Sources)
		}
	}

	elapsed := time.Since(start)
	metrics.QueryDuration.WithLabelValues(string(res.Path)).Observe(elapsed.Seconds())
	metrics.QueryTotal.WithLabelValues(string(res.Path)).Inc()

	res.QueryID = uuid.New().String()
	p.record(ctx, req, res, elapsed)

	logger.Info("Question answered",
		zap.String("query_id", res.QueryID),
		zap.String("language", res.Language),
		zap.String("path", string(res.Path)),
		zap.Int("documents_found", res.DocumentsFound),
		zap.Bool("used_fallback", res.UsedFallback),
		zap.Bool("used_web_search", res.UsedWebSearch),
		zap.Bool("used_cache", res.UsedCache),
		zap.Duration("latency", elapsed),
	)

	return res, nil
}

func (p *Pipeline) lookup(ctx context.Context, question string, lang language.Code) *models.CachedAnswer {
	if p.deps.Cache == nil {
		return nil
	}
	return p.deps.Cache.Get(ctx, question, lang.String())
}

func fromCache(entry *models.CachedAnswer, lang language.Code) *Result {
	res := &Result{
		Answer:    entry.Answer,
		Sources:   entry.Sources,
		UsedCache: true,
		Language:  lang.String(),
		Path:      PathCache,
		Terminal:  StateDone,
	}
	if res.Sources == nil {
		res.Sources = []models.Source{}
	}
	res.UsedFallback = true
	for _, s := range res.Sources {
		switch s.SourceType {
		case models.SourceOfficial:
			res.DocumentsFound++
			res.UsedFallback = false
		case models.SourceWeb:
			res.UsedWebSearch = true
		}
	}
	return res
}

func (p *Pipeline) execute(ctx context.Context, question string, lang language.Code) *Result {
	r := &run{
		question: question,
		lang:     lang,
		result: Result{
			Sources:  []models.Source{},
			Language: lang.String(),
		},
	}

	state := StateRetrieve
	for steps := 0; !state.Terminal(); steps++ {
		if steps >= maxSteps {
			r.err = fmt.Errorf("answer state machine exceeded %d steps in %s", maxSteps, state)
			state = StateTotalFailure
			break
		}
		next := p.step(ctx, r, state)
		metrics.StageTransitions.WithLabelValues(state.String(), next.String()).Inc()
		logger.Debug("Pipeline transition",
			zap.String("from", state.String()),
			zap.String("to", next.String()),
		)
		state = next
	}

	if state == StateTotalFailure {
		p.totalFailure(r)
	}
	r.result.Terminal = state
	return &r.result
}

func (p *Pipeline) step(ctx context.Context, r *run, state State) State {
	switch state {
	case StateRetrieve:
		return p.retrieve(ctx, r)
	case StateNoDocuments:
		return StateWebSearchFallback
	case StateDraftFromDocuments:
		return p.draft(ctx, r)
	case StateQualityCheck:
		return p.qualityCheck(ctx, r)
	case StateWebSearchFallback:
		return p.webSearch(ctx, r)
	case StateGeneralKnowledgeFallback:
		return p.generalKnowledge(ctx, r)
	default:
		r.err = fmt.Errorf("no transition from state %s", state)
		return StateTotalFailure
	}
}

// fail records err and picks the transition the stage's policy dictates.
func (p *Pipeline) fail(r *run, stage Stage, err error, onOpen, onClosed State) State {
	r.err = err
	policy := p.cfg.Policies[stage]
	next := onClosed
	if policy == FailOpen {
		next = onOpen
	}
	logger.Warn("Pipeline stage failed",
		zap.String("stage", string(stage)),
		zap.String("policy", policy.String()),
		zap.String("next", next.String()),
		zap.Error(err),
	)
	return next
}

func (p *Pipeline) retrieve(ctx context.Context, r *run) State {
	if p.deps.Router != nil && p.deps.Router.Classify(ctx, r.question) == router.RouteCurrentEvents {
		logger.Info("Question routed to web search", zap.String("route", string(router.RouteCurrentEvents)))
		return StateWebSearchFallback
	}

	embedding, err := p.deps.Retriever.Embed(ctx, r.question)
	if err != nil {
		return p.fail(r, StageEmbedding, err, StateNoDocuments, StateGeneralKnowledgeFallback)
	}

	docs, err := p.deps.Retriever.Search(ctx, embedding, r.lang, p.cfg.MatchCount)
	if err != nil {
		return p.fail(r, StageRetrieval, err, StateNoDocuments, StateGeneralKnowledgeFallback)
	}

	r.docs = docs
	r.result.DocumentsFound = len(docs)
	metrics.DocumentsFound.Observe(float64(len(docs)))

	if len(docs) == 0 {
		return StateNoDocuments
	}
	return StateDraftFromDocuments
}

func (p *Pipeline) draft(ctx context.Context, r *run) State {
	docs := r.docs
	if r.reduced {
		docs = docs[:1]
	}

	system, user := groundedPrompt(r.lang, r.question, BuildContext(docs, p.cfg.ContextCharBudget))
	if tokens := EstimateTokens(system + user); tokens > p.cfg.MaxPromptTokens {
		logger.Info("Grounded prompt over token ceiling, escalating",
			zap.Int("estimated_tokens", tokens),
			zap.Int("ceiling", p.cfg.MaxPromptTokens),
		)
		return StateWebSearchFallback
	}

	content, err := p.generate(ctx, system, user)
	if err != nil {
		if !r.reduced {
			r.reduced = true
			logger.Warn("Grounded generation failed, retrying with the best document only", zap.Error(err))
			return StateDraftFromDocuments
		}
		return p.fail(r, StageGeneration, err, StateWebSearchFallback, StateWebSearchFallback)
	}

	r.draft = content
	return StateQualityCheck
}

func (p *Pipeline) qualityCheck(ctx context.Context, r *run) State {
	if utf8.RuneCountInString(r.draft) < p.cfg.MinAnswerLength || evaluation.ContainsNoAnswer(r.draft) {
		logger.Info("Draft unusable, escalating without judge",
			zap.String("query_id", r.result.QueryID),
			zap.Int("draft_length", utf8.RuneCountInString(r.draft)),
		)
		return StateWebSearchFallback
	}

	next := StateDone
	if p.deps.Judge != nil {
		sufficient, err := p.deps.Judge.IsSufficient(ctx, r.question, r.draft)
		switch {
		case err != nil:
			next = p.fail(r, StageJudge, err, StateDone, StateWebSearchFallback)
		case !sufficient:
			next = StateWebSearchFallback
		}
	}

	if next != StateDone {
		return next
	}

	docs := r.docs
	if r.reduced {
		docs = docs[:1]
	}
	sources := make([]models.Source, len(docs))
	for i, d := range docs {
		sources[i] = d.Source()
	}
	r.result.Answer = r.draft
	r.result.Sources = sources
	r.result.UsedFallback = false
	r.result.Path = PathDocuments
	return StateDone
}

func (p *Pipeline) webSearch(ctx context.Context, r *run) State {
	r.result.UsedFallback = true
	if p.deps.Web == nil {
		r.err = web.ErrNotConfigured
		return StateGeneralKnowledgeFallback
	}

	te := p.deps.Time.Extract(ctx, r.question)
	resp, err := p.deps.Web.Search(ctx, r.question, &te)
	if err != nil {
		return p.fail(r, StageWebSearch, err, StateGeneralKnowledgeFallback, StateGeneralKnowledgeFallback)
	}
	if resp == nil || !resp.Success || len(resp.Results) == 0 {
		logger.Info("Web search returned no results")
		return StateGeneralKnowledgeFallback
	}

	results := resp.Results
	if len(results) > p.cfg.WebResultsInPrompt {
		results = results[:p.cfg.WebResultsInPrompt]
	}

	system, user := webPrompt(r.lang, r.question, BuildWebContext(results, p.cfg.ContextCharBudget))
	content, err := p.generate(ctx, system, user)
	if err != nil {
		return p.fail(r, StageGeneration, err, StateGeneralKnowledgeFallback, StateGeneralKnowledgeFallback)
	}

	sources := make([]models.Source, len(results))
	for i, res := range results {
		sources[i] = models.Source{
			Title:      res.Title,
			URL:        res.URL,
			Similarity: res.Score,
			SourceType: models.SourceWeb,
		}
	}
	r.result.Answer = content + "\n\n" + ProvenanceNote(r.lang)
	r.result.Sources = sources
	r.result.UsedWebSearch = true
	r.result.Path = PathWeb
	return StateDone
}

func (p *Pipeline) generalKnowledge(ctx context.Context, r *run) State {
	r.result.UsedFallback = true

	system, user := generalPrompt(r.lang, r.question)
	content, err := p.generate(ctx, system, user)
	if err != nil {
		r.err = err
		logger.Error("General knowledge fallback failed", zap.Error(err))
		return StateTotalFailure
	}

	r.result.Answer = Disclaimer(r.lang) + "\n\n" + content
	r.result.Sources = []models.Source{aiGeneratedSource(r.lang)}
	r.result.UsedWebSearch = false
	r.result.Path = PathGeneral
	return StateDone
}

func (p *Pipeline) totalFailure(r *run) {
	r.result.Answer = Apology(r.lang)
	r.result.Sources = []models.Source{}
	r.result.UsedFallback = true
	r.result.UsedWebSearch = false
	r.result.Path = PathFailure
	if r.err != nil {
		r.result.DebugError = r.err.Error()
	} else {
		r.result.DebugError = "all answer stages failed"
	}
}

func (p *Pipeline) generate(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.GenerationTimeout)
	defer cancel()

	resp, err := p.deps.Generator.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Temperature:  p.cfg.Temperature,
		MaxTokens:    p.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", llm.ErrEmptyCompletion
	}
	return content, nil
}

func (p *Pipeline) record(ctx context.Context, req Request, res *Result, elapsed time.Duration) {
	if p.deps.Recorder == nil {
		return
	}

	rec := &models.QueryRecord{
		ID:             res.QueryID,
		SessionID:      req.SessionID,
		UserID:         req.UserID,
		QueryText:      req.Question,
		Language:       res.Language,
		Response:       res.Answer,
		Terminal:       string(res.Path),
		DocumentsFound: res.DocumentsFound,
		UsedFallback:   res.UsedFallback,
		UsedWebSearch:  res.UsedWebSearch,
		UsedCache:      res.UsedCache,
		LatencyMS:      int(elapsed.Milliseconds()),
		CreatedAt:      time.Now(),
	}
	if err := p.deps.Recorder.InsertQueryRecord(context.WithoutCancel(ctx), rec, res.Sources); err != nil {
		logger.Warn("Failed to record query", zap.String("query_id", res.QueryID), zap.Error(err))
	}
}
