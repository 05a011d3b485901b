package rag

// State is a node of the per-request answer state machine.
type State int

const (
	StateRetrieve State = iota
	StateNoDocuments
	StateDraftFromDocuments
	StateQualityCheck
	StateWebSearchFallback
	StateGeneralKnowledgeFallback
	StateDone
	StateTotalFailure
)

func (s State) String() string {
	switch s {
	case StateRetrieve:
		return "retrieve"
	case StateNoDocuments:
		return "no_documents"
	case StateDraftFromDocuments:
		return "draft_from_documents"
	case StateQualityCheck:
		return "quality_check"
	case StateWebSearchFallback:
		return "web_search_fallback"
	case StateGeneralKnowledgeFallback:
		return "general_knowledge_fallback"
	case StateDone:
		return "done"
	case StateTotalFailure:
		return "total_failure"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateDone || s == StateTotalFailure
}

// Path names the stage that produced the delivered answer.
type Path string

const (
	PathCache     Path = "cache"
	PathDocuments Path = "documents"
	PathWeb       Path = "web"
	PathGeneral   Path = "general"
	PathFailure   Path = "total_failure"
)

// Stage identifies an external call whose failure the state machine handles.
type Stage string

const (
	StageCache      Stage = "cache"
	StageRouter     Stage = "router"
	StageEmbedding  Stage = "embedding"
	StageRetrieval  Stage = "retrieval"
	StageGeneration Stage = "generation"
	StageJudge      Stage = "judge"
	StageWebSearch  Stage = "web_search"
)

// StagePolicy says what a stage failure means. FailOpen substitutes the
// benign default and stays on the current path; FailClosed escalates to the
// next fallback.
type StagePolicy int

const (
	FailClosed StagePolicy = iota
	FailOpen
)

func (p StagePolicy) String() string {
	if p == FailOpen {
		return "fail_open"
	}
	return "fail_closed"
}

// DefaultPolicies: cache, router and judge are optimisations and fail open;
// embedding, retrieval, generation and web search are on the critical path.
func DefaultPolicies() map[Stage]StagePolicy {
	return map[Stage]StagePolicy{
		StageCache:      FailOpen,
		StageRouter:     FailOpen,
		StageEmbedding:  FailClosed,
		StageRetrieval:  FailClosed,
		StageGeneration: FailClosed,
		StageJudge:      FailOpen,
		StageWebSearch:  FailClosed,
	}
}
