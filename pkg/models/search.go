package models

import "math"

// SortField chooses how a result page is ordered.
type SortField string

const (
	SortRelevance SortField = "relevance"
	SortPrice     SortField = "price"
	SortDate      SortField = "date"
)

// SortOrder is the direction for non-relevance sorts.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SearchFilters are the optional structured constraints accompanying a
// free-text query. Pointer fields distinguish "unset" from zero.
type SearchFilters struct {
	PropertyType *PropertyType   `json:"property_type,omitempty"`
	MinPrice     *int64          `json:"min_price,omitempty"`
	MaxPrice     *int64          `json:"max_price,omitempty"`
	Bedrooms     *int            `json:"bedrooms,omitempty"`
	Bathrooms    *float64        `json:"bathrooms,omitempty"`
	MinArea      *int            `json:"min_area,omitempty"`
	MaxArea      *int            `json:"max_area,omitempty"`
	City         string          `json:"city,omitempty"`
	Neighborhood string          `json:"neighborhood,omitempty"`
	Status       *PropertyStatus `json:"status,omitempty"`
}

// SearchRequest is a validated, normalized search query.
type SearchRequest struct {
	Query     string         `json:"query"`
	Filters   *SearchFilters `json:"filters,omitempty"`
	Page      int            `json:"page"`
	PageSize  int            `json:"page_size"`
	SortBy    SortField      `json:"sort_by"`
	SortOrder SortOrder      `json:"sort_order"`
}

// Normalize fills defaults and clamps pagination to the allowed range.
func (r *SearchRequest) Normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = 10
	}
	if r.PageSize > 100 {
		r.PageSize = 100
	}
	if r.SortBy == "" {
		r.SortBy = SortRelevance
	}
	if r.SortOrder == "" {
		r.SortOrder = SortDesc
	}
}

// ScoreBreakdown records how a listing's final score was assembled.
type ScoreBreakdown struct {
	VectorRaw        float64 `json:"vector_raw"`
	VectorNormalized float64 `json:"vector_normalized"`
	BM25Raw          float64 `json:"bm25_raw"`
	BM25Contribution float64 `json:"bm25_contribution"`
	HybridBase       float64 `json:"hybrid_base"`
	LLMScore         float64 `json:"llm_score"`
	FinalScore       float64 `json:"final_score"`
	MethodLabel      string  `json:"method_label"`
}

// RankedListing is a listing plus its calibrated match score.
type RankedListing struct {
	Listing
	Score     float64        `json:"match_score"`
	Breakdown ScoreBreakdown `json:"score_breakdown"`
}

// Pagination is the page metadata attached to every result set.
type Pagination struct {
	TotalResults int  `json:"total_results"`
	Page         int  `json:"page"`
	PageSize     int  `json:"page_size"`
	TotalPages   int  `json:"total_pages"`
	HasNext      bool `json:"has_next"`
	HasPrevious  bool `json:"has_previous"`
}

// NewPagination computes page metadata for a result count.
func NewPagination(total, page, pageSize int) Pagination {
	totalPages := 0
	if total > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(pageSize)))
	}
	return Pagination{
		TotalResults: total,
		Page:         page,
		PageSize:     pageSize,
		TotalPages:   totalPages,
		HasNext:      page < totalPages,
		HasPrevious:  page > 1 && total > 0,
	}
}

// TokenUsage accumulates LLM token counts for one ranking request.
type TokenUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ModelUsed        string `json:"model_used,omitempty"`
}

// SearchDiagnostics surfaces per-request pipeline observations.
type SearchDiagnostics struct {
	CandidateCount int          `json:"candidate_count"`
	HydratedCount  int          `json:"hydrated_count"`
	RerankedCount  int          `json:"reranked_count"`
	BatchCount     int          `json:"batch_count"`
	TokenUsage     []TokenUsage `json:"token_usage,omitempty"`
	ModelUsed      string       `json:"model_used,omitempty"`
	Degraded       bool         `json:"degraded"`
	DegradedReason string       `json:"degraded_reason,omitempty"`
}

// SearchResponse is the full answer to a search request.
type SearchResponse struct {
	Listings    []RankedListing    `json:"listings"`
	SearchTerm  string             `json:"search_term"`
	Pagination  Pagination         `json:"pagination"`
	Diagnostics *SearchDiagnostics `json:"diagnostics,omitempty"`
}
