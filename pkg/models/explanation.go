package models

// ExplanationPoint is one headline plus supporting detail inside an
// explanation.
type ExplanationPoint struct {
	Point   string `json:"point"`
	Details string `json:"details"`
}

// Explanation is the structured justification of a (query, listing)
// match. Cached records round-trip through the cache byte-identically
// apart from the Cached flag.
type Explanation struct {
	SearchQuery    string             `json:"search_query"`
	ListingKey     int64              `json:"listing_key"`
	PropertyTitle  string             `json:"property_title"`
	MatchScore     float64            `json:"match_score,omitempty"`
	PositivePoints []ExplanationPoint `json:"positive_points"`
	NegativePoints []ExplanationPoint `json:"negative_points"`
	OverallSummary string             `json:"overall_summary"`
	Cached         bool               `json:"cached"`
}
