// Package vectorindex talks to the approximate-nearest-neighbor index
// holding listing embeddings.
package vectorindex

import (
	"context"

	"github.com/propmatch/propmatch/pkg/models"
)

// Match is one query hit: a listing key with its similarity in [0,1].
type Match struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Item is one vector to upsert.
type Item struct {
	ID       string                 `json:"id"`
	Vector   []float32              `json:"values"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Stats describes the index.
type Stats struct {
	VectorCount int64 `json:"vector_count"`
	Dimension   int   `json:"dimension"`
}

// Filter is the metadata filter grammar: field → value or
// field → {"$eq"|"$gte"|"$lte": value}.
type Filter map[string]interface{}

// Index is the ANN surface the ranker and the loader depend on.
type Index interface {
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error)
	Upsert(ctx context.Context, items ...Item) error
	Stats(ctx context.Context) (*Stats, error)
}

// BuildFilter translates structured search filters into the index
// grammar. Only fields the index stores as metadata participate; the
// rest are applied after hydration.
func BuildFilter(f *models.SearchFilters) Filter {
	if f == nil {
		return nil
	}
	filter := Filter{}
	if f.MinPrice != nil || f.MaxPrice != nil {
		price := map[string]interface{}{}
		if f.MinPrice != nil {
			price["$gte"] = *f.MinPrice
		}
		if f.MaxPrice != nil {
			price["$lte"] = *f.MaxPrice
		}
		filter["price"] = price
	}
	if f.PropertyType != nil {
		filter["property_type"] = map[string]interface{}{"$eq": string(*f.PropertyType)}
	}
	if f.Bedrooms != nil {
		filter["bedrooms"] = map[string]interface{}{"$eq": *f.Bedrooms}
	}
	if f.City != "" {
		filter["city"] = map[string]interface{}{"$eq": f.City}
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}
