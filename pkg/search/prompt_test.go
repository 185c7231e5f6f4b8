package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propmatch/propmatch/pkg/models"
)

func TestBuildRerankPrompt(t *testing.T) {
	listings := []models.Listing{
		{
			ListingKey: 1, Title: "Oak Villa", Type: models.PropertyTypeHouse,
			Bedrooms: 3, Bathrooms: 2, Price: 3_800_000, FloorArea: 150,
			Location: models.Location{Neighborhood: "Rondebosch", City: "Cape Town"},
			Features: []string{"garden", "pool"},
			PointsOfInterest: []models.PointOfInterest{
				{Name: "University of Cape Town", Category: "education", DistanceKM: 0.8},
				{Name: "Rondebosch Common", Category: "park", DistanceKM: 0.4},
				{Name: "Red Cross Hospital", Category: "health", DistanceKM: 2.1},
			},
		},
		{
			ListingKey: 2, Title: "Sea Breeze Flat", Type: models.PropertyTypeApartment,
			Bedrooms: 1, Bathrooms: 1, Price: 1_200_000,
			Location: models.Location{Neighborhood: "Sea Point", City: "Cape Town"},
		},
	}

	prompt := BuildRerankPrompt("3 bedroom house near UCT", listings)

	assert.Contains(t, prompt, `"3 bedroom house near UCT"`)
	assert.Contains(t, prompt, "1. Oak Villa")
	assert.Contains(t, prompt, "2. Sea Breeze Flat")
	assert.Contains(t, prompt, "R3,800,000")
	assert.Contains(t, prompt, "upper mid market")
	assert.Contains(t, prompt, "budget segment")
	assert.Contains(t, prompt, "University of Cape Town 0.8km (walkable)")
	assert.Contains(t, prompt, "Never use a multiple of 5")
	assert.Contains(t, prompt, `[{"id": 1, "score": 67}`)
}

func TestPoiSummaryPicksNearestPerCategory(t *testing.T) {
	pois := []models.PointOfInterest{
		{Name: "Far School", Category: "education", DistanceKM: 4.0},
		{Name: "Near School", Category: "education", DistanceKM: 0.9},
		{Name: "Mall", Category: "shopping", DistanceKM: 2.2},
	}
	s := poiSummary(pois)
	assert.Contains(t, s, "Near School 0.9km (walkable)")
	assert.NotContains(t, s, "Far School")
	assert.Contains(t, s, "Mall 2.2km (short drive)")
}

func TestWalkabilityLabel(t *testing.T) {
	assert.Equal(t, "Car-dependent location", walkabilityLabel(nil))
	assert.Equal(t, "Some amenities within walking distance", walkabilityLabel([]models.PointOfInterest{
		{DistanceKM: 0.5},
	}))
	assert.Equal(t, "Very walkable area", walkabilityLabel([]models.PointOfInterest{
		{DistanceKM: 0.2}, {DistanceKM: 0.5}, {DistanceKM: 0.9},
	}))
}

func TestParseRankingResponse(t *testing.T) {
	scores := ParseRankingResponse(`Here are the scores: [{"id":1,"score":87},{"id":2,"score":42}] done`)
	require.NotNil(t, scores)
	assert.InDelta(t, 87, scores[1], 1e-9)
	assert.InDelta(t, 42, scores[2], 1e-9)
}

func TestParseRankingResponseSkipsIncompleteEntries(t *testing.T) {
	scores := ParseRankingResponse(`[{"id":1,"score":77},{"id":2},{"score":55}]`)
	require.NotNil(t, scores)
	assert.Len(t, scores, 1)
	assert.InDelta(t, 77, scores[1], 1e-9)
}

func TestParseRankingResponseGarbage(t *testing.T) {
	assert.Nil(t, ParseRankingResponse("no json here"))
	assert.Nil(t, ParseRankingResponse("[not valid json]"))
	assert.Nil(t, ParseRankingResponse(`[]`))
}

func TestFormatRand(t *testing.T) {
	assert.Equal(t, "R950,000", formatRand(950_000))
	assert.Equal(t, "R3,800,000", formatRand(3_800_000))
	assert.Equal(t, "R42", formatRand(42))
}
