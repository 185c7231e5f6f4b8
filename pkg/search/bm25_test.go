package search

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propmatch/propmatch/pkg/models"
)

// fakeListingStore serves a fixed corpus and counts sample calls.
type fakeListingStore struct {
	mu          sync.Mutex
	listings    []models.Listing
	sampleCalls int
	sampleErr   error
}

func (f *fakeListingStore) GetByKey(ctx context.Context, key int64) (*models.Listing, error) {
	for i := range f.listings {
		if f.listings[i].ListingKey == key {
			l := f.listings[i]
			return &l, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeListingStore) GetBatch(ctx context.Context, keys []int64) ([]models.Listing, error) {
	var out []models.Listing
	for _, k := range keys {
		if l, err := f.GetByKey(ctx, k); err == nil {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeListingStore) GetSample(ctx context.Context, n int) ([]models.Listing, error) {
	f.mu.Lock()
	f.sampleCalls++
	f.mu.Unlock()
	if f.sampleErr != nil {
		return nil, f.sampleErr
	}
	if n > len(f.listings) {
		n = len(f.listings)
	}
	return f.listings[:n], nil
}

func corpusListings() []models.Listing {
	return []models.Listing{
		{
			ListingKey: 1, Type: models.PropertyTypeHouse, Bedrooms: 3, Bathrooms: 2,
			Price:    3_800_000,
			Location: models.Location{Neighborhood: "Rondebosch", City: "Cape Town", Province: "Western Cape"},
			Features: []string{"garden", "pool"},
			PointsOfInterest: []models.PointOfInterest{
				{Name: "University of Cape Town", Category: "education", DistanceKM: 0.8},
			},
		},
		{
			ListingKey: 2, Type: models.PropertyTypeApartment, Bedrooms: 1, Bathrooms: 1,
			Price:    1_200_000,
			Location: models.Location{Neighborhood: "Sea Point", City: "Cape Town", Province: "Western Cape"},
			Features: []string{"sea view"},
		},
		{
			ListingKey: 3, Type: models.PropertyTypeVilla, Bedrooms: 5, Bathrooms: 4,
			Price:    9_500_000,
			Location: models.Location{Neighborhood: "Camps Bay", City: "Cape Town", Province: "Western Cape"},
			Features: []string{"pool", "ocean view"},
		},
	}
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("3-Bedroom House, near UCT! (R4.5m)")
	assert.Equal(t, []string{"bedroom", "house", "near", "uct", "r4", "5m"}, tokens)

	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("a b c"), "single characters are dropped")
}

func TestSyntheticDocument(t *testing.T) {
	listings := corpusListings()
	doc := SyntheticDocument(&listings[0])
	assert.Contains(t, doc, "house")
	assert.Contains(t, doc, "3 bedroom")
	assert.Contains(t, doc, "2 bathroom")
	assert.Contains(t, doc, "Rondebosch")
	assert.Contains(t, doc, "University of Cape Town")
	assert.NotContains(t, doc, "affordable", "3.8M is neither budget nor luxury")

	doc = SyntheticDocument(&listings[1])
	assert.Contains(t, doc, "affordable budget")

	doc = SyntheticDocument(&listings[2])
	assert.Contains(t, doc, "luxury premium")
}

func TestBuildAndScore(t *testing.T) {
	fs := &fakeListingStore{listings: corpusListings()}
	c := NewBM25Corpus(1.5, 0.75, 1000, nil)
	require.False(t, c.Built())

	require.NoError(t, c.EnsureBuilt(context.Background(), fs))
	require.True(t, c.Built())

	listings := corpusListings()
	rondebosch := c.Score("house rondebosch", &listings[0])
	seaPoint := c.Score("house rondebosch", &listings[1])
	assert.Greater(t, rondebosch, seaPoint)
	assert.GreaterOrEqual(t, seaPoint, 0.0)
}

func TestScoreUnknownTermsContributeZero(t *testing.T) {
	fs := &fakeListingStore{listings: corpusListings()}
	c := NewBM25Corpus(1.5, 0.75, 1000, nil)
	require.NoError(t, c.EnsureBuilt(context.Background(), fs))

	listings := corpusListings()
	assert.Zero(t, c.Score("zzzzunknown qqqterm", &listings[0]))
}

func TestScoreUnbuiltCorpusIsZero(t *testing.T) {
	c := NewBM25Corpus(1.5, 0.75, 1000, nil)
	listings := corpusListings()
	assert.Zero(t, c.Score("house", &listings[0]))
}

func TestSingleDocumentCorpusIsFinite(t *testing.T) {
	fs := &fakeListingStore{listings: corpusListings()[:1]}
	c := NewBM25Corpus(1.5, 0.75, 1000, nil)
	require.NoError(t, c.EnsureBuilt(context.Background(), fs))

	listings := corpusListings()
	score := c.Score("house rondebosch", &listings[0])
	assert.False(t, score < 0)
	assert.False(t, score != score, "score must not be NaN")
}

func TestBuildRaceRunsOnce(t *testing.T) {
	fs := &fakeListingStore{listings: corpusListings()}
	c := NewBM25Corpus(1.5, 0.75, 1000, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.EnsureBuilt(context.Background(), fs)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fs.sampleCalls, "losers of the build race must reuse the snapshot")
}

func TestBuildFailure(t *testing.T) {
	fs := &fakeListingStore{sampleErr: errors.New("store down")}
	c := NewBM25Corpus(1.5, 0.75, 1000, nil)
	assert.Error(t, c.EnsureBuilt(context.Background(), fs))
	assert.False(t, c.Built())
}

func TestRebuild(t *testing.T) {
	fs := &fakeListingStore{listings: corpusListings()}
	c := NewBM25Corpus(1.5, 0.75, 1000, nil)
	require.NoError(t, c.EnsureBuilt(context.Background(), fs))
	require.NoError(t, c.Rebuild(context.Background(), fs))
	assert.Equal(t, 2, fs.sampleCalls)
}
