// Package search implements the ranking pipeline: lexical corpus,
// hybrid ranker, score fusion, and the constraint overlay.
package search

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/propmatch/propmatch/pkg/models"
	"github.com/propmatch/propmatch/pkg/observability"
	"github.com/propmatch/propmatch/pkg/store"
)

// BM25Corpus holds the lexical statistics built from a listing sample:
// per-term IDF and the average synthetic-document length. Once built it
// is read-only until an explicit Rebuild; concurrent scorers see a
// consistent snapshot.
type BM25Corpus struct {
	k1         float64
	b          float64
	sampleSize int
	logger     observability.Logger

	// buildMu serializes builders; losers of the build race block here
	// and then reuse the snapshot.
	buildMu sync.Mutex

	mu       sync.RWMutex
	built    bool
	docCount int
	avgLen   float64
	idf      map[string]float64
}

// NewBM25Corpus configures an unbuilt corpus.
func NewBM25Corpus(k1, b float64, sampleSize int, logger observability.Logger) *BM25Corpus {
	if k1 <= 0 {
		k1 = 1.5
	}
	if b <= 0 {
		b = 0.75
	}
	if sampleSize <= 0 {
		sampleSize = 1000
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &BM25Corpus{k1: k1, b: b, sampleSize: sampleSize, logger: logger.WithPrefix("bm25")}
}

// Built reports whether statistics are available.
func (c *BM25Corpus) Built() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.built
}

// EnsureBuilt builds the corpus on first use. Safe to race: one caller
// builds, the rest wait and reuse.
func (c *BM25Corpus) EnsureBuilt(ctx context.Context, listings store.ListingStore) error {
	if c.Built() {
		return nil
	}
	c.buildMu.Lock()
	defer c.buildMu.Unlock()
	if c.Built() {
		return nil
	}
	return c.build(ctx, listings)
}

// Rebuild discards the current statistics and rebuilds from a fresh
// sample.
func (c *BM25Corpus) Rebuild(ctx context.Context, listings store.ListingStore) error {
	c.buildMu.Lock()
	defer c.buildMu.Unlock()
	return c.build(ctx, listings)
}

func (c *BM25Corpus) build(ctx context.Context, listings store.ListingStore) error {
	sample, err := listings.GetSample(ctx, c.sampleSize)
	if err != nil {
		return fmt.Errorf("bm25 build: %w", err)
	}
	if len(sample) == 0 {
		return fmt.Errorf("bm25 build: empty sample")
	}

	df := make(map[string]int)
	totalLen := 0
	for i := range sample {
		tokens := Tokenize(SyntheticDocument(&sample[i]))
		totalLen += len(tokens)
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	d := float64(len(sample))
	idf := make(map[string]float64, len(df))
	for term, freq := range df {
		v := math.Log((d - float64(freq) + 0.5) / (float64(freq) + 0.5))
		// Common terms would go negative; floor keeps scores
		// non-negative.
		if v < 0 {
			v = 0
		}
		idf[term] = v
	}

	c.mu.Lock()
	c.docCount = len(sample)
	c.avgLen = float64(totalLen) / d
	c.idf = idf
	c.built = true
	c.mu.Unlock()

	c.logger.Info("corpus built", map[string]interface{}{
		"documents":  len(sample),
		"terms":      len(idf),
		"avg_length": c.avgLen,
	})
	return nil
}

// Score computes the raw BM25 score of a listing's synthetic document
// against the query. Unknown terms contribute nothing; an unbuilt
// corpus or empty document scores zero.
func (c *BM25Corpus) Score(query string, l *models.Listing) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.built || c.avgLen == 0 {
		return 0
	}

	docTokens := Tokenize(SyntheticDocument(l))
	if len(docTokens) == 0 {
		return 0
	}
	tf := make(map[string]int, len(docTokens))
	for _, tok := range docTokens {
		tf[tok]++
	}
	docLen := float64(len(docTokens))

	score := 0.0
	for _, term := range Tokenize(query) {
		freq := float64(tf[term])
		if freq == 0 {
			continue
		}
		idf := c.idf[term] // unknown terms have IDF 0
		norm := freq * (c.k1 + 1) / (freq + c.k1*(1-c.b+c.b*docLen/c.avgLen))
		score += idf * norm
	}
	return score
}

// Tokenize lowercases, strips non-alphanumeric runs, and drops tokens
// shorter than two characters.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// SyntheticDocument composes the lexical view of a listing: type,
// bed/bath phrases, location terms, features, the ten nearest POI
// names, and a price-bucket tag.
func SyntheticDocument(l *models.Listing) string {
	parts := []string{
		string(l.Type),
		fmt.Sprintf("%d bedroom", l.Bedrooms),
		fmt.Sprintf("%s bathroom", strconv.FormatFloat(l.Bathrooms, 'f', -1, 64)),
		l.Location.Neighborhood,
		l.Location.City,
		l.Location.Province,
	}
	parts = append(parts, l.Features...)
	for i, poi := range l.PointsOfInterest {
		if i >= 10 {
			break
		}
		parts = append(parts, poi.Name)
	}
	if bucket := priceBucket(l.Price); bucket != "" {
		parts = append(parts, bucket)
	}
	return strings.Join(parts, " ")
}

func priceBucket(price int64) string {
	switch {
	case price < 1_500_000:
		return "affordable budget"
	case price < 3_000_000:
		return "mid range"
	case price > 6_000_000:
		return "luxury premium"
	default:
		return ""
	}
}
