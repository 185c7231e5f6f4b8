package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/propmatch/propmatch/pkg/embedding"
	"github.com/propmatch/propmatch/pkg/llm"
	"github.com/propmatch/propmatch/pkg/models"
	"github.com/propmatch/propmatch/pkg/observability"
	"github.com/propmatch/propmatch/pkg/store"
	"github.com/propmatch/propmatch/pkg/vectorindex"
)

// RankerOptions tunes the pipeline; zero values take defaults.
type RankerOptions struct {
	TopKMultiplier int
	TopKCap        int
	BatchSize      int
	Temperature    float64
}

func (o *RankerOptions) fill() {
	if o.TopKMultiplier <= 0 {
		o.TopKMultiplier = 6
	}
	if o.TopKCap <= 0 {
		o.TopKCap = 60
	}
	if o.BatchSize <= 0 || o.BatchSize > 12 {
		o.BatchSize = 12
	}
	if o.Temperature <= 0 || o.Temperature > 0.1 {
		o.Temperature = 0.1
	}
}

// Ranker runs the three-stage pipeline: dense retrieval, lexical
// re-scoring, LLM re-ranking, then fusion and the constraint overlay.
type Ranker struct {
	listings store.ListingStore
	embedder embedding.Provider
	index    vectorindex.Index
	cascade  *llm.Cascade
	corpus   *BM25Corpus
	opts     RankerOptions
	logger   observability.Logger
	tracer   trace.Tracer
}

// NewRanker wires the pipeline stages together.
func NewRanker(listings store.ListingStore, embedder embedding.Provider, index vectorindex.Index,
	cascade *llm.Cascade, corpus *BM25Corpus, opts RankerOptions, logger observability.Logger) *Ranker {
	opts.fill()
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Ranker{
		listings: listings,
		embedder: embedder,
		index:    index,
		cascade:  cascade,
		corpus:   corpus,
		opts:     opts,
		logger:   logger.WithPrefix("ranker"),
		tracer:   otel.Tracer("propmatch/search"),
	}
}

// candidate carries one listing through the pipeline stages.
type candidate struct {
	listing    models.Listing
	similarity float64
	bm25Raw    float64
	contrib    float64
	hybridBase float64
	llmScore   float64
	hasLLM     bool
	fallback   bool
	final      float64
	label      string
}

// Rank executes the pipeline for a normalized request. Stage order is
// strict: retrieval, hydration, lexical, LLM, fusion, constraints,
// pagination.
func (r *Ranker) Rank(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	ctx, span := r.tracer.Start(ctx, "ranker.rank",
		trace.WithAttributes(attribute.Int("page_size", req.PageSize)))
	defer span.End()

	diag := &models.SearchDiagnostics{}

	matches, err := r.retrieve(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	diag.CandidateCount = len(matches)
	if len(matches) == 0 {
		return r.response(nil, req, diag), nil
	}

	cands, err := r.hydrate(ctx, req, matches)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	diag.HydratedCount = len(cands)

	r.lexicalStage(ctx, req.Query, cands)

	// Keep the strongest candidates for the expensive stage.
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].hybridBase != cands[j].hybridBase {
			return cands[i].hybridBase > cands[j].hybridBase
		}
		return cands[i].listing.ListingKey < cands[j].listing.ListingKey
	})
	if limit := req.PageSize * 2; len(cands) > limit {
		cands = cands[:limit]
	}
	diag.RerankedCount = len(cands)

	r.rerankStage(ctx, req.Query, cands, diag)

	constraints := ParseConstraints(req.Query)
	for _, c := range cands {
		fuseCandidate(c, constraints)
	}

	ranked := orderResults(cands, req)
	return r.response(ranked, req, diag), nil
}

func (r *Ranker) response(ranked []models.RankedListing, req *models.SearchRequest, diag *models.SearchDiagnostics) *models.SearchResponse {
	total := len(ranked)
	start := (req.Page - 1) * req.PageSize
	end := start + req.PageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	page := ranked[start:end]
	if page == nil {
		page = []models.RankedListing{}
	}
	return &models.SearchResponse{
		Listings:    page,
		SearchTerm:  req.Query,
		Pagination:  models.NewPagination(total, req.Page, req.PageSize),
		Diagnostics: diag,
	}
}

// retrieve embeds the query and asks the vector index for candidates.
func (r *Ranker) retrieve(ctx context.Context, req *models.SearchRequest) ([]vectorindex.Match, error) {
	ctx, span := r.tracer.Start(ctx, "ranker.retrieve")
	defer span.End()

	vector, err := r.embedder.Embed(ctx, retrievalText(req))
	if err != nil {
		return nil, err
	}
	topK := req.PageSize * r.opts.TopKMultiplier
	if topK > r.opts.TopKCap {
		topK = r.opts.TopKCap
	}
	matches, err := r.index.Query(ctx, vector, topK, vectorindex.BuildFilter(req.Filters))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("matches", len(matches)))
	return matches, nil
}

// retrievalText augments the free text with typed filter hints so the
// embedding sees the structured intent too.
func retrievalText(req *models.SearchRequest) string {
	parts := []string{req.Query}
	if f := req.Filters; f != nil {
		if f.PropertyType != nil {
			parts = append(parts, fmt.Sprintf("property type %s", *f.PropertyType))
		}
		if f.Bedrooms != nil {
			parts = append(parts, fmt.Sprintf("%d bedrooms", *f.Bedrooms))
		}
		if f.City != "" {
			parts = append(parts, "in "+f.City)
		}
		if f.Neighborhood != "" {
			parts = append(parts, "in "+f.Neighborhood)
		}
		if f.MaxPrice != nil {
			parts = append(parts, fmt.Sprintf("under %d", *f.MaxPrice))
		}
	}
	return strings.Join(parts, ", ")
}

// hydrate batch-fetches listings and applies the filters the vector
// index cannot express. Unfetchable keys are dropped, not fatal.
func (r *Ranker) hydrate(ctx context.Context, req *models.SearchRequest, matches []vectorindex.Match) ([]*candidate, error) {
	ctx, span := r.tracer.Start(ctx, "ranker.hydrate")
	defer span.End()

	keys := make([]int64, 0, len(matches))
	similarity := make(map[int64]float64, len(matches))
	for _, m := range matches {
		key, err := strconv.ParseInt(m.ID, 10, 64)
		if err != nil {
			r.logger.Warn("non-numeric vector id", map[string]interface{}{"id": m.ID})
			continue
		}
		keys = append(keys, key)
		similarity[key] = m.Score
	}

	listings, err := r.listings.GetBatch(ctx, keys)
	if err != nil {
		return nil, err
	}
	if len(listings) < len(keys) {
		r.logger.Debug("partial hydration", map[string]interface{}{
			"requested": len(keys),
			"fetched":   len(listings),
		})
	}

	cands := make([]*candidate, 0, len(listings))
	for i := range listings {
		if !passesFilters(&listings[i], req.Filters) {
			continue
		}
		cands = append(cands, &candidate{
			listing:    listings[i],
			similarity: similarity[listings[i].ListingKey],
		})
	}
	return cands, nil
}

// passesFilters applies the post-hydration filters: bathrooms, area
// bounds, neighborhood, and status.
func passesFilters(l *models.Listing, f *models.SearchFilters) bool {
	if f == nil {
		return true
	}
	if f.Bathrooms != nil && l.Bathrooms < *f.Bathrooms {
		return false
	}
	if f.MinArea != nil && l.FloorArea < *f.MinArea {
		return false
	}
	if f.MaxArea != nil && l.FloorArea > *f.MaxArea {
		return false
	}
	if f.Neighborhood != "" && !strings.EqualFold(l.Location.Neighborhood, f.Neighborhood) {
		return false
	}
	if f.Status != nil && l.Status != *f.Status {
		return false
	}
	return true
}

// lexicalStage scores candidates against the BM25 corpus and derives
// the hybrid base. A corpus build failure skips the stage.
func (r *Ranker) lexicalStage(ctx context.Context, query string, cands []*candidate) {
	ctx, span := r.tracer.Start(ctx, "ranker.lexical")
	defer span.End()

	if err := r.corpus.EnsureBuilt(ctx, r.listings); err != nil {
		r.logger.Warn("bm25 corpus unavailable, skipping lexical stage", map[string]interface{}{
			"error": err.Error(),
		})
		for _, c := range cands {
			c.hybridBase = HybridBase(c.similarity, 0)
		}
		return
	}

	maxRaw := 0.0
	for _, c := range cands {
		c.bm25Raw = r.corpus.Score(query, &c.listing)
		if c.bm25Raw > maxRaw {
			maxRaw = c.bm25Raw
		}
	}
	for _, c := range cands {
		c.contrib = BM25Contribution(c.bm25Raw, maxRaw)
		c.hybridBase = HybridBase(c.similarity, c.contrib)
	}
}

// rerankStage partitions candidates into batches and scores each batch
// with the model cascade. Batches run in parallel; the LLM client's
// semaphore bounds provider concurrency. A cascade failure degrades the
// whole request to hybrid-base scores rather than failing it.
func (r *Ranker) rerankStage(ctx context.Context, query string, cands []*candidate, diag *models.SearchDiagnostics) {
	ctx, span := r.tracer.Start(ctx, "ranker.rerank")
	defer span.End()

	if len(cands) == 0 {
		return
	}

	var batches [][]*candidate
	for start := 0; start < len(cands); start += r.opts.BatchSize {
		end := start + r.opts.BatchSize
		if end > len(cands) {
			end = len(cands)
		}
		batches = append(batches, cands[start:end])
	}
	diag.BatchCount = len(batches)

	var mu sync.Mutex
	usage := make([]models.TokenUsage, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	for bi, batch := range batches {
		bi, batch := bi, batch
		g.Go(func() error {
			result, err := r.rerankBatch(gctx, query, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			usage[bi] = result
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		r.logger.Error("llm re-ranking failed, returning hybrid-base ranking", map[string]interface{}{
			"error": err.Error(),
		})
		diag.Degraded = true
		diag.DegradedReason = "llm_unavailable"
		for _, c := range cands {
			c.hasLLM = false
		}
		return
	}

	diag.TokenUsage = usage
	for _, u := range usage {
		if u.ModelUsed != "" {
			diag.ModelUsed = u.ModelUsed
		}
	}
}

// rerankBatch runs one LLM call and applies its scores to the batch.
func (r *Ranker) rerankBatch(ctx context.Context, query string, batch []*candidate) (models.TokenUsage, error) {
	listings := make([]models.Listing, len(batch))
	for i, c := range batch {
		listings[i] = c.listing
	}
	prompt := BuildRerankPrompt(query, listings)
	maxTokens := 25*len(batch) + 50

	result, err := r.cascade.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You score property matches. Output strict JSON only."},
		{Role: "user", Content: prompt},
	}, r.opts.Temperature, maxTokens)
	if err != nil {
		return models.TokenUsage{}, err
	}

	scores := ParseRankingResponse(result.Text)
	if scores == nil {
		// The model answered but not in a shape we can use; fall back
		// to vector-derived scores with deterministic variance so the
		// page does not collapse into ties.
		r.logger.Warn("unparseable ranking response, applying fallback scores", map[string]interface{}{
			"model": result.ModelUsed,
		})
		for i, c := range batch {
			c.final = fallbackScore(c.similarity, i)
			c.fallback = true
		}
	} else {
		for i, c := range batch {
			score, ok := scores[i+1]
			if !ok {
				continue // keeps hybrid_base
			}
			c.llmScore = applyVariance(score, i)
			c.hasLLM = true
		}
	}

	return models.TokenUsage{
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		TotalTokens:      result.Usage.TotalTokens,
		ModelUsed:        result.ModelUsed,
	}, nil
}

// applyVariance breaks up synthetic clumping: scores that are
// multiples of 5 (except 15, 25, 35) get a small deterministic offset
// derived from the batch position, in [-2, +3].
func applyVariance(score float64, position int) float64 {
	if math.Mod(score, 5) != 0 {
		return score
	}
	if score == 15 || score == 25 || score == 35 {
		return score
	}
	return score + float64((position*7)%6) - 2
}

// fallbackScore derives a final score from the vector similarity alone,
// with deterministic variance, clamped to [15,100].
func fallbackScore(similarity float64, position int) float64 {
	base := similarity
	if base <= 1 {
		base *= 100
	}
	variance := math.Mod(float64(position)*2.3, 7) - 3
	return roundScore(clamp(base+variance, 15, 100))
}

// fuseCandidate resolves the final score for one candidate and applies
// the constraint overlay.
func fuseCandidate(c *candidate, constraints QueryConstraints) {
	switch {
	case c.fallback:
		// Already final; label records the degraded path.
		c.label = "vector_fallback_variance"
	case c.hasLLM:
		c.final, c.label = FuseScores(c.llmScore, c.hybridBase)
	default:
		c.final = roundScore(c.hybridBase)
		c.label = "hybrid_base_retained"
	}
	c.final = constraints.Adjust(&c.listing, c.final)
}

// orderResults applies the requested sort and materializes the ranked
// listings. Relevance sorts by final score descending with listing key
// ascending as the stable tie-break.
func orderResults(cands []*candidate, req *models.SearchRequest) []models.RankedListing {
	sorted := make([]*candidate, len(cands))
	copy(sorted, cands)

	asc := req.SortOrder == models.SortAsc
	switch req.SortBy {
	case models.SortPrice:
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].listing.Price != sorted[j].listing.Price {
				if asc {
					return sorted[i].listing.Price < sorted[j].listing.Price
				}
				return sorted[i].listing.Price > sorted[j].listing.Price
			}
			return sorted[i].listing.ListingKey < sorted[j].listing.ListingKey
		})
	case models.SortDate:
		sort.SliceStable(sorted, func(i, j int) bool {
			ti, tj := sorted[i].listing.ListedAt, sorted[j].listing.ListedAt
			if !ti.Equal(tj) {
				if asc {
					return ti.Before(tj)
				}
				return ti.After(tj)
			}
			return sorted[i].listing.ListingKey < sorted[j].listing.ListingKey
		})
	default:
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].final != sorted[j].final {
				return sorted[i].final > sorted[j].final
			}
			return sorted[i].listing.ListingKey < sorted[j].listing.ListingKey
		})
	}

	out := make([]models.RankedListing, len(sorted))
	for i, c := range sorted {
		out[i] = models.RankedListing{
			Listing: c.listing,
			Score:   c.final,
			Breakdown: models.ScoreBreakdown{
				VectorRaw:        c.similarity,
				VectorNormalized: math.Min(c.similarity*100, 100),
				BM25Raw:          c.bm25Raw,
				BM25Contribution: c.contrib,
				HybridBase:       c.hybridBase,
				LLMScore:         c.llmScore,
				FinalScore:       c.final,
				MethodLabel:      c.label,
			},
		}
	}
	return out
}
