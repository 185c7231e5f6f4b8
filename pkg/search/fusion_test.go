package search

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFuseScoresBranches(t *testing.T) {
	tests := []struct {
		name      string
		llm       float64
		hybrid    float64
		wantScore float64
		wantLabel string
	}{
		{"excellent with strong hybrid", 90, 80, 92, MethodAIExcellentWithHybridBoost},
		{"excellent alone", 90, 60, 90, MethodAIExcellentTrusted},
		{"excellent boundary", 85, 75, 87, MethodAIExcellentWithHybridBoost},
		{"good confirmed", 78, 72, 0.7*78 + 0.3*72 + 3, MethodAIGoodHybridConfirmed},
		{"good mostly trusted", 78, 50, 0.8*78 + 0.2*50, MethodAIGoodMostlyTrusted},
		{"balanced", 60, 50, 0.6*60 + 0.4*50, MethodAIHybridBalanced},
		{"balanced lower boundary", 50, 80, 0.6*50 + 0.4*80, MethodAIHybridBalanced},
		{"moderate blend", 40, 60, 0.65*40 + 0.35*60, MethodAIModerateBlend},
		{"moderate open boundary", 31, 40, 0.65*31 + 0.35*40, MethodAIModerateBlend},
		{"poor trusted", 20, 35, 20, MethodAIPoorTrusted},
		{"poor mostly trusted", 20, 70, 0.8*20 + 0.2*70, MethodAIPoorMostlyTrusted},
		{"poor boundary is thirty", 30, 35, 30, MethodAIPoorTrusted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, label := FuseScores(tt.llm, tt.hybrid)
			assert.InDelta(t, math.Round(tt.wantScore*10)/10, got, 1e-9)
			assert.Equal(t, tt.wantLabel, label)
		})
	}
}

func TestFuseScoresClampAndRounding(t *testing.T) {
	// llm 99 with strong hybrid would exceed 100.
	got, _ := FuseScores(99, 90)
	assert.InDelta(t, 100, got, 1e-9)

	// Very poor scores clamp at the floor.
	got, _ = FuseScores(5, 10)
	assert.InDelta(t, 10, got, 1e-9)

	// One fractional digit at most.
	got, _ = FuseScores(77.77, 66.66)
	assert.InDelta(t, got, math.Round(got*10)/10, 1e-9)
}

func TestHybridBase(t *testing.T) {
	// Similarity in [0,1] is scaled to 100.
	assert.InDelta(t, 85.0, HybridBase(0.85, 0), 1e-9)
	// Lexical contribution is halved.
	assert.InDelta(t, 95.0, HybridBase(0.85, 20), 1e-9)
	// Floor at 10.
	assert.InDelta(t, 10.0, HybridBase(0.01, 0), 1e-9)
	// Ceiling at 100.
	assert.InDelta(t, 100.0, HybridBase(0.99, 20), 1e-9)
}

func TestBM25Contribution(t *testing.T) {
	assert.InDelta(t, 20.0, BM25Contribution(8, 8), 1e-9)
	assert.InDelta(t, 10.0, BM25Contribution(4, 8), 1e-9)
	assert.Zero(t, BM25Contribution(0, 8))
	assert.Zero(t, BM25Contribution(5, 0))
}
