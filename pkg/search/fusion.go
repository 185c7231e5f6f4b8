package search

import "math"

// Fusion method labels, one per branch of FuseScores.
const (
	MethodAIExcellentTrusted         = "ai_excellent_trusted"
	MethodAIExcellentWithHybridBoost = "ai_excellent_with_hybrid_boost"
	MethodAIGoodHybridConfirmed      = "ai_good_hybrid_confirmed"
	MethodAIGoodMostlyTrusted        = "ai_good_mostly_trusted"
	MethodAIHybridBalanced           = "ai_hybrid_balanced"
	MethodAIModerateBlend            = "ai_moderate_blend"
	MethodAIPoorTrusted              = "ai_poor_trusted"
	MethodAIPoorMostlyTrusted        = "ai_poor_mostly_trusted"
)

// FuseScores combines the LLM score with the hybrid base into the final
// score. AI-dominant: the model's judgment leads, the hybrid base
// confirms or tempers it. Returns the fused score clamped to [10,100]
// and rounded to one decimal, plus the branch label.
func FuseScores(llm, hybridBase float64) (float64, string) {
	var final float64
	var label string

	switch {
	case llm >= 85:
		if hybridBase >= 75 {
			final = llm + 2
			label = MethodAIExcellentWithHybridBoost
		} else {
			final = llm
			label = MethodAIExcellentTrusted
		}
	case llm >= 70:
		if hybridBase >= 70 {
			final = 0.7*llm + 0.3*hybridBase + 3
			label = MethodAIGoodHybridConfirmed
		} else {
			final = 0.8*llm + 0.2*hybridBase
			label = MethodAIGoodMostlyTrusted
		}
	case llm >= 50:
		final = 0.6*llm + 0.4*hybridBase
		label = MethodAIHybridBalanced
	case llm > 30:
		final = 0.65*llm + 0.35*hybridBase
		label = MethodAIModerateBlend
	default: // llm <= 30
		if hybridBase <= 40 {
			final = llm
			label = MethodAIPoorTrusted
		} else {
			final = 0.8*llm + 0.2*hybridBase
			label = MethodAIPoorMostlyTrusted
		}
	}

	return roundScore(clamp(final, 10, 100)), label
}

// HybridBase combines the normalized vector similarity with the capped
// lexical contribution.
func HybridBase(similarity, bm25Contribution float64) float64 {
	vector100 := similarity
	if vector100 <= 1 {
		vector100 *= 100
	}
	return clamp(vector100+0.5*bm25Contribution, 10, 100)
}

// BM25Contribution scales a raw score against the best candidate into
// at most 20 points.
func BM25Contribution(raw, max float64) float64 {
	if max <= 0 || raw <= 0 {
		return 0
	}
	return math.Min(20, 20*raw/max)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundScore(v float64) float64 {
	return math.Round(v*10) / 10
}
