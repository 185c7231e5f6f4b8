package explain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/propmatch/propmatch/pkg/llm"
	"github.com/propmatch/propmatch/pkg/models"
)

// explanationMessages shapes the chat call: a strict-JSON system turn
// plus the property facts and the buyer's query.
func explanationMessages(query string, l *models.Listing) []llm.Message {
	var b strings.Builder

	fmt.Fprintf(&b, "A buyer searched for: %q\n\n", query)
	b.WriteString("Property details:\n")
	fmt.Fprintf(&b, "- Title: %s\n", l.Title)
	fmt.Fprintf(&b, "- Type: %s, %d bedrooms, %g bathrooms\n", l.Type, l.Bedrooms, l.Bathrooms)
	fmt.Fprintf(&b, "- Price: R%d\n", l.Price)
	fmt.Fprintf(&b, "- Location: %s, %s\n", l.Location.Neighborhood, l.Location.City)
	if l.FloorArea > 0 {
		fmt.Fprintf(&b, "- Floor area: %dm²\n", l.FloorArea)
	}
	if len(l.Features) > 0 {
		fmt.Fprintf(&b, "- Features: %s\n", strings.Join(l.Features, ", "))
	}
	for i, poi := range l.PointsOfInterest {
		if i >= 8 {
			break
		}
		fmt.Fprintf(&b, "- Nearby: %s (%.1fkm)\n", poi.Name, poi.DistanceKM)
	}

	b.WriteString(`
Explain how well this property matches the buyer's search. Respond with
JSON only, exactly this shape:
{"positive_points": [{"point": "...", "details": "..."}],
 "negative_points": [{"point": "...", "details": "..."}],
 "overall_summary": "..."}
Give 2-4 positive points, 0-3 negative points, and keep the summary to
two sentences.`)

	return []llm.Message{
		{Role: "system", Content: "You are a property matching assistant. Output strict JSON with no surrounding text."},
		{Role: "user", Content: b.String()},
	}
}

// parseExplanation extracts the JSON body from a model response,
// tolerating markdown code fences and surrounding prose, and rejects
// responses missing the summary or all positive points.
func parseExplanation(text string) (*models.Explanation, error) {
	cleaned := stripCodeFences(text)
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var expl models.Explanation
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &expl); err != nil {
		return nil, fmt.Errorf("decode explanation: %w", err)
	}
	if strings.TrimSpace(expl.OverallSummary) == "" {
		return nil, fmt.Errorf("explanation has no summary")
	}
	if len(expl.PositivePoints) == 0 {
		return nil, fmt.Errorf("explanation has no positive points")
	}
	return &expl, nil
}

func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
