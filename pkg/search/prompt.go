package search

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/propmatch/propmatch/pkg/models"
)

// BuildRerankPrompt renders the re-ranking instruction for one batch.
// Listing ids in the prompt are 1-based batch positions; the model must
// echo them back in its JSON answer.
func BuildRerankPrompt(query string, listings []models.Listing) string {
	var b strings.Builder
	b.WriteString("You are a property matching expert for Cape Town residential real estate.\n")
	b.WriteString("Score how well each property matches the buyer's request.\n\n")
	fmt.Fprintf(&b, "Buyer request: %q\n\n", query)
	b.WriteString("Properties:\n")
	for i := range listings {
		b.WriteString(listingSummary(i+1, &listings[i]))
		b.WriteString("\n")
	}
	b.WriteString("\nScoring bands:\n")
	b.WriteString("  15-29 unsuitable, 30-59 poor match, 60-74 adequate,\n")
	b.WriteString("  75-84 good, 85-94 very good, 95-100 excellent.\n")
	b.WriteString("Use the full width of each band. Never use a multiple of 5; ")
	b.WriteString("pick precise values like 67, 82 or 91.\n")
	b.WriteString("Respond with strict JSON only, no prose, no code fences:\n")
	b.WriteString(`[{"id": 1, "score": 67}, {"id": 2, "score": 82}]`)
	return b.String()
}

func listingSummary(id int, l *models.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s — %s, %d bed / %s bath, %s",
		id, l.Title, l.Type, l.Bedrooms, trimBath(l.Bathrooms), formatRand(l.Price))
	if bucket := marketBucket(l.Price); bucket != "" {
		fmt.Fprintf(&b, " (%s)", bucket)
	}
	if l.FloorArea > 0 {
		fmt.Fprintf(&b, ", %dm² [%s, ~%s/m²]",
			l.FloorArea, areaCategory(l.FloorArea), formatRand(l.Price/int64(l.FloorArea)))
	}
	fmt.Fprintf(&b, ", in %s, %s", l.Location.Neighborhood, l.Location.City)
	if flags := qualityFlags(l.Features); flags != "" {
		fmt.Fprintf(&b, ". Highlights: %s", flags)
	}
	if pois := poiSummary(l.PointsOfInterest); pois != "" {
		fmt.Fprintf(&b, ". Nearby: %s", pois)
	}
	fmt.Fprintf(&b, ". %s.", walkabilityLabel(l.PointsOfInterest))
	return b.String()
}

func formatRand(v int64) string {
	s := fmt.Sprintf("%d", v)
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return "R" + string(out)
}

func marketBucket(price int64) string {
	switch {
	case price < 1_500_000:
		return "budget segment"
	case price < 3_000_000:
		return "mid market"
	case price <= 6_000_000:
		return "upper mid market"
	default:
		return "luxury segment"
	}
}

func areaCategory(area int) string {
	switch {
	case area < 50:
		return "compact"
	case area < 100:
		return "medium"
	case area < 180:
		return "spacious"
	default:
		return "expansive"
	}
}

func qualityFlags(features []string) string {
	if len(features) == 0 {
		return ""
	}
	n := len(features)
	if n > 5 {
		n = 5
	}
	return strings.Join(features[:n], ", ")
}

// poiSummary groups points of interest by category and reports the
// nearest per category with a distance band.
func poiSummary(pois []models.PointOfInterest) string {
	if len(pois) == 0 {
		return ""
	}
	nearest := map[string]models.PointOfInterest{}
	for _, poi := range pois {
		cur, ok := nearest[poi.Category]
		if !ok || poi.DistanceKM < cur.DistanceKM {
			nearest[poi.Category] = poi
		}
	}
	categories := make([]string, 0, len(nearest))
	for c := range nearest {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	parts := make([]string, 0, len(categories))
	for _, c := range categories {
		poi := nearest[c]
		parts = append(parts, fmt.Sprintf("%s %.1fkm (%s)", poi.Name, poi.DistanceKM, distanceBand(poi.DistanceKM)))
	}
	return strings.Join(parts, "; ")
}

func distanceBand(d float64) string {
	switch {
	case d <= 1.0:
		return "walkable"
	case d <= 3.0:
		return "short drive"
	default:
		return "driving distance"
	}
}

func walkabilityLabel(pois []models.PointOfInterest) string {
	walkable := 0
	for _, poi := range pois {
		if poi.DistanceKM <= 1.0 {
			walkable++
		}
	}
	switch {
	case walkable >= 3:
		return "Very walkable area"
	case walkable >= 1:
		return "Some amenities within walking distance"
	default:
		return "Car-dependent location"
	}
}

type rankingEntry struct {
	ID    *int     `json:"id"`
	Score *float64 `json:"score"`
}

// ParseRankingResponse extracts the first [...] block from the model
// output and returns batch position → score. Entries missing either
// field are dropped. Returns nil when no parsable array exists.
func ParseRankingResponse(text string) map[int]float64 {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil
	}
	var entries []rankingEntry
	if err := json.Unmarshal([]byte(text[start:end+1]), &entries); err != nil {
		return nil
	}
	scores := make(map[int]float64, len(entries))
	for _, e := range entries {
		if e.ID == nil || e.Score == nil {
			continue
		}
		scores[*e.ID] = *e.Score
	}
	if len(scores) == 0 {
		return nil
	}
	return scores
}

func trimBath(f float64) string {
	s := fmt.Sprintf("%g", f)
	return s
}
