package search

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/propmatch/propmatch/pkg/models"
)

// The learned signals upstream cannot guarantee hard requirements like
// "under 4 million" or "walking distance to UCT". The constraint
// overlay parses those from the query text and applies deterministic
// multiplicative penalties and bonuses on top of the fused score.

var (
	priceCapRe   = regexp.MustCompile(`(?i)(?:under|below|less\s+than)\s+r?\s*(\d+(?:\.\d+)?)\s*million`)
	priceFloorRe = regexp.MustCompile(`(?i)(?:over|above|more\s+than)\s+r?\s*(\d+(?:\.\d+)?)\s*million`)
	bedroomRe    = regexp.MustCompile(`(?i)\b(\d+)\s*(?:bed|bedroom)s?\b`)
	typeRe       = regexp.MustCompile(`(?i)\b(apartment|flat|house|townhouse|villa)s?\b`)
	cbdRe        = regexp.MustCompile(`(?i)\b(?:cbd|city\s+cent(?:re|er)|downtown)\b`)
	uctRe        = regexp.MustCompile(`\buct\b`)
)

// typeSynonyms maps a requested type token to the listing types that
// satisfy it.
var typeSynonyms = map[string][]models.PropertyType{
	"apartment": {models.PropertyTypeApartment, models.PropertyTypeCondo},
	"flat":      {models.PropertyTypeApartment, models.PropertyTypeCondo},
	"house":     {models.PropertyTypeHouse, models.PropertyTypeVilla},
	"villa":     {models.PropertyTypeVilla, models.PropertyTypeHouse},
	"townhouse": {models.PropertyTypeTownhouse},
}

// impossibleLocations are places a Cape Town corpus cannot serve:
// other South African cities plus a handful of world cities people
// paste into queries.
var impossibleLocations = []string{
	"johannesburg", "joburg", "pretoria", "durban", "sandton", "soweto",
	"bloemfontein", "port elizabeth", "gqeberha", "east london",
	"pietermaritzburg", "polokwane", "nelspruit", "kimberley",
	"london", "new york", "paris", "tokyo", "sydney", "dubai",
	"berlin", "amsterdam",
}

var cbdNeighborhoods = map[string]bool{
	"city centre": true,
	"foreshore":   true,
	"city bowl":   true,
}

// QueryConstraints is the parsed constraint view of one query.
type QueryConstraints struct {
	PriceCap           int64 // 0 = unset
	PriceFloor         int64 // 0 = unset
	Bedrooms           int   // -1 = unset
	PropertyType       string
	ImpossibleLocation bool
	WantsUCT           bool
	WalkingQualifier   bool
	WantsWaterfront    bool
	WantsCBD           bool
}

// ParseConstraints extracts constraints from sanitized query text.
func ParseConstraints(query string) QueryConstraints {
	lowered := strings.ToLower(query)
	c := QueryConstraints{Bedrooms: -1}

	if m := priceCapRe.FindStringSubmatch(query); m != nil {
		if millions, err := strconv.ParseFloat(m[1], 64); err == nil {
			c.PriceCap = int64(millions * 1_000_000)
		}
	}
	if m := priceFloorRe.FindStringSubmatch(query); m != nil {
		if millions, err := strconv.ParseFloat(m[1], 64); err == nil {
			c.PriceFloor = int64(millions * 1_000_000)
		}
	}
	if m := bedroomRe.FindStringSubmatch(query); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			c.Bedrooms = n
		}
	}
	if m := typeRe.FindStringSubmatch(query); m != nil {
		c.PropertyType = strings.ToLower(m[1])
	}
	for _, place := range impossibleLocations {
		if strings.Contains(lowered, place) {
			c.ImpossibleLocation = true
			break
		}
	}
	c.WantsUCT = strings.Contains(lowered, "university of cape town") ||
		uctRe.MatchString(lowered)
	c.WalkingQualifier = strings.Contains(lowered, "walking")
	c.WantsWaterfront = strings.Contains(lowered, "waterfront") || strings.Contains(lowered, "v&a")
	c.WantsCBD = cbdRe.MatchString(lowered)
	return c
}

// Adjust applies the constraint overlay to a pre-constraint score.
// Pure: the same listing, constraints, and base always produce the
// same result. The output is clamped to [15,100] and rounded to one
// decimal.
func (c QueryConstraints) Adjust(l *models.Listing, base float64) float64 {
	score := base

	if c.PriceCap > 0 && l.Price > c.PriceCap {
		score *= 0.3
	}
	if c.PriceFloor > 0 && l.Price < c.PriceFloor {
		score *= 0.3
	}
	if c.ImpossibleLocation {
		score *= 0.2
	}
	if c.Bedrooms >= 0 && l.Bedrooms != c.Bedrooms {
		score *= 0.7
	}
	if c.PropertyType != "" && !typeMatches(c.PropertyType, l.Type) {
		score *= 0.85
	}
	if c.WantsUCT {
		if d, ok := l.NearestPOI("uct", "university of cape town"); ok {
			score *= uctMultiplier(d, c.WalkingQualifier)
		}
	}
	if c.WantsWaterfront {
		if d, ok := l.NearestPOI("waterfront", "v&a"); ok && d <= 2.0 {
			score *= 1.15
		}
	}
	if c.WantsCBD && cbdNeighborhoods[strings.ToLower(l.Location.Neighborhood)] {
		score *= 1.1
	}

	return roundScore(clamp(score, 15, 100))
}

func uctMultiplier(d float64, walking bool) float64 {
	if walking {
		switch {
		case d <= 1.0:
			return 1.4
		case d <= 1.5:
			return 1.25
		case d <= 2.0:
			return 1.1
		default:
			return 0.7
		}
	}
	switch {
	case d <= 2.0:
		return 1.2
	case d <= 4.0:
		return 1.1
	default:
		return 1.0
	}
}

func typeMatches(requested string, actual models.PropertyType) bool {
	for _, t := range typeSynonyms[requested] {
		if t == actual {
			return true
		}
	}
	return false
}

// AdjustScore is the one-shot form: parse then adjust.
func AdjustScore(l *models.Listing, queryText string, base float64) float64 {
	return ParseConstraints(queryText).Adjust(l, base)
}
