package vectorindex

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/propmatch/propmatch/pkg/models"
)

// ListingText derives the text that gets embedded for a listing. Kept
// stable: reindexing the same listing must produce the same document.
func ListingText(l *models.Listing) string {
	parts := []string{
		l.Title,
		fmt.Sprintf("%s with %d bedrooms and %s bathrooms",
			l.Type, l.Bedrooms, trimFloat(l.Bathrooms)),
		fmt.Sprintf("located in %s, %s", l.Location.Neighborhood, l.Location.City),
		fmt.Sprintf("priced at %d", l.Price),
	}
	if l.FloorArea > 0 {
		parts = append(parts, fmt.Sprintf("%d square meters", l.FloorArea))
	}
	if len(l.Features) > 0 {
		parts = append(parts, "features: "+strings.Join(l.Features, ", "))
	}
	if len(l.PointsOfInterest) > 0 {
		names := make([]string, 0, 10)
		for i, poi := range l.PointsOfInterest {
			if i >= 10 {
				break
			}
			names = append(names, fmt.Sprintf("%s (%.1f km)", poi.Name, poi.DistanceKM))
		}
		parts = append(parts, "nearby: "+strings.Join(names, ", "))
	}
	if l.Description != "" {
		parts = append(parts, l.Description)
	}
	return strings.Join(parts, ". ")
}

// ListingMetadata returns the metadata stored next to a vector; these
// are the only fields the index filter grammar can see.
func ListingMetadata(l *models.Listing) map[string]interface{} {
	return map[string]interface{}{
		"listing_key":   l.ListingKey,
		"price":         l.Price,
		"property_type": string(l.Type),
		"bedrooms":      l.Bedrooms,
		"city":          l.Location.City,
		"neighborhood":  l.Location.Neighborhood,
	}
}

// ListingItem pairs a listing's embedding with its metadata for upsert.
func ListingItem(l *models.Listing, vector []float32) Item {
	return Item{
		ID:       strconv.FormatInt(l.ListingKey, 10),
		Vector:   vector,
		Metadata: ListingMetadata(l),
	}
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
