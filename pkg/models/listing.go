// Package models holds the data types shared across the search service.
package models

import (
	"strings"
	"time"
)

// PropertyType classifies a listing.
type PropertyType string

const (
	PropertyTypeHouse     PropertyType = "house"
	PropertyTypeApartment PropertyType = "apartment"
	PropertyTypeTownhouse PropertyType = "townhouse"
	PropertyTypeVilla     PropertyType = "villa"
	PropertyTypeCondo     PropertyType = "condo"
)

// Valid reports whether the type is one of the known values.
func (t PropertyType) Valid() bool {
	switch t {
	case PropertyTypeHouse, PropertyTypeApartment, PropertyTypeTownhouse,
		PropertyTypeVilla, PropertyTypeCondo:
		return true
	}
	return false
}

// PropertyStatus is the market status of a listing.
type PropertyStatus string

const (
	StatusForSale PropertyStatus = "for_sale"
	StatusForRent PropertyStatus = "for_rent"
)

// Valid reports whether the status is one of the known values.
func (s PropertyStatus) Valid() bool {
	return s == StatusForSale || s == StatusForRent
}

// Location is the address breakdown of a listing.
type Location struct {
	Address      string `json:"address,omitempty"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	Province     string `json:"province,omitempty"`
	Country      string `json:"country,omitempty"`
}

// PointOfInterest is a precomputed nearby landmark with its distance.
type PointOfInterest struct {
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	DistanceKM float64 `json:"distance_km"`
}

// Listing is an immutable property record keyed by ListingKey. The
// service never mutates listings; derived views (search documents,
// prompt summaries) are computed from this record.
type Listing struct {
	ListingKey       int64             `json:"listing_key"`
	Title            string            `json:"title"`
	Description      string            `json:"description,omitempty"`
	Price            int64             `json:"price"`
	Type             PropertyType      `json:"property_type"`
	Status           PropertyStatus    `json:"status"`
	Bedrooms         int               `json:"bedrooms"`
	Bathrooms        float64           `json:"bathrooms"`
	FloorArea        int               `json:"floor_area,omitempty"`
	ListedAt         time.Time         `json:"listed_at,omitempty"`
	Location         Location          `json:"location"`
	Features         []string          `json:"features,omitempty"`
	Images           []string          `json:"images,omitempty"`
	PointsOfInterest []PointOfInterest `json:"points_of_interest,omitempty"`
}

// NearestPOI returns the minimum distance among points of interest whose
// lowercased name contains any of the given substrings, and whether one
// was found.
func (l *Listing) NearestPOI(nameContains ...string) (float64, bool) {
	best := 0.0
	found := false
	for _, poi := range l.PointsOfInterest {
		name := strings.ToLower(poi.Name)
		for _, sub := range nameContains {
			if strings.Contains(name, sub) {
				if !found || poi.DistanceKM < best {
					best = poi.DistanceKM
					found = true
				}
				break
			}
		}
	}
	return best, found
}
