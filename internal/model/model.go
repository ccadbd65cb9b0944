// Package model defines the persisted document shapes for the restaurant
// directory: the registry and mapping-provider restaurant variants, reviews,
// and the soft-delete envelope they all share.
package model

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/tattler-mx/tattler-go/internal/errors"
)

// Collection names.
const (
	CollRegistryRestaurants = "restaurants_inegi"
	CollMapsRestaurants     = "restaurants_google"
	CollReviews             = "reviews_google"
)

// SourceGoogle is the default provenance value for ingested reviews.
const SourceGoogle = "Google"

// GeoPoint is a GeoJSON point. Coordinates are always [longitude, latitude]
// in that order.
type GeoPoint struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
}

// NewGeoPoint builds a point from a longitude/latitude pair.
func NewGeoPoint(lon, lat float64) *GeoPoint {
	return &GeoPoint{Type: "Point", Coordinates: []float64{lon, lat}}
}

// Validate rejects malformed points before persistence: wrong type tag,
// coordinate arrays not exactly two long, and non-finite values.
func (p *GeoPoint) Validate() error {
	if p.Type != "Point" {
		return errors.Newf("location type must be Point, got %q", p.Type).
			Category(errors.CategoryValidation).
			Component("model").
			Build()
	}
	if len(p.Coordinates) != 2 {
		return errors.Newf("location coordinates must have exactly 2 elements, got %d", len(p.Coordinates)).
			Category(errors.CategoryValidation).
			Component("model").
			Build()
	}
	for _, c := range p.Coordinates {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return errors.Newf("location coordinates must be finite numbers").
				Category(errors.CategoryValidation).
				Component("model").
				Build()
		}
	}
	return nil
}

// Envelope is the soft-delete and audit envelope present on every record.
// Deletion always means setting these fields, never removing the document.
type Envelope struct {
	Deleted    bool       `bson:"deleted" json:"deleted"`
	DeletedAt  *time.Time `bson:"deleted_at" json:"deleted_at"`
	CreatedAt  time.Time  `bson:"created_at,omitempty" json:"created_at,omitempty"`
	ModifiedAt time.Time  `bson:"modified_at,omitempty" json:"modified_at,omitempty"`
}

// RegistryRestaurant is the national business registry variant. The natural
// key is the registry id; location is mandated by the collection schema.
type RegistryRestaurant struct {
	ID             string    `bson:"id" json:"id"`
	Name           string    `bson:"name,omitempty" json:"name,omitempty"`
	LegalName      string    `bson:"legal_name,omitempty" json:"legal_name,omitempty"`
	ActivityClass  string    `bson:"activity_class,omitempty" json:"activity_class,omitempty"`
	StreetType     string    `bson:"street_type,omitempty" json:"street_type,omitempty"`
	Street         string    `bson:"street,omitempty" json:"street,omitempty"`
	ExteriorNumber string    `bson:"exterior_number,omitempty" json:"exterior_number,omitempty"`
	InteriorNumber string    `bson:"interior_number,omitempty" json:"interior_number,omitempty"`
	Neighborhood   string    `bson:"neighborhood,omitempty" json:"neighborhood,omitempty"`
	PostalCode     string    `bson:"postal_code,omitempty" json:"postal_code,omitempty"`
	Phone          string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Email          string    `bson:"email,omitempty" json:"email,omitempty"`
	Website        string    `bson:"website,omitempty" json:"website,omitempty"`
	VenueType      string    `bson:"venue_type,omitempty" json:"venue_type,omitempty"`
	Location       *GeoPoint `bson:"location,omitempty" json:"location,omitempty"`
	Latitude       *float64  `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude      *float64  `bson:"longitude,omitempty" json:"longitude,omitempty"`

	Envelope `bson:",inline"`
}

// MapsRestaurant is the mapping-provider variant. data_id is the natural
// key at the API level; google_place_id is the dedup key during ingestion,
// before data_id is reliably known.
type MapsRestaurant struct {
	DataID               string     `bson:"data_id,omitempty" json:"data_id,omitempty"`
	GooglePlaceID        string     `bson:"google_place_id,omitempty" json:"google_place_id,omitempty"`
	Name                 string     `bson:"name,omitempty" json:"name,omitempty"`
	Address              string     `bson:"address,omitempty" json:"address,omitempty"`
	Phone                string     `bson:"phone,omitempty" json:"phone,omitempty"`
	Rating               *float64   `bson:"rating" json:"rating"`
	ReviewsCount         *int       `bson:"reviews_count" json:"reviews_count"`
	VenueType            string     `bson:"venue_type,omitempty" json:"venue_type,omitempty"`
	Categories           []string   `bson:"categories" json:"categories"`
	Hours                any        `bson:"hours,omitempty" json:"hours,omitempty"`
	Location             *GeoPoint  `bson:"location,omitempty" json:"location,omitempty"`
	Photos               []string   `bson:"photos" json:"photos"`
	Thumbnail            string     `bson:"thumbnail,omitempty" json:"thumbnail,omitempty"`
	RawGoogleData        bson.M     `bson:"raw_google_data,omitempty" json:"raw_google_data,omitempty"`
	LastReviewsFetchedAt *time.Time `bson:"last_reviews_fetched_at,omitempty" json:"last_reviews_fetched_at,omitempty"`

	Envelope `bson:",inline"`
}

// Review is a mapping-provider review linked to a MapsRestaurant by
// data_id. The composite (review_id, data_id) pair is unique; data_id is a
// weak reference with no enforced existence.
type Review struct {
	ReviewID      string    `bson:"review_id" json:"review_id"`
	DataID        string    `bson:"data_id" json:"data_id"`
	GooglePlaceID string    `bson:"google_place_id,omitempty" json:"google_place_id,omitempty"`
	Author        string    `bson:"author,omitempty" json:"author,omitempty"`
	Rating        *float64  `bson:"rating" json:"rating"`
	Text          string    `bson:"text,omitempty" json:"text,omitempty"`
	Date          string    `bson:"date,omitempty" json:"date,omitempty"`
	Images        []string  `bson:"images" json:"images"`
	Source        string    `bson:"source" json:"source"`
	RawReview     bson.M    `bson:"raw_google_review,omitempty" json:"raw_google_review,omitempty"`
	NormalizedAt  time.Time `bson:"normalized_at" json:"normalized_at"`

	Envelope `bson:",inline"`
}
