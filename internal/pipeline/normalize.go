// Package pipeline implements the ingestion and reconciliation core:
// record normalization, idempotent upsert keys, the upsert executor, the
// refresh selector and the request budget.
package pipeline

import (
	stderrors "errors"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tattler-mx/tattler-go/internal/model"
)

// ErrSkipRecord signals that a raw record lacks the minimum identifying
// field for its type and must be skipped, never stored with a null key.
var ErrSkipRecord = stderrors.New("record not ingestable: missing identifying field")

// registryColumns maps the registry CSV export's column headers to
// canonical field setters. Optional fields are included only when their
// trimmed value is non-empty.
var registryColumns = []struct {
	header string
	assign func(*model.RegistryRestaurant, string)
}{
	{"Nombre de la Unidad Económica", func(r *model.RegistryRestaurant, v string) { r.Name = v }},
	{"Razón social", func(r *model.RegistryRestaurant, v string) { r.LegalName = v }},
	{"Nombre de clase de la actividad", func(r *model.RegistryRestaurant, v string) { r.ActivityClass = v }},
	{"Tipo de vialidad", func(r *model.RegistryRestaurant, v string) { r.StreetType = v }},
	{"Nombre de la vialidad", func(r *model.RegistryRestaurant, v string) { r.Street = v }},
	{"Número exterior o kilómetro", func(r *model.RegistryRestaurant, v string) { r.ExteriorNumber = v }},
	{"Número interior", func(r *model.RegistryRestaurant, v string) { r.InteriorNumber = v }},
	{"Nombre de asentamiento humano", func(r *model.RegistryRestaurant, v string) { r.Neighborhood = v }},
	{"Código Postal", func(r *model.RegistryRestaurant, v string) { r.PostalCode = v }},
	{"Número de teléfono", func(r *model.RegistryRestaurant, v string) { r.Phone = v }},
	{"Correo electrónico", func(r *model.RegistryRestaurant, v string) { r.Email = v }},
	{"Sitio en Internet", func(r *model.RegistryRestaurant, v string) { r.Website = v }},
	{"Tipo de establecimiento", func(r *model.RegistryRestaurant, v string) { r.VenueType = v }},
}

// NormalizeRegistryRow transforms one registry CSV row into a canonical
// registry restaurant. The numeric location is included only when both
// coordinates parse to finite floats; callers that mandate a location must
// reject rows without one. Rows without an ID return ErrSkipRecord.
func NormalizeRegistryRow(row map[string]string) (*model.RegistryRestaurant, error) {
	id := strings.TrimSpace(row["ID"])
	if id == "" {
		return nil, ErrSkipRecord
	}

	r := &model.RegistryRestaurant{ID: id}
	for _, col := range registryColumns {
		if v := strings.TrimSpace(row[col.header]); v != "" {
			col.assign(r, v)
		}
	}

	lat, latErr := strconv.ParseFloat(strings.TrimSpace(row["Latitud"]), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(row["Longitud"]), 64)
	if latErr == nil && lonErr == nil && !math.IsNaN(lat) && !math.IsNaN(lon) {
		r.Location = model.NewGeoPoint(lon, lat)
		r.Latitude = &lat
		r.Longitude = &lon
	}

	return r, nil
}

// NormalizeMapsPlace transforms a mapping-provider place payload into a
// canonical maps restaurant. The entire raw payload is retained under
// raw_google_data for re-normalization. Entries without a place_id return
// ErrSkipRecord.
func NormalizeMapsPlace(place map[string]any) (*model.MapsRestaurant, error) {
	placeID := stringField(place, "place_id")
	if placeID == "" {
		return nil, ErrSkipRecord
	}

	r := &model.MapsRestaurant{
		GooglePlaceID: placeID,
		DataID:        stringField(place, "data_id"),
		Name:          stringField(place, "title"),
		Address:       stringField(place, "address"),
		Phone:         stringField(place, "phone"),
		Rating:        numberField(place, "rating"),
		VenueType:     stringField(place, "type"),
		Categories:    stringSliceField(place, "types"),
		Hours:         place["hours"],
		Photos:        extractImageURLs(place["photos"]),
		Thumbnail:     stringField(place, "thumbnail"),
		RawGoogleData: bson.M(place),
	}

	if count := numberField(place, "reviews"); count != nil {
		n := int(*count)
		r.ReviewsCount = &n
	}

	if gps, ok := toMap(place["gps_coordinates"]); ok {
		lat := numberField(gps, "latitude")
		lon := numberField(gps, "longitude")
		if lat != nil && lon != nil {
			r.Location = model.NewGeoPoint(*lon, *lat)
		}
	}

	return r, nil
}

// NormalizeReview transforms a raw provider review into a canonical review
// linked to its parent restaurant. Field resolution follows strict
// priorities: nested user name over flat author, text over snippet over
// extracted snippet, photos over images (never merged), iso_date over
// iso_date_of_last_edit over the raw date. Reviews with no discoverable
// review_id return ErrSkipRecord.
func NormalizeReview(raw map[string]any, dataID, placeID string) (*model.Review, error) {
	reviewID := stringField(raw, "review_id")
	if reviewID == "" {
		reviewID = stringField(raw, "id")
	}
	if reviewID == "" {
		return nil, ErrSkipRecord
	}

	source := stringField(raw, "source")
	if source == "" {
		source = model.SourceGoogle
	}

	return &model.Review{
		ReviewID:      reviewID,
		DataID:        dataID,
		GooglePlaceID: placeID,
		Author:        resolveAuthor(raw),
		Rating:        numberField(raw, "rating"),
		Text:          resolveText(raw),
		Date:          resolveDate(raw),
		Images:        resolveImages(raw),
		Source:        source,
		RawReview:     bson.M(raw),
		NormalizedAt:  time.Now(),
	}, nil
}

// resolveAuthor prefers the nested user object's name; the flat author
// field (string or object) is the fallback.
func resolveAuthor(raw map[string]any) string {
	if user, ok := toMap(raw["user"]); ok {
		if name := stringField(user, "name"); name != "" {
			return name
		}
	}
	if a, ok := raw["author"].(string); ok {
		return a
	}
	if a, ok := toMap(raw["author"]); ok {
		return stringField(a, "name")
	}
	return ""
}

func resolveText(raw map[string]any) string {
	if t := stringField(raw, "text"); t != "" {
		return t
	}
	if t := stringField(raw, "snippet"); t != "" {
		return t
	}
	if es, ok := toMap(raw["extracted_snippet"]); ok {
		return stringField(es, "snippet")
	}
	return ""
}

func resolveDate(raw map[string]any) string {
	if d := stringField(raw, "iso_date"); d != "" {
		return d
	}
	if d := stringField(raw, "iso_date_of_last_edit"); d != "" {
		return d
	}
	return stringField(raw, "date")
}

// resolveImages collects image URLs from photos; images is consulted only
// when photos yielded zero entries. The two sources are never merged.
func resolveImages(raw map[string]any) []string {
	if imgs := extractImageURLs(raw["photos"]); len(imgs) > 0 {
		return imgs
	}
	return extractImageURLs(raw["images"])
}

// extractImageURLs pulls URL strings out of a provider image list whose
// entries may be plain strings or objects carrying url or source keys.
func extractImageURLs(v any) []string {
	imgs := []string{}
	entries, ok := toSlice(v)
	if !ok {
		return imgs
	}
	for _, e := range entries {
		if s, ok := e.(string); ok {
			if s != "" {
				imgs = append(imgs, s)
			}
			continue
		}
		entry, ok := toMap(e)
		if !ok {
			continue
		}
		if u := stringField(entry, "url"); u != "" {
			imgs = append(imgs, u)
		} else if u := stringField(entry, "source"); u != "" {
			imgs = append(imgs, u)
		} else if u := stringField(entry, "image"); u != "" {
			imgs = append(imgs, u)
		}
	}
	return imgs
}

// toMap and toSlice accept both the JSON decoder's map/slice types and the
// bson driver's named equivalents; ingestion reads fresh payloads while the
// re-normalization sweep reads raw payloads back out of the store.
func toMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case bson.M:
		return m, true
	default:
		return nil, false
	}
}

func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case primitive.A:
		return s, true
	default:
		return nil, false
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func numberField(m map[string]any, key string) *float64 {
	switch n := m[key].(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	case int32:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	default:
		return nil
	}
}

func stringSliceField(m map[string]any, key string) []string {
	raw, ok := toSlice(m[key])
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
