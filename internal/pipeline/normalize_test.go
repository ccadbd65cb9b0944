package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNormalizeRegistryRowRequiresID(t *testing.T) {
	_, err := NormalizeRegistryRow(map[string]string{
		"Nombre de la Unidad Económica": "Taquería El Paso",
	})
	assert.ErrorIs(t, err, ErrSkipRecord)

	_, err = NormalizeRegistryRow(map[string]string{"ID": "   "})
	assert.ErrorIs(t, err, ErrSkipRecord)
}

func TestNormalizeRegistryRowOmitsEmptyOptionalFields(t *testing.T) {
	r, err := NormalizeRegistryRow(map[string]string{
		"ID":                            "1234567",
		"Nombre de la Unidad Económica": "Fonda Doña Mary",
		"Razón social":                  "",
		"Número de teléfono":            "   ",
	})
	require.NoError(t, err)

	assert.Equal(t, "1234567", r.ID)
	assert.Equal(t, "Fonda Doña Mary", r.Name)
	// Empty or whitespace-only columns stay absent rather than becoming
	// empty strings in the stored document.
	assert.Empty(t, r.LegalName)
	assert.Empty(t, r.Phone)
	assert.Nil(t, r.Location)
}

func TestNormalizeRegistryRowCoordinates(t *testing.T) {
	r, err := NormalizeRegistryRow(map[string]string{
		"ID":       "42",
		"Latitud":  "25.6866",
		"Longitud": "-100.3161",
	})
	require.NoError(t, err)
	require.NotNil(t, r.Location)

	// GeoJSON ordering is [longitude, latitude].
	assert.Equal(t, "Point", r.Location.Type)
	assert.Equal(t, []float64{-100.3161, 25.6866}, r.Location.Coordinates)
	require.NotNil(t, r.Latitude)
	assert.InDelta(t, 25.6866, *r.Latitude, 1e-9)

	r, err = NormalizeRegistryRow(map[string]string{
		"ID":       "43",
		"Latitud":  "not-a-number",
		"Longitud": "-100.3161",
	})
	require.NoError(t, err)
	assert.Nil(t, r.Location, "one bad coordinate drops the whole location")
}

func TestNormalizeMapsPlace(t *testing.T) {
	place := map[string]any{
		"place_id": "ChIJabc",
		"data_id":  "0x123:0x456",
		"title":    "Los Arbolitos",
		"rating":   4.5,
		"reviews":  312,
		"type":     "Restaurant",
		"types":    []any{"Restaurant", "Bar"},
		"gps_coordinates": map[string]any{
			"latitude":  25.65,
			"longitude": -100.29,
		},
		"photos": []any{
			map[string]any{"image": "https://img.example/1.jpg"},
		},
	}

	r, err := NormalizeMapsPlace(place)
	require.NoError(t, err)

	assert.Equal(t, "ChIJabc", r.GooglePlaceID)
	assert.Equal(t, "0x123:0x456", r.DataID)
	assert.Equal(t, "Los Arbolitos", r.Name)
	require.NotNil(t, r.Rating)
	assert.InDelta(t, 4.5, *r.Rating, 1e-9)
	require.NotNil(t, r.ReviewsCount)
	assert.Equal(t, 312, *r.ReviewsCount)
	assert.Equal(t, []string{"Restaurant", "Bar"}, r.Categories)
	require.NotNil(t, r.Location)
	assert.Equal(t, []float64{-100.29, 25.65}, r.Location.Coordinates)
	assert.Equal(t, []string{"https://img.example/1.jpg"}, r.Photos)
	assert.NotNil(t, r.RawGoogleData, "raw payload retained for re-normalization")
}

func TestNormalizeMapsPlaceRequiresPlaceID(t *testing.T) {
	_, err := NormalizeMapsPlace(map[string]any{"title": "Anonymous"})
	assert.ErrorIs(t, err, ErrSkipRecord)
}

func TestNormalizeReviewAuthorPriority(t *testing.T) {
	r, err := NormalizeReview(map[string]any{
		"review_id": "rev-1",
		"user":      map[string]any{"name": "Ana"},
		"author":    "Benito",
	}, "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", r.Author, "nested user name beats flat author")

	r, err = NormalizeReview(map[string]any{
		"review_id": "rev-2",
		"author":    "Benito",
	}, "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "Benito", r.Author)

	r, err = NormalizeReview(map[string]any{
		"review_id": "rev-3",
		"author":    map[string]any{"name": "Carla"},
	}, "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "Carla", r.Author)
}

func TestNormalizeReviewTextPriority(t *testing.T) {
	r, err := NormalizeReview(map[string]any{
		"review_id":         "rev-1",
		"text":              "full text",
		"snippet":           "short snippet",
		"extracted_snippet": map[string]any{"snippet": "extracted"},
	}, "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "full text", r.Text)

	r, err = NormalizeReview(map[string]any{
		"review_id":         "rev-2",
		"snippet":           "short snippet",
		"extracted_snippet": map[string]any{"snippet": "extracted"},
	}, "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "short snippet", r.Text)

	r, err = NormalizeReview(map[string]any{
		"review_id":         "rev-3",
		"extracted_snippet": map[string]any{"snippet": "extracted"},
	}, "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "extracted", r.Text)
}

func TestNormalizeReviewDatePriority(t *testing.T) {
	r, err := NormalizeReview(map[string]any{
		"review_id":             "rev-1",
		"iso_date":              "2024-01-02T00:00:00Z",
		"iso_date_of_last_edit": "2024-02-02T00:00:00Z",
		"date":                  "hace 2 meses",
	}, "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02T00:00:00Z", r.Date)

	r, err = NormalizeReview(map[string]any{
		"review_id": "rev-2",
		"date":      "hace 2 meses",
	}, "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "hace 2 meses", r.Date)
}

func TestNormalizeReviewPhotosNeverMergedWithImages(t *testing.T) {
	r, err := NormalizeReview(map[string]any{
		"review_id": "rev-1",
		"photos":    []any{"https://img.example/p1.jpg"},
		"images":    []any{"https://img.example/i1.jpg", "https://img.example/i2.jpg"},
	}, "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img.example/p1.jpg"}, r.Images)

	r, err = NormalizeReview(map[string]any{
		"review_id": "rev-2",
		"photos":    []any{},
		"images":    []any{"https://img.example/i1.jpg"},
	}, "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img.example/i1.jpg"}, r.Images)
}

func TestNormalizeReviewIDFallbackAndSkip(t *testing.T) {
	r, err := NormalizeReview(map[string]any{"id": "alt-id"}, "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "alt-id", r.ReviewID)

	_, err = NormalizeReview(map[string]any{"text": "orphan"}, "d1", "p1")
	assert.ErrorIs(t, err, ErrSkipRecord)
}

func TestNormalizeReviewDefaults(t *testing.T) {
	r, err := NormalizeReview(map[string]any{"review_id": "rev-1"}, "d1", "p1")
	require.NoError(t, err)

	assert.Equal(t, "d1", r.DataID)
	assert.Equal(t, "p1", r.GooglePlaceID)
	assert.Equal(t, "Google", r.Source)
	assert.False(t, r.NormalizedAt.IsZero())
}

func TestNormalizeReviewAcceptsBSONTypes(t *testing.T) {
	// The re-normalization sweep feeds raw payloads read back from the
	// store, where objects and arrays decode as bson.M and primitive.A.
	raw := bson.M{
		"review_id": "rev-1",
		"user":      bson.M{"name": "Diana"},
		"photos":    primitive.A{"https://img.example/p1.jpg"},
	}

	r, err := NormalizeReview(raw, "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "Diana", r.Author)
	assert.Equal(t, []string{"https://img.example/p1.jpg"}, r.Images)
}

func TestExtractImageURLForms(t *testing.T) {
	urls := extractImageURLs([]any{
		"https://a.example/1.jpg",
		map[string]any{"url": "https://a.example/2.jpg"},
		map[string]any{"source": "https://a.example/3.jpg"},
		map[string]any{"image": "https://a.example/4.jpg"},
		map[string]any{"thumbnail": "ignored"},
		42,
		"",
	})
	assert.Equal(t, []string{
		"https://a.example/1.jpg",
		"https://a.example/2.jpg",
		"https://a.example/3.jpg",
		"https://a.example/4.jpg",
	}, urls)
}

func TestReviewKeyRequiresBothParts(t *testing.T) {
	key, err := ReviewKey("rev-1", "d1")
	require.NoError(t, err)
	assert.Equal(t, bson.M{"review_id": "rev-1", "data_id": "d1"}, key)

	_, err = ReviewKey("", "d1")
	assert.Error(t, err)
	_, err = ReviewKey("rev-1", "")
	assert.Error(t, err)
}
