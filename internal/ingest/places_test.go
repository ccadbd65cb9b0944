package ingest

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/tattler-mx/tattler-go/internal/datastore/memstore"
	"github.com/tattler-mx/tattler-go/internal/model"
	"github.com/tattler-mx/tattler-go/internal/pipeline"
	"github.com/tattler-mx/tattler-go/internal/serpapi"
)

func newMockedClient(t *testing.T) (*serpapi.Client, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()

	cfg := serpapi.DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.Timeout = 2 * time.Second
	cfg.Transport = transport

	client, err := serpapi.NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, transport
}

func placesPage(results []map[string]any, nextToken string) map[string]any {
	page := map[string]any{"local_results": results}
	if nextToken != "" {
		page["serpapi_pagination"] = map[string]any{"next_page_token": nextToken}
	}
	return page
}

func TestDownloadPlacesFollowsPagination(t *testing.T) {
	client, transport := newMockedClient(t)
	rawDir := t.TempDir()

	transport.RegisterResponder(http.MethodGet, "https://serpapi.com/search.json",
		func(req *http.Request) (*http.Response, error) {
			if req.URL.Query().Get("next_page_token") == "token-2" {
				return httpmock.NewJsonResponse(http.StatusOK, placesPage(
					[]map[string]any{{"place_id": "p3", "title": "Tercero"}}, ""))
			}
			return httpmock.NewJsonResponse(http.StatusOK, placesPage(
				[]map[string]any{
					{"place_id": "p1", "title": "Primero"},
					{"place_id": "p2", "title": "Segundo"},
				}, "token-2"))
		})

	summary, err := DownloadPlaces(context.Background(), client, DownloadOptions{
		RawDir:  rawDir,
		Queries: []string{"restaurante"},
		Cities:  []string{"Monterrey"},
		Budget:  pipeline.NewRequestBudget(10),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 2, transport.GetTotalCallCount())

	for _, name := range []string{"google_Monterrey_page1.json", "google_Monterrey_page2.json"} {
		_, err := os.Stat(filepath.Join(rawDir, name))
		assert.NoError(t, err, "capture file %s", name)
	}
}

func TestDownloadPlacesStopsOnBudget(t *testing.T) {
	client, transport := newMockedClient(t)
	rawDir := t.TempDir()

	transport.RegisterResponder(http.MethodGet, "https://serpapi.com/search.json",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, placesPage(
			[]map[string]any{{"place_id": "p1"}}, "always-more")))

	budget := pipeline.NewRequestBudget(2)
	summary, err := DownloadPlaces(context.Background(), client, DownloadOptions{
		RawDir:  rawDir,
		Queries: []string{"restaurante"},
		Cities:  []string{"Monterrey", "Apodaca"},
		Budget:  budget,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, transport.GetTotalCallCount(), "the ceiling is a hard stop")
	assert.Equal(t, 2, budget.Used())
	assert.Equal(t, 2, summary.Processed)
}

func TestDownloadPlacesStopsOnMaxTotal(t *testing.T) {
	client, transport := newMockedClient(t)

	transport.RegisterResponder(http.MethodGet, "https://serpapi.com/search.json",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, placesPage(
			[]map[string]any{{"place_id": "p1"}, {"place_id": "p2"}}, "always-more")))

	summary, err := DownloadPlaces(context.Background(), client, DownloadOptions{
		RawDir:   t.TempDir(),
		Queries:  []string{"restaurante"},
		Cities:   []string{"Monterrey", "Apodaca"},
		MaxTotal: 3,
	})
	require.NoError(t, err)

	// Two results per page; the ceiling of three is crossed on page two.
	assert.Equal(t, 4, summary.Processed)
	assert.Equal(t, 2, transport.GetTotalCallCount())
}

func TestImportPlacesDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "google_Monterrey_page1.json"), []byte(`{
		"local_results": [
			{"place_id": "p1", "data_id": "d1", "title": "El Primero",
			 "gps_coordinates": {"latitude": 25.68, "longitude": -100.31}},
			{"title": "Sin place_id"}
		]
	}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy_results.json"), []byte(`{
		"results": [{"place_id": "p2", "title": "El Segundo"}]
	}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	store := memstore.New()
	summary, err := ImportPlacesDir(context.Background(), store, dir)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Inserted)
	assert.Equal(t, 2, summary.Skipped, "broken file and keyless entry")

	doc, err := store.FindOne(context.Background(), model.CollMapsRestaurants, bson.M{"google_place_id": "p1"})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "d1", doc["data_id"])
	assert.Equal(t, "El Primero", doc["name"])
	assert.NotNil(t, doc["raw_google_data"])
	assert.Equal(t, false, doc["deleted"])
}

func TestImportPlacesDirRerunKeepsOneDocPerPlace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.json"),
		[]byte(`{"local_results": [{"place_id": "p1", "title": "Estable"}]}`), 0o644))

	store := memstore.New()
	ctx := context.Background()

	_, err := ImportPlacesDir(ctx, store, dir)
	require.NoError(t, err)
	second, err := ImportPlacesDir(ctx, store, dir)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)

	count, err := store.Count(ctx, model.CollMapsRestaurants, bson.M{"google_place_id": "p1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
