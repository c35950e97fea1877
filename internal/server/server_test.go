package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/chronomaps/internal/config"
	"github.com/joeblew999/chronomaps/internal/content"
	"github.com/joeblew999/chronomaps/internal/service"
)

type fixedSource struct {
	mu   sync.Mutex
	snap content.Snapshot
	n    int
}

func (f *fixedSource) Fetch(context.Context) (content.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	snap := f.snap
	snap.FetchedAt = time.Unix(int64(f.n), 0)
	return snap, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	src := &fixedSource{snap: content.Snapshot{
		Settings: content.Settings{Title: "Harbour", MapboxKey: "secret"},
		Items: []*content.ContentItem{
			{ID: 1, Title: "Pier", Type: content.MediaImage, Status: content.StatusPublished,
				PostTimestamp: time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC), Geo: "#12/51.5/-0.1"},
			{ID: 2, Title: "Crane", Type: content.MediaNote, Status: content.StatusPublished,
				PostTimestamp: time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC), Geo: "#12/51.6/-0.2"},
		},
	}}
	srv := New(Config{
		Host:     "localhost",
		Port:     "0",
		DataDir:  t.TempDir(),
		Tunables: config.Default(),
		NoCache:  true,
		Source:   func(service.Chronomap) content.Source { return src },
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})

	resp := do(t, ts, http.MethodPost, "/api/v1/chronomaps", `{"title":"Harbour","databaseId":7,"databaseToken":"tok"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body(t, resp))
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, payload string) *http.Response {
	t.Helper()
	var r io.Reader
	if payload != "" {
		r = strings.NewReader(payload)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	require.NoError(t, err)
	if payload != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestHealthAndInfo(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), `"status":"ok"`)

	resp = do(t, ts, http.MethodGet, "/api/v1/info", "")
	var info struct {
		Name       string `json:"name"`
		Chronomaps int    `json:"chronomaps"`
		Cache      bool   `json:"cache"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "chronomaps", info.Name)
	assert.Equal(t, 1, info.Chronomaps)
	assert.False(t, info.Cache)

	resp = do(t, ts, http.MethodGet, "/api/v1/cache", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestChronomapHidesTokenAndLinksActions(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodGet, "/api/v1/chronomaps/harbour", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	text := body(t, resp)
	assert.NotContains(t, text, "tok")
	assert.Contains(t, text, `"databaseId":7`)

	links := strings.Join(resp.Header.Values("Link"), ",")
	assert.Contains(t, links, `rel="refresh"`)
	assert.Contains(t, links, `rel="self"`)

	resp = do(t, ts, http.MethodPost, "/api/v1/chronomaps", `{"title":"Harbour","databaseId":7}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = do(t, ts, http.MethodGet, "/api/v1/chronomaps/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestContentRoutes(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodGet, "/api/v1/chronomaps/harbour/items?limit=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page struct {
		Data  []content.ContentItem `json:"data"`
		Total int                   `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Data, 1)
	assert.Contains(t, strings.Join(resp.Header.Values("Link"), ","), `rel="next"`)

	resp = do(t, ts, http.MethodGet, "/api/v1/chronomaps/harbour/settings", "")
	assert.NotContains(t, body(t, resp), "secret")

	resp = do(t, ts, http.MethodGet, "/api/v1/chronomaps/harbour/markers.geojson", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))
	assert.Contains(t, body(t, resp), `"FeatureCollection"`)

	resp = do(t, ts, http.MethodGet, "/api/v1/chronomaps/harbour/markers.pmtiles", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(body(t, resp), "PMTiles"))
}

func TestGeoCodec(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodGet, "/api/v1/geo/decode?view=%2312%2F51.5%2F-0.1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var decoded struct {
		Valid  bool `json:"valid"`
		Camera struct {
			Zoom float64 `json:"zoom"`
		} `json:"camera"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.True(t, decoded.Valid)
	assert.Equal(t, 12.0, decoded.Camera.Zoom)

	resp = do(t, ts, http.MethodPost, "/api/v1/geo/encode", `{"zoom":3,"lat":10,"lon":20}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), "#3/10/20")
}

func TestViewLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/api/v1/chronomaps/harbour/views", `{"desktop":true,"width":800}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var created struct {
		ID     string `json:"id"`
		Events string `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.ID)

	resp = do(t, ts, http.MethodPost, created.Events, `{"type":"map"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = do(t, ts, http.MethodPost, created.Events, `{"type":"resize","width":640}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, ts, http.MethodDelete, "/api/v1/views/"+created.ID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, ts, http.MethodPost, created.Events, `{"type":"resize"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPageStreamsView(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodGet, "/c/harbour", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	html := body(t, resp)
	assert.Contains(t, html, "<title>Harbour</title>")
	i := strings.Index(html, "/api/v1/views/")
	require.Positive(t, i)
	id := html[i+len("/api/v1/views/"):]
	id = id[:strings.Index(id, "/")]

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/views/"+id+"/stream", nil)
	require.NoError(t, err)
	stream, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	sc := bufio.NewScanner(stream.Body)
	var events int
	for sc.Scan() && events < 3 {
		if strings.HasPrefix(sc.Text(), "event: datastar-") {
			events++
		}
	}
	assert.Equal(t, 3, events)

	resp = do(t, ts, http.MethodGet, "/c/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStaticAssets(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodGet, "/static/chronomap.js", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	js := body(t, resp)
	assert.Contains(t, js, "chronomap-map")
	assert.Contains(t, js, "{ mirror: true }")
	assert.Contains(t, js, `type: "activate"`)
	assert.Contains(t, js, `e.target.id === "strip") post({ type: "scrollend" })`)
	assert.NotContains(t, js, `querySelector(".content")`)
}

func TestOpenAPIRegistersEventSchemas(t *testing.T) {
	srv := New(Config{Host: "localhost", Port: "0", DataDir: t.TempDir(), Tunables: config.Default(), NoCache: true})
	t.Cleanup(func() { srv.Close() })

	schemas := srv.OpenAPI().Components.Schemas.Map()
	assert.Contains(t, schemas, "Event")
	assert.Contains(t, schemas, "MapEvent")
}
