package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/eventform/internal/activity"
	"github.com/matthewbaird/eventform/internal/config"
	"github.com/matthewbaird/eventform/internal/dataset"
	"github.com/matthewbaird/eventform/internal/form"
	"github.com/matthewbaird/eventform/internal/loader"
	"github.com/matthewbaird/eventform/internal/session"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	fallbacks := map[loader.Resource][]string{}
	for _, r := range loader.Resources {
		path, err := filepath.Abs(filepath.Join("..", "dataset", "testdata", string(r)+".json"))
		require.NoError(t, err)
		fallbacks[r] = []string{path}
	}
	metrics := loader.NewMetrics("eventform")
	l := loader.New(loader.Options{
		Sources:      loader.Sources{Fallbacks: fallbacks},
		CacheEnabled: true,
		Fetcher:      loader.NewHTTPFetcher(time.Second),
		Metrics:      metrics,
		Logger:       zerolog.Nop(),
	})
	cfg := config.Default()
	catalog := dataset.NewCatalog(l, cfg.Form.LevelLabels)
	journal := activity.NewMemoryStore(0)
	sessions := session.NewManager(func(_ context.Context, id string) (*form.Form, error) {
		return form.New(id, cfg.Form, form.Deps{Catalog: catalog, Journal: journal, Logger: zerolog.Nop()})
	}, time.Hour, time.Hour, zerolog.Nop())

	srv := httptest.NewServer(NewRouter(Config{
		Sessions: sessions,
		Journal:  journal,
		Catalog:  catalog,
		Loader:   l,
		Metrics:  metrics,
		Logger:   zerolog.Nop(),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func createForm(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := do(t, http.MethodPost, srv.URL+"/v1/forms", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created struct {
		SessionID string    `json:"session_id"`
		View      form.View `json:"view"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, created.SessionID, created.View.ID)
	return created.SessionID
}

func fieldValue(t *testing.T, v form.View, key string) string {
	t.Helper()
	for _, f := range v.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	t.Fatalf("field %s not in view", key)
	return ""
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, body := do(t, http.MethodGet, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestFormLifecycle(t *testing.T) {
	srv := newTestServer(t)
	id := createForm(t, srv)
	base := srv.URL + "/v1/forms/" + id

	resp, body := do(t, http.MethodPut, base+"/fields/department", map[string]string{"value": "91"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var view form.View
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, "91001", fieldValue(t, view, "city"))

	resp, body = do(t, http.MethodGet, base+"/fields/department/options", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"Bogotá D.C."`)

	resp, body = do(t, http.MethodPost, base+"/fields/email/touch", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"touched":true`)

	resp, body = do(t, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), `"VALIDATION_FAILED"`)

	resp, body = do(t, http.MethodGet, base+"/activity?field=city&limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var feed struct {
		Activities []activity.Entry `json:"activities"`
		TotalCount int              `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &feed))
	assert.NotEmpty(t, feed.Activities)
	for _, e := range feed.Activities {
		assert.Equal(t, "city", e.FieldKey)
	}

	resp, body = do(t, http.MethodGet, base+"/activity/summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"by_weight"`)
	assert.Contains(t, string(body), `"first_name"`, "the failed submission surfaced errors")

	resp, _ = do(t, http.MethodPost, base+"/reset", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFormErrors(t *testing.T) {
	srv := newTestServer(t)
	id := createForm(t, srv)
	base := srv.URL + "/v1/forms/" + id

	resp, body := do(t, http.MethodPut, base+"/fields/nickname", map[string]string{"value": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), "UNKNOWN_FIELD")

	do(t, http.MethodPut, base+"/fields/department", map[string]string{"value": "91"})
	resp, body = do(t, http.MethodPut, base+"/fields/city", map[string]string{"value": "05001"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "FIELD_DISABLED")

	req, err := http.NewRequest(http.MethodPut, base+"/fields/email", bytes.NewBufferString("{"))
	require.NoError(t, err)
	r, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/forms/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDatasets(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/v1/datasets/locations?parent=COL&parent=05", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"Medellín"`)

	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/datasets/weather", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/datasets/periods", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/v1/datasets/prefixes/sources", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "prefixes.json")

	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/datasets/cache?resource=locations", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/datasets/cache", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "eventform_dataset_fetches_total")
	assert.Contains(t, string(body), "eventform_sessions_live")
}
