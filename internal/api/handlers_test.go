package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/plantdata-gw/internal/analysis"
	"github.com/mattjoyce/plantdata-gw/internal/auth"
	"github.com/mattjoyce/plantdata-gw/internal/events"
	"github.com/mattjoyce/plantdata-gw/internal/inspection"
	"github.com/mattjoyce/plantdata-gw/internal/metrics"
	"github.com/mattjoyce/plantdata-gw/internal/storage"
)

const adminKey = "admin-key"

type fixture struct {
	srv      *httptest.Server
	records  *inspection.Store
	mappings *analysis.Store
	resolver *analysis.Resolver
	bus      *events.Bus
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		records:  inspection.NewStore(db),
		mappings: analysis.NewStore(db),
		bus:      events.NewBus(16),
		metrics:  metrics.New(),
	}
	f.resolver, err = analysis.NewResolver(nil)
	require.NoError(t, err)

	cfg := Config{
		Listen: "127.0.0.1:0",
		APIKey: adminKey,
		Tokens: []auth.TokenConfig{
			{Token: "reader", Scopes: []string{"inspections:ro"}},
			{Token: "watcher", Scopes: []string{"events:ro", "mappings:ro"}},
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(cfg, f.records, f.mappings, f.resolver, f.bus, f.metrics, logger)
	require.NoError(t, err)
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	sub, err := f.bus.SubscribeExclusive(inspection.TopicResult)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	resp := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	h := decode[HealthzResponse](t, resp)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 1, h.Consumers[inspection.TopicResult])
	assert.Equal(t, 0, h.Consumers[inspection.TopicValue])
}

func TestGetInspection(t *testing.T) {
	f := newFixture(t)
	_, err := f.records.Create(context.Background(), inspection.ResultEvent{
		InspectionID: "I1",
		TagID:        "313-LI-1234",
		Description:  "oil level",
	})
	require.NoError(t, err)

	resp := f.do(t, http.MethodGet, "/inspections/I1", "reader")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rec := decode[inspection.Record](t, resp)
	assert.Equal(t, "I1", rec.InspectionID)
	assert.Equal(t, "313-LI-1234", rec.TagID)
	assert.NotEmpty(t, rec.ID)

	resp = f.do(t, http.MethodGet, "/inspections/missing", "reader")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListInspections(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"I1", "I2", "I3"} {
		_, err := f.records.Create(context.Background(), inspection.ResultEvent{InspectionID: id, TagID: "T1"})
		require.NoError(t, err)
	}

	resp := f.do(t, http.MethodGet, "/inspections?limit=2", adminKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[InspectionListResponse](t, resp)
	assert.Equal(t, 2, list.Count)

	resp = f.do(t, http.MethodGet, "/inspections?limit=zero", adminKey)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListInspectionsEmpty(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/inspections", adminKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"inspections":[],"count":0}`, string(body))
}

func TestMappingsListAndReload(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mappings.Seed(context.Background(), []analysis.Rule{
		{Tag: "313-LI-1234", Analyses: []analysis.Type{analysis.ConstantLevelOiler}},
	}))

	resp := f.do(t, http.MethodGet, "/mappings", "watcher")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[MappingListResponse](t, resp)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, 0, list.Active, "live table not reloaded yet")

	resp = f.do(t, http.MethodPost, "/mappings/reload", "watcher")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "reload needs mappings:rw")

	resp = f.do(t, http.MethodPost, "/mappings/reload", adminKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[ReloadResponse](t, resp).Loaded)
	assert.True(t, f.resolver.Resolve("313-li-1234", "").Contains(analysis.ConstantLevelOiler))
}

func TestAuthRejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"no token", "/inspections", "", http.StatusUnauthorized},
		{"unknown token", "/inspections", "nope", http.StatusUnauthorized},
		{"missing scope", "/mappings", "reader", http.StatusForbidden},
		{"missing events scope", "/events", "reader", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodGet, tt.path, tt.token)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestReloadNeedsWriteAccess(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/mappings/reload", "watcher")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "mappings:ro must not reload")
}

func TestNewRejectsUnknownScope(t *testing.T) {
	cfg := Config{Tokens: []auth.TokenConfig{{Token: "t", Scopes: []string{"jobs:ro"}}}}
	_, err := New(cfg, nil, nil, nil, events.NewBus(1), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.ErrorIs(t, err, auth.ErrUnknownScope)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.metrics.RecordCreated()

	resp := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "plantdata_records_created_total 1")
}

func TestOpenAPI(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/openapi.json", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	doc := decode[map[string]any](t, resp)
	assert.Equal(t, "3.1.0", doc["openapi"])
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	for _, p := range []string{"/healthz", "/inspections/{inspectionID}", "/mappings/reload", "/events"} {
		assert.Contains(t, paths, p)
	}
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Buffered before the client connects.
	_, err := f.bus.Publish(ctx, inspection.TopicResult, []byte(`{"inspection_id":"I1","tag_id":"T1"}`))
	require.NoError(t, err)

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, f.srv.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer watcher")
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 32)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	expect := func(want string) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed before %q", want)
				}
				if line == want {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %q", want)
			}
		}
	}

	expect("id: 1")
	expect("event: " + inspection.TopicResult)
	expect(`data: {"inspection_id":"I1","tag_id":"T1"}`)

	require.Eventually(t, func() bool { return f.bus.Subscribers(inspection.TopicValue) == 1 }, 5*time.Second, 10*time.Millisecond)
	_, err = f.bus.Publish(ctx, inspection.TopicValue, []byte("{\n\"inspection_id\":\"I3\"\n}"))
	require.NoError(t, err)

	expect("id: 2")
	expect("event: " + inspection.TopicValue)
	expect("data: {")
	expect(`data: "inspection_id":"I3"`)
	expect("data: }")
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, int64(0), parseLastEventID(""))
	assert.Equal(t, int64(0), parseLastEventID("-4"))
	assert.Equal(t, int64(0), parseLastEventID("x"))
	assert.Equal(t, int64(42), parseLastEventID("42"))
}

func TestReloadKeepsTableOnError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.resolver.Replace([]analysis.Rule{{Tag: "T1", Analyses: []analysis.Type{analysis.Fencilla}}}))

	s, err := New(Config{APIKey: adminKey}, f.records, failingSource{}, f.resolver, f.bus, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/mappings/reload", nil)
	req.Header.Set("Authorization", "Bearer "+adminKey)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 1, f.resolver.Len())
	assert.False(t, strings.Contains(resp.Header.Get("Content-Type"), "event-stream"))
}

type failingSource struct{}

func (failingSource) List(context.Context) ([]analysis.Rule, error) {
	return nil, errors.New("disk gone")
}
