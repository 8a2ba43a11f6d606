package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/plantdata-gw/internal/events"
	"github.com/mattjoyce/plantdata-gw/internal/inspection"
	"github.com/mattjoyce/plantdata-gw/internal/metrics"
)

const testSecret = "test-secret"

type publishFunc func(ctx context.Context, topic string, data []byte) (int64, error)

func (f publishFunc) Publish(ctx context.Context, topic string, data []byte) (int64, error) {
	return f(ctx, topic, data)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		Listen: "127.0.0.1:0",
		Endpoints: []EndpointConfig{
			{Path: "/isar/result", Topic: inspection.TopicResult, Secret: testSecret},
			{Path: "/isar/value", Topic: inspection.TopicValue, Secret: testSecret, MaxBodySize: 256},
		},
	}
}

func post(t *testing.T, srv *httptest.Server, path string, body []byte, signature string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if signature != "" {
		req.Header.Set(DefaultSignatureHeader, signature)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestWebhookPublishesOnBus(t *testing.T) {
	bus := events.NewBus(16)
	sub, err := bus.SubscribeExclusive(inspection.TopicResult)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	srv := httptest.NewServer(New(testConfig(), bus, quietLogger(), nil).Handler())
	defer srv.Close()

	body := []byte(`{"inspection_id":"I1","tag_id":"313-LI-1234","inspection_description":"oil level"}`)
	type result struct {
		resp *http.Response
		err  error
	}
	respCh := make(chan result, 1)
	go func() {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/isar/result", bytes.NewReader(body))
		req.Header.Set(DefaultSignatureHeader, Sign(body, testSecret))
		resp, err := srv.Client().Do(req)
		respCh <- result{resp, err}
	}()

	select {
	case ev := <-sub.C:
		if ev.Topic != inspection.TopicResult {
			t.Errorf("topic = %q", ev.Topic)
		}
		if string(ev.Data) != string(body) {
			t.Errorf("data = %s, want %s", ev.Data, body)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event not published")
	}

	r := <-respCh
	if r.err != nil {
		t.Fatal(r.err)
	}
	resp := r.resp
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var tr TriggerResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if tr.InspectionID != "I1" || tr.EventID != 1 {
		t.Errorf("response = %+v, want inspection I1 event 1", tr)
	}
}

func TestWebhookRejections(t *testing.T) {
	published := 0
	pub := publishFunc(func(ctx context.Context, topic string, data []byte) (int64, error) {
		published++
		return int64(published), nil
	})
	m := metrics.New()
	srv := httptest.NewServer(New(testConfig(), pub, quietLogger(), m).Handler())
	defer srv.Close()

	valid := []byte(`{"inspection_id":"I1","tag_id":"T1"}`)
	noTag := []byte(`{"inspection_id":"I1"}`)
	big := []byte(`{"inspection_id":"I3","values":[{"channel":"` + strings.Repeat("x", 300) + `","value":1}]}`)

	tests := []struct {
		name      string
		path      string
		body      []byte
		signature string
		want      int
	}{
		{"missing signature", "/isar/result", valid, "", http.StatusForbidden},
		{"bad signature", "/isar/result", valid, Sign(valid, "wrong"), http.StatusForbidden},
		{"invalid payload", "/isar/result", noTag, Sign(noTag, testSecret), http.StatusBadRequest},
		{"value posted to result endpoint", "/isar/value", valid, Sign(valid, testSecret), http.StatusBadRequest},
		{"body too large", "/isar/value", big, Sign(big, testSecret), http.StatusRequestEntityTooLarge},
		{"unknown path", "/isar/other", valid, Sign(valid, testSecret), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv, tt.path, tt.body, tt.signature)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	if published != 0 {
		t.Errorf("published %d events, want 0", published)
	}
	if got := failureCount(t, m, metrics.StageIngest); got != 2 {
		t.Errorf("ingest failures = %v, want 2", got)
	}
}

func TestWebhookPublishFailure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"bus busy", context.DeadlineExceeded, "event bus busy"},
		{"bus error", errors.New("closed"), "event bus unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := publishFunc(func(ctx context.Context, topic string, data []byte) (int64, error) {
				return 0, tt.err
			})
			srv := httptest.NewServer(New(testConfig(), pub, quietLogger(), nil).Handler())
			defer srv.Close()

			body := []byte(`{"inspection_id":"I3","values":[{"channel":"temp","value":42}]}`)
			resp := post(t, srv, "/isar/value", body, Sign(body, testSecret))
			if resp.StatusCode != http.StatusServiceUnavailable {
				t.Fatalf("status = %d, want 503", resp.StatusCode)
			}
			var er ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
				t.Fatal(err)
			}
			if er.Error != tt.message {
				t.Errorf("error = %q, want %q", er.Error, tt.message)
			}
		})
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	s := New(testConfig(), publishFunc(func(context.Context, string, []byte) (int64, error) { return 0, nil }), quietLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Start() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}

func failureCount(t *testing.T, m *metrics.Metrics, stage string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != "plantdata_failures_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "stage" && label.GetValue() == stage {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
