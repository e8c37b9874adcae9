// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/kerbwatch/kerbwatch/internal/broadcast"
	"github.com/kerbwatch/kerbwatch/internal/config"
	"github.com/kerbwatch/kerbwatch/internal/dedup"
	"github.com/kerbwatch/kerbwatch/internal/logging"
	"github.com/kerbwatch/kerbwatch/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// fakeStore serves canned listings and a switchable ping result.
type fakeStore struct {
	events  []models.Occurrence
	listErr error
	pingErr error
	// gotCutoff records the cutoff passed to ListSince.
	gotCutoff time.Time
}

func (s *fakeStore) ListSince(_ context.Context, cutoff time.Time) ([]models.Occurrence, error) {
	s.gotCutoff = cutoff
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.events, nil
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

// fakeIngester resolves every report against a single in-memory record so
// the new/update flow is observable without a database.
type fakeIngester struct {
	existing *models.Occurrence
	err      error
}

func (f *fakeIngester) Ingest(_ context.Context, report dedup.Report) (*models.EventResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	keys := dedup.Derive(report.Lat, report.Lon, report.Type, report.Timestamp)
	occ, kind := dedup.Resolve(f.existing, report, keys)
	f.existing = &occ
	return &models.EventResult{Kind: string(kind), Event: occ}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		API: config.APIConfig{
			DefaultSinceHours: 24,
			MaxSinceHours:     168,
		},
	}
}

func newTestHandler(store *fakeStore, ingester *fakeIngester) *Handler {
	return NewHandler(store, ingester, broadcast.NewHub(4), testConfig())
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v\n%s", err, rec.Body.String())
	}
	return resp
}

const validBody = `{
	"type": "fallen_pm",
	"source_id": "bus-1",
	"lat": 37.5665,
	"lon": 126.978,
	"confidence": 0.8,
	"timestamp": "2026-05-02T10:00:00Z"
}`

func TestIngestEvent_NewThenUpdate(t *testing.T) {
	h := newTestHandler(&fakeStore{}, &fakeIngester{})

	rec := httptest.NewRecorder()
	h.IngestEvent(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(validBody)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("first status = %d, want 201\n%s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	data, _ := resp.Data.(map[string]interface{})
	if data["kind"] != "new" {
		t.Errorf("first kind = %v, want new", data["kind"])
	}

	second := strings.Replace(validBody, "10:00:00Z", "10:01:00Z", 1)
	rec = httptest.NewRecorder()
	h.IngestEvent(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(second)))

	if rec.Code != http.StatusOK {
		t.Fatalf("second status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}
	resp = decodeResponse(t, rec)
	data, _ = resp.Data.(map[string]interface{})
	if data["kind"] != "update" {
		t.Errorf("second kind = %v, want update", data["kind"])
	}
	event, _ := data["event"].(map[string]interface{})
	if event["occurrence_count"] != float64(2) {
		t.Errorf("occurrence_count = %v, want 2", event["occurrence_count"])
	}
}

func TestIngestEvent_BadPayloads(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed json", `{"type": `, "INVALID_JSON"},
		{"missing type", strings.Replace(validBody, `"type": "fallen_pm",`, "", 1), "VALIDATION_ERROR"},
		{"missing source id", strings.Replace(validBody, `"source_id": "bus-1",`, "", 1), "VALIDATION_ERROR"},
		{"latitude out of range", strings.Replace(validBody, "37.5665", "95.0", 1), "VALIDATION_ERROR"},
		{"longitude out of range", strings.Replace(validBody, "126.978", "200.0", 1), "VALIDATION_ERROR"},
		{"confidence above one", strings.Replace(validBody, "0.8", "1.8", 1), "VALIDATION_ERROR"},
		{"malformed timestamp", strings.Replace(validBody, "2026-05-02T10:00:00Z", "yesterday", 1), "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&fakeStore{}, &fakeIngester{})
			rec := httptest.NewRecorder()
			h.IngestEvent(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(tt.body)))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400\n%s", rec.Code, rec.Body.String())
			}
			resp := decodeResponse(t, rec)
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestIngestEvent_PipelineError(t *testing.T) {
	h := newTestHandler(&fakeStore{}, &fakeIngester{err: context.DeadlineExceeded})

	rec := httptest.NewRecorder()
	h.IngestEvent(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(validBody)))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestListEvents_HoursClamping(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantHours int
	}{
		{"default when omitted", "", 24},
		{"explicit value", "?hours=48", 48},
		{"clamped to max", "?hours=10000", 168},
		{"clamped to min", "?hours=0", 1},
		{"negative clamped to min", "?hours=-5", 1},
		{"non-numeric falls back to default", "?hours=abc", 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			h := newTestHandler(store, &fakeIngester{})

			before := time.Now().UTC()
			rec := httptest.NewRecorder()
			h.ListEvents(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events"+tt.query, nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			resp := decodeResponse(t, rec)
			data, _ := resp.Data.(map[string]interface{})
			if data["hours"] != float64(tt.wantHours) {
				t.Errorf("hours = %v, want %d", data["hours"], tt.wantHours)
			}

			wantCutoff := before.Add(-time.Duration(tt.wantHours) * time.Hour)
			if diff := store.gotCutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
				t.Errorf("cutoff = %v, want about %v", store.gotCutoff, wantCutoff)
			}
		})
	}
}

func TestListEvents_ReturnsStoredEvents(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{events: []models.Occurrence{
		{ID: uuid.New(), Type: "fallen_pm", SourceID: "bus-1", LastSeenAt: now, OccurrenceCount: 3},
		{ID: uuid.New(), Type: "pothole", SourceID: "bus-2", LastSeenAt: now.Add(-time.Hour), OccurrenceCount: 1},
	}}
	h := newTestHandler(store, &fakeIngester{})

	rec := httptest.NewRecorder()
	h.ListEvents(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))

	resp := decodeResponse(t, rec)
	data, _ := resp.Data.(map[string]interface{})
	if data["total"] != float64(2) {
		t.Errorf("total = %v, want 2", data["total"])
	}
	events, _ := data["events"].([]interface{})
	if len(events) != 2 {
		t.Fatalf("events length = %d, want 2", len(events))
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Run("ready when database answers", func(t *testing.T) {
		h := newTestHandler(&fakeStore{}, &fakeIngester{})
		rec := httptest.NewRecorder()
		h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("not ready when database fails", func(t *testing.T) {
		h := newTestHandler(&fakeStore{pingErr: context.DeadlineExceeded}, &fakeIngester{})
		rec := httptest.NewRecorder()
		h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("live never checks dependencies", func(t *testing.T) {
		h := newTestHandler(&fakeStore{pingErr: context.DeadlineExceeded}, &fakeIngester{})
		rec := httptest.NewRecorder()
		h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("full health report", func(t *testing.T) {
		h := newTestHandler(&fakeStore{}, &fakeIngester{})
		rec := httptest.NewRecorder()
		h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		resp := decodeResponse(t, rec)
		data, _ := resp.Data.(map[string]interface{})
		if data["database_connected"] != true {
			t.Errorf("database_connected = %v, want true", data["database_connected"])
		}
	})
}

func TestRouterWiring(t *testing.T) {
	store := &fakeStore{}
	h := newTestHandler(store, &fakeIngester{})
	mw := NewChiMiddleware(&ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{"*"},
		RateLimitRequests:  1000,
		RateLimitWindow:    time.Minute,
	})
	srv := httptest.NewServer(NewRouter(h, mw).Setup())
	defer srv.Close()

	tests := []struct {
		method, path string
		body         string
		wantStatus   int
	}{
		{http.MethodGet, "/api/v1/health/live", "", http.StatusOK},
		{http.MethodGet, "/api/v1/health/ready", "", http.StatusOK},
		{http.MethodGet, "/api/v1/events", "", http.StatusOK},
		{http.MethodPost, "/api/v1/events", validBody, http.StatusCreated},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/api/v1/does-not-exist", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			var req *http.Request
			var err error
			if tt.body != "" {
				req, err = http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			} else {
				req, err = http.NewRequest(tt.method, srv.URL+tt.path, nil)
			}
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestStreamEvents_SSEFraming(t *testing.T) {
	store := &fakeStore{}
	hub := broadcast.NewHub(4)
	h := &Handler{store: store, ingester: &fakeIngester{}, hub: hub, cfg: testConfig(), startTime: time.Now()}

	srv := httptest.NewServer(http.HandlerFunc(h.StreamEvents))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", got)
	}

	// Give the handler time to subscribe before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.SubscriberCount() == 0 {
		t.Fatal("stream handler never subscribed")
	}

	hub.Publish(broadcast.Message{
		Kind:  "new",
		Event: models.Occurrence{ID: uuid.New(), Type: "fallen_pm", SourceID: "bus-1", OccurrenceCount: 1},
	})

	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	frame := string(buf[:n])
	if !strings.HasPrefix(frame, "data: ") || !strings.HasSuffix(frame, "\n\n") {
		t.Errorf("frame %q is not SSE-framed", frame)
	}
	if !strings.Contains(frame, `"kind":"new"`) {
		t.Errorf("frame %q missing event payload", frame)
	}
}
