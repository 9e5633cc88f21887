package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/icetech/icetray/internal/artifact"
	"github.com/icetech/icetray/internal/catalogue"
	"github.com/icetech/icetray/internal/commissioning/sheetimport"
	"github.com/icetech/icetray/internal/icecube"
	"github.com/icetech/icetray/internal/infrastructure/config"
	"github.com/icetech/icetray/internal/infrastructure/database"
	"github.com/icetech/icetray/internal/infrastructure/logging"
	_ "github.com/icetech/icetray/migrations"
)

const rpi1JSON = `{
  "name": "RPi1",
  "signals": [
    {"name": "photoresistor1", "RW": "R", "scanRate": "1 second"},
    {"name": "led1", "RW": "W"}
  ]
}`

// fakePublisher records Publish and Retract calls.
type fakePublisher struct {
	mu        sync.Mutex
	published []string
	retracted []string
	err       error
}

func (p *fakePublisher) Publish(dev *icecube.Device) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, dev.Name())
	return p.err
}

func (p *fakePublisher) Retract(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retracted = append(p.retracted, name)
	return p.err
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type testEnv struct {
	srv       *Server
	handler   http.Handler
	registry  *catalogue.Registry
	writer    *artifact.Writer
	publisher *fakePublisher
}

// newTestEnv creates a Server with a real registry backed by in-memory SQLite
// and an artifact writer rooted in a temp dir.
func newTestEnv(t *testing.T, mutate ...func(*Deps)) *testEnv {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	registry := catalogue.NewRegistry(catalogue.NewSQLiteRepository(db.DB), "")
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	buildCfg := config.Default().Build
	buildCfg.OutputDir = t.TempDir()
	writer := artifact.NewWriter(buildCfg)
	pub := &fakePublisher{}

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		Logger:    logging.Discard(),
		Registry:  registry,
		Writer:    writer,
		Publisher: pub,
		Version:   "test",
	}
	for _, m := range mutate {
		m(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{srv: srv, handler: srv.Handler(), registry: registry, writer: writer, publisher: pub}
}

func (e *testEnv) do(t *testing.T, method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) buildRPi1(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/icecubes", "application/json", strings.NewReader(rpi1JSON))
	if rec.Code != http.StatusCreated {
		t.Fatalf("build status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger: expected error")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without registry: expected error")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.buildRPi1(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp HealthResponse
	decodeBody(t, rec, &resp)
	if resp.Status != "ok" || resp.Version != "test" || resp.IceCubes != 1 {
		t.Errorf("health = %+v", resp)
	}
}

func TestHealth_Degraded(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Health = map[string]HealthChecker{
			"database": healthFunc(func(context.Context) error { return nil }),
			"mqtt":     healthFunc(func(context.Context) error { return errors.New("not connected") }),
		}
	})

	rec := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp HealthResponse
	decodeBody(t, rec, &resp)
	if resp.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", resp.Status)
	}
	if resp.Components["database"] != "ok" || resp.Components["mqtt"] != "not connected" {
		t.Errorf("Components = %v", resp.Components)
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if _, err := uuid.Parse(rec.Header().Get("X-Request-ID")); err != nil {
		t.Errorf("generated X-Request-ID %q is not a UUID: %v", rec.Header().Get("X-Request-ID"), err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-id-1")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-id-1" {
		t.Errorf("X-Request-ID = %q, want client-id-1", got)
	}
}

func TestMetricsMount(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodGet, "/metrics", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("/metrics without handler: status = %d, want 404", rec.Code)
	}

	env = newTestEnv(t, func(d *Deps) {
		d.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("icetray_builds_total 0\n")) //nolint:errcheck // Test handler
		})
	})
	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "icetray_builds_total") {
		t.Errorf("/metrics: status = %d, body = %q", rec.Code, rec.Body.String())
	}
}

func TestBuildIceCube(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/icecubes", "application/json", strings.NewReader(rpi1JSON))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var view IceCubeView
	decodeBody(t, rec, &view)
	if view.Name != "RPi1" || view.ReadCount != 1 || view.WriteCount != 1 {
		t.Errorf("summary = %+v", view.Summary)
	}
	if len(view.Signals) != 2 {
		t.Fatalf("signals = %+v", view.Signals)
	}
	if s := view.Signals[0]; s.Tag != "A" || s.RecordType != "ai" || s.ControlPoint != "photoresistor1" || s.ScanRate != "1 second" {
		t.Errorf("signal 0 = %+v", s)
	}
	if s := view.Signals[1]; s.Tag != "B" || s.RecordType != "ao" || s.ControlPoint != "led1:set" {
		t.Errorf("signal 1 = %+v", s)
	}

	if _, err := env.registry.Get(context.Background(), "RPi1"); err != nil {
		t.Errorf("registry.Get() error = %v", err)
	}
	paths := env.writer.PathsFor("RPi1")
	for _, p := range []string{paths.DB, paths.Proto, paths.Document} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("artifact %s: %v", p, err)
		}
	}
	if len(env.publisher.published) != 1 || env.publisher.published[0] != "RPi1" {
		t.Errorf("published = %v", env.publisher.published)
	}

	builds, err := env.registry.History(context.Background(), "RPi1", 0)
	if err != nil || len(builds) != 1 || builds[0].Source != catalogue.SourceAPI {
		t.Errorf("History() = %+v, %v", builds, err)
	}
}

func TestBuildIceCube_YAML(t *testing.T) {
	env := newTestEnv(t)

	body := "name: RPi2\nsignals:\n  - name: temp1\n    RW: R\n    scanRate: 10 second\n"
	rec := env.do(t, http.MethodPost, "/api/v1/icecubes", "application/yaml", strings.NewReader(body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var view IceCubeView
	decodeBody(t, rec, &view)
	if view.Name != "RPi2" || view.ReadCount != 1 {
		t.Errorf("summary = %+v", view.Summary)
	}
}

func TestBuildIceCube_PublishFailureStillStores(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.err = errors.New("broker down")

	env.buildRPi1(t)
	if env.registry.Count() != 1 {
		t.Errorf("Count() = %d, want 1", env.registry.Count())
	}
}

func TestBuildIceCube_Errors(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantCode    string
	}{
		{
			name:        "malformed json",
			contentType: "application/json",
			body:        `{"name": "RPi1",`,
			wantStatus:  http.StatusBadRequest,
			wantCode:    ErrCodeBadRequest,
		},
		{
			name:        "duplicate signal",
			contentType: "application/json",
			body:        `{"name":"RPi1","signals":[{"name":"led1","RW":"W"},{"name":"led1","RW":"W"}]}`,
			wantStatus:  http.StatusBadRequest,
			wantCode:    ErrCodeValidation,
		},
		{
			name:        "bad direction",
			contentType: "application/json",
			body:        `{"name":"RPi1","signals":[{"name":"led1","RW":"X"}]}`,
			wantStatus:  http.StatusBadRequest,
			wantCode:    ErrCodeValidation,
		},
		{
			name:        "invalid name",
			contentType: "application/json",
			body:        `{"name":"bad name","signals":[]}`,
			wantStatus:  http.StatusBadRequest,
			wantCode:    ErrCodeValidation,
		},
		{
			name:        "too large",
			contentType: "application/json",
			body:        `{"name":"` + strings.Repeat("a", maxRequestBodySize) + `"}`,
			wantStatus:  http.StatusRequestEntityTooLarge,
			wantCode:    ErrCodeTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(t, http.MethodPost, "/api/v1/icecubes", tt.contentType, strings.NewReader(tt.body))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			var apiErr Error
			decodeBody(t, rec, &apiErr)
			if apiErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", apiErr.Code, tt.wantCode)
			}
			if env.registry.Count() != 0 {
				t.Error("rejected cube was stored")
			}
			if len(env.publisher.published) != 0 {
				t.Error("rejected cube was published")
			}
		})
	}
}

func TestValidateIceCube(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/icecubes/validate", "application/json", strings.NewReader(rpi1JSON))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp ValidationResponse
	decodeBody(t, rec, &resp)
	if !resp.Valid || resp.ReadCount != 1 || resp.WriteCount != 1 {
		t.Errorf("resp = %+v", resp)
	}
	if !strings.Contains(resp.DB, "record(ai, photoresistor1) {") {
		t.Errorf("DB = %q", resp.DB)
	}
	if !strings.HasPrefix(resp.Proto, icecube.ProtoHeader) {
		t.Errorf("Proto = %q", resp.Proto)
	}
	if env.registry.Count() != 0 {
		t.Error("validate stored the cube")
	}

	rec = env.do(t, http.MethodPost, "/api/v1/icecubes/validate", "application/json",
		strings.NewReader(`{"name":"RPi1","signals":[{"name":"t","RW":"R"}]}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("invalid doc status = %d", rec.Code)
	}
	resp = ValidationResponse{}
	decodeBody(t, rec, &resp)
	if resp.Valid || resp.Error == "" || resp.Name != "RPi1" {
		t.Errorf("invalid doc resp = %+v", resp)
	}

	builds, err := env.registry.History(context.Background(), "RPi1", 0)
	if err != nil || len(builds) != 0 {
		t.Errorf("validate recorded history: %+v, %v", builds, err)
	}
}

func TestListIceCubes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/icecubes", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		IceCubes []catalogue.Summary `json:"icecubes"`
		Count    int                 `json:"count"`
	}
	decodeBody(t, rec, &resp)
	if resp.Count != 0 || resp.IceCubes == nil {
		t.Errorf("empty list = %+v", resp)
	}

	env.buildRPi1(t)
	rec = env.do(t, http.MethodGet, "/api/v1/icecubes", "", nil)
	decodeBody(t, rec, &resp)
	if resp.Count != 1 || resp.IceCubes[0].Name != "RPi1" {
		t.Errorf("list = %+v", resp)
	}
}

func TestGetIceCube(t *testing.T) {
	env := newTestEnv(t)
	env.buildRPi1(t)

	rec := env.do(t, http.MethodGet, "/api/v1/icecubes/RPi1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var view IceCubeView
	decodeBody(t, rec, &view)
	if view.Document.Name != "RPi1" || len(view.Document.Signals) != 2 {
		t.Errorf("document = %+v", view.Document)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/icecubes/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing cube status = %d, want 404", rec.Code)
	}
}

func TestGetArtifacts(t *testing.T) {
	env := newTestEnv(t)
	env.buildRPi1(t)
	entry, err := env.registry.Get(context.Background(), "RPi1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	tests := []struct {
		path        string
		contentType string
		want        string
	}{
		{"/api/v1/icecubes/RPi1/db", "text/plain; charset=utf-8", entry.Device.DBText()},
		{"/api/v1/icecubes/RPi1/proto", "text/plain; charset=utf-8", entry.Device.ProtoText()},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, "", nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", ct, tt.contentType)
			}
			if rec.Body.String() != tt.want {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.want)
			}
		})
	}

	rec := env.do(t, http.MethodGet, "/api/v1/icecubes/nope/db", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing cube db status = %d, want 404", rec.Code)
	}
}

func TestGetDocument(t *testing.T) {
	env := newTestEnv(t)
	env.buildRPi1(t)

	rec := env.do(t, http.MethodGet, "/api/v1/icecubes/RPi1/document", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var doc icecube.Document
	decodeBody(t, rec, &doc)
	if doc.Name != "RPi1" || len(doc.Signals) != 2 {
		t.Errorf("doc = %+v", doc)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/icecubes/RPi1/document?format=yaml", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("yaml status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("yaml Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "name: RPi1") {
		t.Errorf("yaml body = %q", rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/icecubes/RPi1/document?format=toml", "", nil)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("toml status = %d, want 415", rec.Code)
	}
}

func TestDeleteIceCube(t *testing.T) {
	env := newTestEnv(t)
	env.buildRPi1(t)

	rec := env.do(t, http.MethodDelete, "/api/v1/icecubes/RPi1", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.registry.Count() != 0 {
		t.Error("cube still in registry")
	}
	if _, err := os.Stat(env.writer.PathsFor("RPi1").Dir); !os.IsNotExist(err) {
		t.Errorf("artifact dir still present: %v", err)
	}
	if len(env.publisher.retracted) != 1 || env.publisher.retracted[0] != "RPi1" {
		t.Errorf("retracted = %v", env.publisher.retracted)
	}

	// History outlives the cube.
	rec = env.do(t, http.MethodGet, "/api/v1/icecubes/RPi1/builds", "", nil)
	var resp struct {
		Builds []catalogue.BuildRecord `json:"builds"`
		Count  int                     `json:"count"`
	}
	decodeBody(t, rec, &resp)
	if resp.Count != 1 {
		t.Errorf("builds after delete = %+v", resp)
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/icecubes/RPi1", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestListBuilds(t *testing.T) {
	env := newTestEnv(t)
	env.buildRPi1(t)
	env.do(t, http.MethodPost, "/api/v1/icecubes", "application/json",
		strings.NewReader(`{"name":"RPi1","signals":[{"name":"led1","RW":"W"},{"name":"led1","RW":"W"}]}`))
	env.buildRPi1(t)

	var resp struct {
		Name   string                  `json:"name"`
		Builds []catalogue.BuildRecord `json:"builds"`
		Count  int                     `json:"count"`
	}
	rec := env.do(t, http.MethodGet, "/api/v1/icecubes/RPi1/builds", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	decodeBody(t, rec, &resp)
	if resp.Count != 3 {
		t.Fatalf("Count = %d, want 3", resp.Count)
	}
	if resp.Builds[1].Result != catalogue.ResultRejected || resp.Builds[1].Error == "" {
		t.Errorf("middle build = %+v", resp.Builds[1])
	}

	rec = env.do(t, http.MethodGet, "/api/v1/icecubes/RPi1/builds?limit=1", "", nil)
	decodeBody(t, rec, &resp)
	if resp.Count != 1 || resp.Builds[0].Result != catalogue.ResultOK {
		t.Errorf("limit=1 = %+v", resp)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/icecubes/RPi1/builds?limit=-2", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/icecubes/never/builds", "", nil)
	decodeBody(t, rec, &resp)
	if rec.Code != http.StatusOK || resp.Count != 0 || resp.Builds == nil {
		t.Errorf("unknown cube builds = %d %+v", rec.Code, resp)
	}
}

// multipartBody builds a form with one file part and extra fields.
func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("writing part: %v", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

const sheetCSV = "name,RW,scanRate\nphotoresistor1,R,1 second\nled1,W,\n"

func TestImportSheet_ParseOnly(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, "RPi3.csv", []byte(sheetCSV), nil)
	rec := env.do(t, http.MethodPost, "/api/v1/icecubes/import", ct, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp SheetImportResponse
	decodeBody(t, rec, &resp)
	if resp.Result == nil || resp.Document.Name != "RPi3" || len(resp.Document.Signals) != 2 {
		t.Fatalf("resp = %+v", resp.Result)
	}
	if resp.IceCube != nil {
		t.Error("parse-only import built a cube")
	}
	if env.registry.Count() != 0 {
		t.Error("parse-only import stored a cube")
	}
}

func TestImportSheet_Build(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, "signals.csv", []byte(sheetCSV), map[string]string{
		"name":  "RPi4",
		"build": "true",
	})
	rec := env.do(t, http.MethodPost, "/api/v1/icecubes/import", ct, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp SheetImportResponse
	decodeBody(t, rec, &resp)
	if resp.IceCube == nil || resp.IceCube.Name != "RPi4" || resp.IceCube.ReadCount != 1 {
		t.Fatalf("icecube = %+v", resp.IceCube)
	}
	if _, err := env.registry.Get(context.Background(), "RPi4"); err != nil {
		t.Errorf("registry.Get() error = %v", err)
	}
	if len(env.publisher.published) != 1 {
		t.Errorf("published = %v", env.publisher.published)
	}
}

func TestImportSheet_Errors(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		data       string
		fields     map[string]string
		wantStatus int
	}{
		{"unsupported extension", "signals.txt", sheetCSV, nil, http.StatusUnsupportedMediaType},
		{"missing RW column", "signals.csv", "name,scanRate\nt1,1 second\n", nil, http.StatusBadRequest},
		{"bad build flag", "signals.csv", sheetCSV, map[string]string{"build": "maybe"}, http.StatusBadRequest},
		{"invalid cube on build", "bad name.csv", sheetCSV, map[string]string{"build": "1"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			body, ct := multipartBody(t, tt.filename, []byte(tt.data), tt.fields)
			rec := env.do(t, http.MethodPost, "/api/v1/icecubes/import", ct, body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestImportSheet_MissingFile(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("name", "RPi1") //nolint:errcheck // Test setup
	mw.Close()                    //nolint:errcheck // Test setup

	rec := env.do(t, http.MethodPost, "/api/v1/icecubes/import", mw.FormDataContentType(), &buf)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestExportSheet_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.buildRPi1(t)

	rec := env.do(t, http.MethodGet, "/api/v1/icecubes/RPi1/sheet", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename="RPi1.xlsx"`) {
		t.Errorf("Content-Disposition = %q", cd)
	}

	result, err := sheetimport.NewParser().ParseBytes(rec.Body.Bytes(), "export.xlsx")
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	entry, err := env.registry.Get(context.Background(), "RPi1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !result.Document.Equivalent(entry.Device.Document()) {
		t.Errorf("round trip = %+v, want %+v", result.Document, entry.Device.Document())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/icecubes/nope/sheet", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing cube status = %d, want 404", rec.Code)
	}
}

func TestRecovery(t *testing.T) {
	env := newTestEnv(t)
	h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestStartAndClose(t *testing.T) {
	env := newTestEnv(t)

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start: expected error")
	}
	if env.srv.Addr() != "" {
		t.Errorf("Addr() before Start = %q", env.srv.Addr())
	}

	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer env.srv.Close() //nolint:errcheck // Closed below

	resp, err := http.Get("http://" + env.srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() after Start = %v", err)
	}
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
