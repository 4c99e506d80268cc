package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/ariel/internal/storage"
)

var fixedNow = time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)

func setupTestRouter(t *testing.T) (http.Handler, *storage.ConfigStore) {
	t.Helper()

	store := storage.New(filepath.Join(t.TempDir(), "ariel_config.json"))
	handler := NewHandler(store, WithClock(func() time.Time { return fixedNow }))
	router := NewRouter(handler, zaptest.NewLogger(t), WithLogging(false), WithRateLimit(0, 0))

	return router, store
}

func doRequest(t *testing.T, handler http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

type assertError string

func (a assertError) Error() string { return string(a) }

// failingStore accepts reads but fails every write, like a full disk.
type failingStore struct {
	storage.Store
}

func (failingStore) Set(string, string, string) error { return assertError("disk full") }
func (failingStore) Delete(string, string) error { return assertError("disk full") }

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	resp := httptest.NewRecorder()
	writeInternalError(resp, assertError("boom"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Status != "ok" || !body.Timestamp.Equal(fixedNow) {
		t.Fatalf("unexpected health response: %+v", body)
	}
}

func TestListEnvironmentsEmpty(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/ariel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := bytes.TrimSpace(rec.Body.Bytes()); string(got) != "[]" {
		t.Fatalf("expected empty JSON array, got %s", got)
	}
}

func TestPutThenGet(t *testing.T) {
	router, store := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodPut, "/ariel/prod/db_host", []byte(`{"value":"10.0.0.1"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var put successResponse
	if err := json.NewDecoder(rec.Body).Decode(&put); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !put.Success {
		t.Fatalf("expected success true")
	}
	if value, ok := store.Get("prod", "db_host"); !ok || value != "10.0.0.1" {
		t.Fatalf("expected store to hold value, got %q (%v)", value, ok)
	}

	rec = doRequest(t, router, http.MethodGet, "/ariel/prod/db_host", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var value map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&value); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if value["db_host"] != "10.0.0.1" || len(value) != 1 {
		t.Fatalf("unexpected value response: %v", value)
	}

	rec = doRequest(t, router, http.MethodGet, "/ariel/prod", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var all map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&all); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if all["db_host"] != "10.0.0.1" {
		t.Fatalf("unexpected environment response: %v", all)
	}

	rec = doRequest(t, router, http.MethodGet, "/ariel", nil)
	var envs []string
	if err := json.NewDecoder(rec.Body).Decode(&envs); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !slices.Contains(envs, "prod") {
		t.Fatalf("expected prod in %v", envs)
	}
}

func TestGetNotFound(t *testing.T) {
	router, store := setupTestRouter(t)
	if err := store.Set("prod", "db_host", "10.0.0.1"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	for _, target := range []string{"/ariel/prod/missing", "/ariel/staging/db_host", "/ariel/staging"} {
		rec := doRequest(t, router, http.MethodGet, target, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for %s, got %d", target, rec.Code)
		}
	}
}

func TestPutRejectsInvalidBody(t *testing.T) {
	router, store := setupTestRouter(t)

	for _, body := range []string{`not json`, `{}`, `{"value": 5}`} {
		rec := doRequest(t, router, http.MethodPut, "/ariel/dev/k", []byte(body))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", body, rec.Code)
		}
	}
	if envs := store.ListEnvironments(); len(envs) != 0 {
		t.Fatalf("expected no environments, got %v", envs)
	}
}

func TestPutAcceptsEmptyString(t *testing.T) {
	router, store := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodPut, "/ariel/dev/k", []byte(`{"value":""}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if value, ok := store.Get("dev", "k"); !ok || value != "" {
		t.Fatalf("expected empty value to be stored, got %q (%v)", value, ok)
	}
}

func TestDeleteValue(t *testing.T) {
	router, store := setupTestRouter(t)
	if err := store.Set("prod", "db_host", "10.0.0.1"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	for i := 0; i < 2; i++ {
		rec := doRequest(t, router, http.MethodDelete, "/ariel/prod/db_host", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 on delete %d, got %d", i, rec.Code)
		}
	}

	rec := doRequest(t, router, http.MethodGet, "/ariel/prod/db_host", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
	rec = doRequest(t, router, http.MethodGet, "/ariel/prod", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected empty environment to remain, got %d", rec.Code)
	}
}

func TestSaveFailureReturnsInternalError(t *testing.T) {
	handler := NewHandler(failingStore{Store: storage.New(filepath.Join(t.TempDir(), "x.json"))})
	router := NewRouter(handler, zaptest.NewLogger(t), WithLogging(false), WithRateLimit(0, 0))

	rec := doRequest(t, router, http.MethodPut, "/ariel/dev/k", []byte(`{"value":"v"}`))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on PUT, got %d", rec.Code)
	}
	rec = doRequest(t, router, http.MethodDelete, "/ariel/dev/k", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on DELETE, got %d", rec.Code)
	}

	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Details != "disk full" {
		t.Fatalf("expected details to carry the cause, got %q", body.Details)
	}
}

func TestEnvFileRouterServesRawValues(t *testing.T) {
	dir := t.TempDir()
	path, err := storage.EnvFile(dir, "prod")
	if err != nil {
		t.Fatalf("EnvFile returned error: %v", err)
	}
	if err := storage.New(path).Set("prod", "db_host", "10.0.0.1"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	opened := 0
	handler := NewEnvFileHandler(dir, func(path string) storage.Store {
		opened++
		return storage.Open(path)
	})
	router := NewEnvFileRouter(handler, zaptest.NewLogger(t), WithLogging(false), WithRateLimit(0, 0))

	rec := doRequest(t, router, http.MethodGet, "/prod/db_host", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "10.0.0.1" {
		t.Fatalf("expected raw value, got %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}

	// A write made after the first request is visible on the next one.
	if err := storage.Open(path).Set("prod", "db_port", "5432"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	rec = doRequest(t, router, http.MethodGet, "/prod/db_port", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "5432" {
		t.Fatalf("expected fresh value, got %d %q", rec.Code, rec.Body.String())
	}
	if opened != 2 {
		t.Fatalf("expected a fresh store per request, opened %d", opened)
	}

	for _, target := range []string{"/prod/missing", "/staging/db_host"} {
		rec = doRequest(t, router, http.MethodGet, target, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for %s, got %d", target, rec.Code)
		}
	}

	rec = doRequest(t, router, http.MethodGet, "/../db_host", nil)
	if rec.Code == http.StatusOK {
		t.Fatalf("expected traversal attempt to fail")
	}
}

func TestEnvFileHandlerRejectsInvalidEnvironment(t *testing.T) {
	handler := NewEnvFileHandler(t.TempDir(), func(string) storage.Store {
		t.Fatalf("store should not be opened for invalid environments")
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/x/y", nil)
	req.SetPathValue("env", "..")
	req.SetPathValue("key", "k")
	rec := httptest.NewRecorder()
	handler.handleGetRawValue(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Error != "Invalid environment" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}
