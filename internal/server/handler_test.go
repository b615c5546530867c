package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zhanren/Malden-image-creator/internal/config"
	"github.com/zhanren/Malden-image-creator/internal/history"
	"github.com/zhanren/Malden-image-creator/internal/pipeline"
	"github.com/zhanren/Malden-image-creator/internal/provider"
)

type stubProvider struct {
	result *provider.GenerationResult
}

func (s *stubProvider) Name() string                  { return "stub" }
func (s *stubProvider) ValidateCredentials() []string { return nil }
func (s *stubProvider) Close() error                  { return nil }

func (s *stubProvider) Generate(*provider.GenerationRequest) (*provider.GenerationResult, error) {
	return s.result, nil
}

func testServer(t *testing.T, stub *stubProvider) (*httptest.Server, string) {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Output.BaseDir = filepath.Join(root, "output")

	pipe := pipeline.New(cfg,
		pipeline.WithClient(stub),
		pipeline.WithProjectRoot(root),
	)
	metrics := NewMetrics(prometheus.NewRegistry())
	h := NewHandler(pipe, history.NewStore(root), metrics, nil)

	srv := httptest.NewServer(NewRouter(h, nil))
	t.Cleanup(srv.Close)
	return srv, root
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestGenerateEndpoint(t *testing.T) {
	stub := &stubProvider{result: &provider.GenerationResult{
		Status:    provider.StatusSuccess,
		Images:    [][]byte{[]byte("img")},
		RequestID: "req-1",
	}}
	srv, _ := testServer(t, stub)

	resp, body := postJSON(t, srv.URL+"/v1/generations", `{"prompt":"a fox"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["status"] != "success" {
		t.Errorf("status = %v", body["status"])
	}
	if body["request_id"] != "req-1" {
		t.Errorf("request_id = %v", body["request_id"])
	}
	if body["output_path"] == "" {
		t.Error("missing output_path")
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestGenerateEndpointFailure(t *testing.T) {
	stub := &stubProvider{result: &provider.GenerationResult{
		Status:       provider.StatusFailed,
		ErrorMessage: "rate limit exceeded",
	}}
	srv, _ := testServer(t, stub)

	resp, body := postJSON(t, srv.URL+"/v1/generations", `{"prompt":"a fox"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["error"] != "rate limit exceeded" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestGenerateEndpointValidation(t *testing.T) {
	srv, _ := testServer(t, &stubProvider{})

	resp, _ := postJSON(t, srv.URL+"/v1/generations", `{"prompt":""}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty prompt status = %d", resp.StatusCode)
	}

	resp, _ = postJSON(t, srv.URL+"/v1/generations", `{broken`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("broken body status = %d", resp.StatusCode)
	}
}

func TestGenerateDryRun(t *testing.T) {
	srv, _ := testServer(t, &stubProvider{})

	resp, body := postJSON(t, srv.URL+"/v1/generations", `{"prompt":"a fox","dry_run":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["mode"] != "text-to-image" {
		t.Errorf("mode = %v", body["mode"])
	}
}

func TestHistoryEndpoints(t *testing.T) {
	stub := &stubProvider{result: &provider.GenerationResult{
		Status: provider.StatusSuccess,
		Images: [][]byte{[]byte("img")},
	}}
	srv, _ := testServer(t, stub)

	for _, prompt := range []string{"a red fox", "a blue whale"} {
		resp, _ := postJSON(t, srv.URL+"/v1/generations", `{"prompt":"`+prompt+`"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("generation status = %d", resp.StatusCode)
		}
	}

	resp, err := http.Get(srv.URL + "/v1/history?q=fox")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var listing struct {
		Entries []history.Entry `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatal(err)
	}
	if len(listing.Entries) != 1 || !strings.Contains(listing.Entries[0].Prompt, "fox") {
		t.Errorf("entries = %+v", listing.Entries)
	}

	resp, err = http.Get(srv.URL + "/v1/history/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var stats map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats["total"] != float64(2) || stats["succeeded"] != float64(2) {
		t.Errorf("stats = %v", stats)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t, &stubProvider{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
