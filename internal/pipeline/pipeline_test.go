package pipeline

import (
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/zhanren/Malden-image-creator/internal/config"
	"github.com/zhanren/Malden-image-creator/internal/history"
	"github.com/zhanren/Malden-image-creator/internal/provider"
)

type stubProvider struct {
	requests []*provider.GenerationRequest
	result   *provider.GenerationResult
	err      error
}

func (s *stubProvider) Name() string                  { return "stub" }
func (s *stubProvider) ValidateCredentials() []string { return nil }
func (s *stubProvider) Close() error                  { return nil }

func (s *stubProvider) Generate(req *provider.GenerationRequest) (*provider.GenerationResult, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func successResult() *provider.GenerationResult {
	return &provider.GenerationResult{
		Status: provider.StatusSuccess,
		Images: [][]byte{[]byte("image-bytes")},
	}
}

func testPipeline(t *testing.T, stub *stubProvider) (*Pipeline, string) {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Defaults.Style = "flat design"
	cfg.Output.BaseDir = filepath.Join(root, "output")

	p := New(cfg,
		WithClient(stub),
		WithProjectRoot(root),
		WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))),
	)
	return p, root
}

func TestResolvePromptStyleAndTemplate(t *testing.T) {
	ctx := &Context{
		Prompt:           "{{style}} icon of {{subject}}",
		Style:            "minimal",
		TemplateContext:  map[string]any{"subject": "home"},
		TemplateDefaults: map[string]any{"style": "flat"},
	}
	if got := ctx.ResolvePrompt(); got != "minimal, flat icon of home" {
		t.Errorf("resolved = %q", got)
	}
}

func TestResolvePromptTemplateFailureFallsBack(t *testing.T) {
	ctx := &Context{
		Prompt:          "icon of {{missing}}",
		TemplateContext: map[string]any{"other": "x"},
	}
	if got := ctx.ResolvePrompt(); got != "icon of {{missing}}" {
		t.Errorf("resolved = %q", got)
	}
}

func TestFilename(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	name := Filename("a red fox", at)
	if !strings.HasPrefix(name, "20250301_103000_") || !strings.HasSuffix(name, ".png") {
		t.Errorf("filename = %q", name)
	}
	if name != Filename("a red fox", at) {
		t.Error("filename not deterministic")
	}
	if name == Filename("a blue fox", at) {
		t.Error("filename ignores prompt")
	}
}

func TestNewContextDefaults(t *testing.T) {
	p, _ := testPipeline(t, &stubProvider{result: successResult()})

	ctx := p.NewContext(ContextParams{Prompt: "a fox"})
	if ctx.Width != 1024 || ctx.Height != 1024 {
		t.Errorf("size = %dx%d", ctx.Width, ctx.Height)
	}
	if ctx.Model != "文生图3.0" {
		t.Errorf("model = %q", ctx.Model)
	}
	if ctx.Style != "flat design" {
		t.Errorf("style = %q", ctx.Style)
	}
	if ctx.ResolvedPrompt != "flat design, a fox" {
		t.Errorf("resolved = %q", ctx.ResolvedPrompt)
	}
}

func TestNewContextExplicitEmptyStyle(t *testing.T) {
	p, _ := testPipeline(t, &stubProvider{result: successResult()})

	empty := ""
	ctx := p.NewContext(ContextParams{Prompt: "a fox", Style: &empty})
	if ctx.Style != "" {
		t.Errorf("style = %q, want explicit empty", ctx.Style)
	}
	if ctx.ResolvedPrompt != "a fox" {
		t.Errorf("resolved = %q", ctx.ResolvedPrompt)
	}
}

func TestRunSuccess(t *testing.T) {
	stub := &stubProvider{result: successResult()}
	p, root := testPipeline(t, stub)

	result := p.Run(p.NewContext(ContextParams{Prompt: "a fox"}))
	if !result.Success {
		t.Fatalf("run failed: %s", result.ErrorMessage)
	}

	data, err := os.ReadFile(result.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("output = %q", data)
	}

	if len(stub.requests) != 1 {
		t.Fatalf("requests = %d", len(stub.requests))
	}
	if stub.requests[0].Prompt != "flat design, a fox" {
		t.Errorf("request prompt = %q", stub.requests[0].Prompt)
	}

	entries, err := history.NewStore(root).List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != "success" {
		t.Fatalf("history = %+v", entries)
	}
	if entries[0].ImageSHA256 != history.HashImage([]byte("image-bytes")) {
		t.Error("history image hash mismatch")
	}
	if entries[0].Prompt != "a fox" || entries[0].ResolvedPrompt != "flat design, a fox" {
		t.Errorf("history prompts = %q / %q", entries[0].Prompt, entries[0].ResolvedPrompt)
	}
}

func TestRunProviderFailure(t *testing.T) {
	stub := &stubProvider{result: &provider.GenerationResult{
		Status:       provider.StatusFailed,
		ErrorMessage: "rate limit exceeded",
	}}
	p, root := testPipeline(t, stub)

	result := p.Run(p.NewContext(ContextParams{Prompt: "a fox"}))
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.ErrorMessage != "rate limit exceeded" {
		t.Errorf("error = %q", result.ErrorMessage)
	}

	entries, err := history.NewStore(root).List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != "failed" {
		t.Fatalf("history = %+v", entries)
	}
	if entries[0].Error != "rate limit exceeded" {
		t.Errorf("history error = %q", entries[0].Error)
	}
}

func TestRunPreflightErrorBecomesFailedResult(t *testing.T) {
	stub := &stubProvider{err: &provider.AuthenticationError{Provider: "stub", Message: "missing credentials"}}
	p, _ := testPipeline(t, stub)

	result := p.Run(p.NewContext(ContextParams{Prompt: "a fox"}))
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.ErrorMessage, "missing credentials") {
		t.Errorf("error = %q", result.ErrorMessage)
	}
}

func TestRunLoadsReferenceImages(t *testing.T) {
	stub := &stubProvider{result: successResult()}
	p, root := testPipeline(t, stub)

	img := imaging.New(4, 4, color.NRGBA{A: 255})
	refPath := filepath.Join(root, "ref.png")
	if err := imaging.Save(img, refPath); err != nil {
		t.Fatal(err)
	}

	result := p.Run(p.NewContext(ContextParams{Prompt: "variant", ReferenceImages: []string{"ref.png"}}))
	if !result.Success {
		t.Fatalf("run failed: %s", result.ErrorMessage)
	}
	if len(stub.requests[0].ReferenceImageData) != 1 {
		t.Errorf("reference data = %v", stub.requests[0].ReferenceImageData)
	}
}

func TestRunMissingReferenceImageFails(t *testing.T) {
	stub := &stubProvider{result: successResult()}
	p, _ := testPipeline(t, stub)

	result := p.Run(p.NewContext(ContextParams{Prompt: "variant", ReferenceImages: []string{"missing.png"}}))
	if result.Success {
		t.Fatal("expected failure")
	}
	if len(stub.requests) != 0 {
		t.Errorf("provider called %d times before reference load failed", len(stub.requests))
	}
}

func TestDryRun(t *testing.T) {
	p, _ := testPipeline(t, &stubProvider{result: successResult()})

	preview := p.DryRun(p.NewContext(ContextParams{Prompt: "a fox"}))
	if preview["mode"] != "text-to-image" {
		t.Errorf("mode = %v", preview["mode"])
	}
	if preview["resolved_prompt"] != "flat design, a fox" {
		t.Errorf("resolved_prompt = %v", preview["resolved_prompt"])
	}
	if preview["dimensions"] != "1024x1024" {
		t.Errorf("dimensions = %v", preview["dimensions"])
	}
}
