// Package pipeline orchestrates one generation run: resolve the
// prompt, call the provider, save the image and record history.
package pipeline

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zhanren/Malden-image-creator/internal/config"
	"github.com/zhanren/Malden-image-creator/internal/history"
	"github.com/zhanren/Malden-image-creator/internal/imageutil"
	"github.com/zhanren/Malden-image-creator/internal/provider"
	"github.com/zhanren/Malden-image-creator/internal/provider/volcengine"
	"github.com/zhanren/Malden-image-creator/internal/template"
)

// Context carries the fully resolved parameters of one generation.
type Context struct {
	Prompt         string
	ResolvedPrompt string
	Width          int
	Height         int
	Model          string
	Style          string
	NegativePrompt string
	OutputDir      string
	Seed           *int64

	// One or more reference image paths switch the run into
	// image-to-image mode.
	ReferenceImages []string

	TemplateContext  map[string]any
	TemplateDefaults map[string]any

	// Series bookkeeping for history.
	Series string
	ItemID string
}

// ResolvePrompt renders template variables and prepends the style
// prefix. A template failure falls back to the raw prompt so a bad
// series item degrades instead of crashing the whole batch.
func (c *Context) ResolvePrompt() string {
	prompt := c.Prompt
	if len(c.TemplateContext) > 0 || len(c.TemplateDefaults) > 0 {
		engine := template.New(true)
		if rendered, err := engine.RenderString(prompt, c.TemplateContext, c.TemplateDefaults); err == nil {
			prompt = rendered
		}
	}
	if c.Style != "" {
		prompt = c.Style + ", " + prompt
	}
	c.ResolvedPrompt = prompt
	return prompt
}

// Result is the outcome of one pipeline run.
type Result struct {
	Success      bool
	OutputPath   string
	DurationMs   int64
	Context      *Context
	Generation   *provider.GenerationResult
	ErrorMessage string
}

// Filename derives the output file name from the resolved prompt and
// a timestamp: 20250301_103000_a1b2c3d4.png.
func Filename(prompt string, t time.Time) string {
	sum := md5.Sum([]byte(prompt))
	return fmt.Sprintf("%s_%s.png", t.Format("20060102_150405"), hex.EncodeToString(sum[:])[:8])
}

// Pipeline drives generations against one provider client.
type Pipeline struct {
	mu          sync.RWMutex
	cfg         *config.Config
	client      provider.ImageProvider
	store       *history.Store
	logger      *slog.Logger
	projectRoot string
	ownsClient  bool
	now         func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClient supplies an externally owned provider client. The
// pipeline will not close it.
func WithClient(client provider.ImageProvider) Option {
	return func(p *Pipeline) {
		p.client = client
		p.ownsClient = false
	}
}

// WithProjectRoot sets the directory used for history records and for
// resolving relative reference image paths.
func WithProjectRoot(dir string) Option {
	return func(p *Pipeline) { p.projectRoot = dir }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// New builds a pipeline over a resolved configuration.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:         cfg,
		logger:      slog.Default(),
		projectRoot: ".",
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.store == nil {
		p.store = history.NewStore(p.projectRoot)
	}
	return p
}

// SetConfig swaps the configuration used for new contexts. Serve mode
// calls this when the project config file changes on disk.
func (p *Pipeline) SetConfig(cfg *config.Config) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

func (p *Pipeline) config() *config.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Close releases the provider client if the pipeline created it.
func (p *Pipeline) Close() error {
	if p.ownsClient && p.client != nil {
		err := p.client.Close()
		p.client = nil
		return err
	}
	return nil
}

func (p *Pipeline) ensureClient() provider.ImageProvider {
	if p.client == nil {
		cfg := p.config()
		p.client = volcengine.New(
			volcengine.WithTimeout(time.Duration(cfg.API.Timeout)*time.Second),
			volcengine.WithRetryPolicy(cfg.API.MaxRetries, time.Duration(cfg.API.RetryDelay*float64(time.Second))),
			volcengine.WithProjectRoot(p.projectRoot),
			volcengine.WithLogger(p.logger),
		)
		p.ownsClient = true
	}
	return p.client
}

// ContextParams are per-call overrides. Zero values fall back to the
// configured defaults; Style and NegativePrompt use pointers so an
// explicit empty string can override a configured value.
type ContextParams struct {
	Prompt          string
	Width           int
	Height          int
	Model           string
	Style           *string
	NegativePrompt  *string
	OutputDir       string
	Seed            *int64
	ReferenceImages []string

	TemplateContext  map[string]any
	TemplateDefaults map[string]any

	Series string
	ItemID string
}

// NewContext merges per-call parameters over the configured defaults
// and resolves the prompt.
func (p *Pipeline) NewContext(params ContextParams) *Context {
	cfg := p.config()
	ctx := &Context{
		Prompt:           params.Prompt,
		Width:            params.Width,
		Height:           params.Height,
		Model:            params.Model,
		OutputDir:        params.OutputDir,
		Seed:             params.Seed,
		ReferenceImages:  params.ReferenceImages,
		TemplateContext:  params.TemplateContext,
		TemplateDefaults: params.TemplateDefaults,
		Series:           params.Series,
		ItemID:           params.ItemID,
	}
	if ctx.Width <= 0 {
		ctx.Width = cfg.Defaults.Width
	}
	if ctx.Height <= 0 {
		ctx.Height = cfg.Defaults.Height
	}
	if ctx.Model == "" {
		ctx.Model = cfg.API.Model
	}
	if params.Style != nil {
		ctx.Style = *params.Style
	} else {
		ctx.Style = cfg.Defaults.Style
	}
	if params.NegativePrompt != nil {
		ctx.NegativePrompt = *params.NegativePrompt
	} else {
		ctx.NegativePrompt = cfg.Defaults.NegativePrompt
	}
	if ctx.OutputDir == "" {
		ctx.OutputDir = cfg.Output.BaseDir
	}
	if len(ctx.ReferenceImages) == 0 {
		ctx.ReferenceImages = cfg.Defaults.ReferenceImage
	}
	ctx.ResolvePrompt()
	return ctx
}

// DryRun previews a generation without any network call.
func (p *Pipeline) DryRun(ctx *Context) map[string]any {
	mode := "text-to-image"
	if len(ctx.ReferenceImages) > 0 {
		mode = "image-to-image"
	}
	preview := map[string]any{
		"prompt":          ctx.Prompt,
		"resolved_prompt": ctx.ResolvedPrompt,
		"model":           ctx.Model,
		"dimensions":      fmt.Sprintf("%dx%d", ctx.Width, ctx.Height),
		"style":           orNone(ctx.Style),
		"negative_prompt": orNone(ctx.NegativePrompt),
		"output_path":     filepath.Join(ctx.OutputDir, Filename(ctx.ResolvedPrompt, p.now())),
		"mode":            mode,
	}
	if ctx.Seed != nil {
		preview["seed"] = *ctx.Seed
	}
	if len(ctx.ReferenceImages) > 0 {
		preview["reference_images"] = ctx.ReferenceImages
	}
	return preview
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// Run executes one generation. Failures come back inside the Result;
// the pipeline never panics or propagates provider errors.
func (p *Pipeline) Run(ctx *Context) *Result {
	start := p.now()

	p.logger.Info("generating image",
		"prompt", truncate(ctx.ResolvedPrompt, 50),
		"model", ctx.Model,
		"size", fmt.Sprintf("%dx%d", ctx.Width, ctx.Height))

	if err := os.MkdirAll(ctx.OutputDir, 0o755); err != nil {
		return p.failed(ctx, start, nil, fmt.Sprintf("create output dir: %v", err))
	}

	var referenceData []string
	if len(ctx.ReferenceImages) > 0 {
		for _, path := range ctx.ReferenceImages {
			encoded, _, err := imageutil.LoadAndEncode(path, p.projectRoot)
			if err != nil {
				return p.failed(ctx, start, nil, err.Error())
			}
			referenceData = append(referenceData, encoded)
		}
		p.logger.Info("image-to-image mode", "reference_images", strings.Join(ctx.ReferenceImages, ", "))
	}

	req := &provider.GenerationRequest{
		Prompt:              ctx.ResolvedPrompt,
		Width:               ctx.Width,
		Height:              ctx.Height,
		Model:               ctx.Model,
		NegativePrompt:      ctx.NegativePrompt,
		Seed:                ctx.Seed,
		ReferenceImageData:  referenceData,
		ReferenceImagePaths: ctx.ReferenceImages,
	}

	genResult, err := p.ensureClient().Generate(req)
	if err != nil {
		return p.failed(ctx, start, nil, err.Error())
	}

	durationMs := p.now().Sub(start).Milliseconds()

	if !genResult.Success() {
		p.logger.Error("generation failed", "error", genResult.ErrorMessage)
		p.record(ctx, history.Entry{
			Status:     "failed",
			DurationMs: durationMs,
			Error:      genResult.ErrorMessage,
		})
		return &Result{
			Context:      ctx,
			Generation:   genResult,
			DurationMs:   durationMs,
			ErrorMessage: genResult.ErrorMessage,
		}
	}

	image := genResult.Image()
	outputPath := filepath.Join(ctx.OutputDir, Filename(ctx.ResolvedPrompt, start))
	if err := os.WriteFile(outputPath, image, 0o644); err != nil {
		return p.failed(ctx, start, genResult, fmt.Sprintf("save image: %v", err))
	}
	p.logger.Info("saved image", "path", outputPath, "duration_ms", durationMs)

	p.record(ctx, history.Entry{
		Status:      "success",
		OutputPath:  outputPath,
		ImageSHA256: history.HashImage(image),
		DurationMs:  durationMs,
		Seed:        genResult.Seed,
	})

	return &Result{
		Success:    true,
		OutputPath: outputPath,
		DurationMs: durationMs,
		Context:    ctx,
		Generation: genResult,
	}
}

func (p *Pipeline) failed(ctx *Context, start time.Time, genResult *provider.GenerationResult, message string) *Result {
	durationMs := p.now().Sub(start).Milliseconds()
	p.logger.Error("generation failed", "error", message)
	p.record(ctx, history.Entry{
		Status:     "failed",
		DurationMs: durationMs,
		Error:      message,
	})
	return &Result{
		Context:      ctx,
		Generation:   genResult,
		DurationMs:   durationMs,
		ErrorMessage: message,
	}
}

// record writes a history entry; a bookkeeping failure is logged and
// otherwise ignored so it never breaks a generation.
func (p *Pipeline) record(ctx *Context, entry history.Entry) {
	entry.Prompt = ctx.Prompt
	entry.ResolvedPrompt = ctx.ResolvedPrompt
	entry.Model = ctx.Model
	entry.Width = ctx.Width
	entry.Height = ctx.Height
	entry.Series = ctx.Series
	entry.ItemID = ctx.ItemID
	if entry.Seed == nil {
		entry.Seed = ctx.Seed
	}
	if _, err := p.store.Record(entry); err != nil {
		p.logger.Warn("history record failed", "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
