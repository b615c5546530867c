package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhanren/Malden-image-creator/internal/config"
	"github.com/zhanren/Malden-image-creator/internal/pipeline"
	"github.com/zhanren/Malden-image-creator/internal/series"
)

// seriesItemDelay spaces out sequential vendor calls within a batch.
const seriesItemDelay = 500 * time.Millisecond

type generateOptions struct {
	width          int
	height         int
	model          string
	style          string
	negativePrompt string
	outputDir      string
	seed           int64
	seedSet        bool
	references     []string
	vars           []string
	seriesName     string
	runSeries      bool
	sample         bool
	limit          int
	dryRun         bool
	format         string
}

func newGenerateCmd() *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate images from a prompt or a series",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.seedSet = cmd.Flags().Changed("seed")
			if opts.runSeries || opts.seriesName != "" {
				return runGenerateSeries(opts)
			}
			switch {
			case len(args) > 0:
				return runGenerate(args[0], opts)
			case opts.sample:
				return runGenerate("sample image", opts)
			}
			return fmt.Errorf("provide a prompt, or use --series for batch generation")
		},
	}

	cmd.Flags().IntVar(&opts.width, "width", 0, "image width in pixels")
	cmd.Flags().IntVar(&opts.height, "height", 0, "image height in pixels")
	cmd.Flags().StringVar(&opts.model, "model", "", "model name (e.g. 文生图3.0)")
	cmd.Flags().StringVar(&opts.style, "style", "", "style prefix prepended to the prompt")
	cmd.Flags().StringVar(&opts.negativePrompt, "negative-prompt", "", "negative prompt")
	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "output directory")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "random seed for reproducibility")
	cmd.Flags().StringArrayVar(&opts.references, "reference", nil, "reference image path, repeatable (switches to image-to-image)")
	cmd.Flags().StringArrayVar(&opts.vars, "var", nil, "template variable as key=value, repeatable")
	cmd.Flags().StringVar(&opts.seriesName, "series", "", "series name to generate")
	cmd.Flags().BoolVar(&opts.runSeries, "all-series", false, "generate the project's default series")
	cmd.Flags().BoolVar(&opts.sample, "sample", false, "generate a single sample image")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "cap the number of series items to generate")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "preview without calling the API")
	cmd.Flags().StringVar(&opts.format, "output-format", "text", "output format: text, json or yaml")
	return cmd
}

func newPipeline() (*pipeline.Pipeline, *config.Config, string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, nil, "", err
	}
	cfg, err := config.NewLoader(wd, slog.Default()).Load()
	if err != nil {
		return nil, nil, "", err
	}
	p := pipeline.New(cfg, pipeline.WithProjectRoot(wd), pipeline.WithLogger(slog.Default()))
	return p, cfg, wd, nil
}

func (o *generateOptions) params(prompt string) pipeline.ContextParams {
	params := pipeline.ContextParams{
		Prompt:          prompt,
		Width:           o.width,
		Height:          o.height,
		Model:           o.model,
		OutputDir:       o.outputDir,
		ReferenceImages: o.references,
	}
	if o.style != "" {
		params.Style = &o.style
	}
	if o.negativePrompt != "" {
		params.NegativePrompt = &o.negativePrompt
	}
	if o.seedSet {
		seed := o.seed
		params.Seed = &seed
	}
	if len(o.vars) > 0 {
		params.TemplateContext = map[string]any{}
		for _, kv := range o.vars {
			key, value, ok := strings.Cut(kv, "=")
			if ok {
				params.TemplateContext[key] = value
			}
		}
	}
	return params
}

func runGenerate(prompt string, opts *generateOptions) error {
	p, _, _, err := newPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	ctx := p.NewContext(opts.params(prompt))

	if opts.dryRun {
		preview := p.DryRun(ctx)
		if done, err := writeStructured(opts.format, preview); done {
			return err
		}
		fmt.Println(cyan("Dry run:"))
		fmt.Printf("  prompt:     %s\n", preview["resolved_prompt"])
		fmt.Printf("  model:      %s\n", preview["model"])
		fmt.Printf("  dimensions: %s\n", preview["dimensions"])
		fmt.Printf("  mode:       %s\n", preview["mode"])
		fmt.Printf("  output:     %s\n", preview["output_path"])
		return nil
	}

	result := p.Run(ctx)
	return reportResult(result, opts.format)
}

func reportResult(result *pipeline.Result, format string) error {
	if done, err := writeStructured(format, resultView(result)); done {
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("generation failed")
		}
		return nil
	}

	if !result.Success {
		printError("Generation failed: %s", result.ErrorMessage)
		return fmt.Errorf("generation failed")
	}
	printSuccess("Saved %s (%.1fs)", result.OutputPath, float64(result.DurationMs)/1000)
	return nil
}

func resultView(result *pipeline.Result) map[string]any {
	view := map[string]any{
		"success":     result.Success,
		"duration_ms": result.DurationMs,
	}
	if result.OutputPath != "" {
		view["output_path"] = result.OutputPath
	}
	if result.ErrorMessage != "" {
		view["error"] = result.ErrorMessage
	}
	if result.Context != nil {
		view["resolved_prompt"] = result.Context.ResolvedPrompt
	}
	if result.Generation != nil && result.Generation.RequestID != "" {
		view["request_id"] = result.Generation.RequestID
	}
	return view
}

func runGenerateSeries(opts *generateOptions) error {
	p, cfg, wd, err := newPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	s, err := series.Load(opts.seriesName, wd)
	if err != nil {
		return err
	}

	// Series config overrides layer over the project config.
	if overrides := s.Config.ToMap(); len(overrides) > 0 {
		layer := map[string]any{}
		if model, ok := overrides["model"]; ok {
			layer["api"] = map[string]any{"model": model}
			delete(overrides, "model")
		}
		if len(overrides) > 0 {
			layer["defaults"] = overrides
		}
		merged, err := config.MergeOverrides(cfg, layer)
		if err != nil {
			return err
		}
		cfg = merged
		p = pipeline.New(cfg, pipeline.WithProjectRoot(wd), pipeline.WithLogger(slog.Default()))
		defer p.Close()
	}

	items := s.Items
	if opts.limit > 0 && len(items) > opts.limit {
		items = items[:opts.limit]
	}

	fmt.Printf("Generating series %s (%d items)\n\n", cyan(s.Name), len(items))

	var failures int
	for i, item := range items {
		if i > 0 && !opts.dryRun {
			time.Sleep(seriesItemDelay)
		}

		params := opts.params(s.Template)
		params.TemplateContext = item.Data
		params.TemplateDefaults = s.Defaults
		params.Series = s.Name
		params.ItemID = item.ID
		if params.Seed == nil && s.Config.Seed != nil {
			params.Seed = s.Config.Seed
		}
		if len(params.ReferenceImages) == 0 {
			params.ReferenceImages = s.Config.ReferenceImage
		}
		ctx := p.NewContext(params)

		if opts.dryRun {
			preview := p.DryRun(ctx)
			fmt.Printf("  %s: %s\n", item.ID, preview["resolved_prompt"])
			continue
		}

		result := p.Run(ctx)
		if result.Success {
			printSuccess("%s: %s", item.ID, result.OutputPath)
		} else {
			failures++
			printError("%s: %s", item.ID, result.ErrorMessage)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d items failed", failures, len(items))
	}
	return nil
}
