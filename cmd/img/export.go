package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhanren/Malden-image-creator/internal/export"
)

type exportOptions struct {
	profile        string
	size           string
	all            bool
	outputDir      string
	maintainAspect bool
	dryRun         bool
}

func newExportCmd() *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export [images...]",
		Short: "Export images to platform asset sets and custom sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.profile, "profile", "", "export profile: ios or android")
	cmd.Flags().StringVar(&opts.size, "size", "", "custom size as WIDTHxHEIGHT (e.g. 100x100)")
	cmd.Flags().BoolVar(&opts.all, "all", false, "apply all built-in profiles")
	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "export", "output directory")
	cmd.Flags().BoolVar(&opts.maintainAspect, "maintain-aspect", true, "maintain aspect ratio for custom sizes")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "preview without writing files")
	return cmd
}

func runExport(images []string, opts *exportOptions) error {
	if len(images) == 0 {
		found, err := defaultImages()
		if err != nil {
			return err
		}
		images = found
	}
	if len(images) == 0 {
		return fmt.Errorf("no images found to export")
	}

	var profiles []export.Profile
	var customWidth, customHeight int

	switch {
	case opts.all:
		profiles = []export.Profile{export.IOSProfile, export.AndroidProfile}
		if opts.size != "" {
			w, h, err := export.ParseSize(opts.size)
			if err != nil {
				return err
			}
			customWidth, customHeight = w, h
		}
	case opts.profile != "":
		p, ok := export.Get(opts.profile)
		if !ok {
			return fmt.Errorf("unknown profile %q. Available profiles: %s", opts.profile, strings.Join(export.List(), ", "))
		}
		profiles = []export.Profile{p}
	case opts.size != "":
		w, h, err := export.ParseSize(opts.size)
		if err != nil {
			return err
		}
		customWidth, customHeight = w, h
	default:
		return fmt.Errorf("specify --profile, --size or --all")
	}

	var exported int
	for _, imagePath := range images {
		img, err := export.LoadImage(imagePath)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))

		if opts.dryRun {
			for _, p := range profiles {
				fmt.Printf("  %s → %s\n", imagePath, filepath.Join(opts.outputDir, p.Name))
			}
			if customWidth > 0 {
				fmt.Printf("  %s → %s (%dx%d)\n", imagePath,
					filepath.Join(opts.outputDir, "custom"), customWidth, customHeight)
			}
			continue
		}

		for _, p := range profiles {
			paths, err := export.ExportProfile(img, name, p, opts.outputDir)
			if err != nil {
				return err
			}
			exported += len(paths)
		}
		if customWidth > 0 {
			if _, err := export.ExportCustomSize(img, name,
				filepath.Join(opts.outputDir, "custom"),
				customWidth, customHeight, opts.maintainAspect, ""); err != nil {
				return err
			}
			exported++
		}
	}

	if opts.dryRun {
		return nil
	}
	printSuccess("Exported %d variants to %s/", exported, opts.outputDir)
	return nil
}

// defaultImages collects generated images from the output directory
// when no explicit paths were given.
func defaultImages() ([]string, error) {
	if _, err := os.Stat("output"); os.IsNotExist(err) {
		return nil, fmt.Errorf("output directory not found. Generate some images first or specify image paths")
	}
	pngs, err := filepath.Glob(filepath.Join("output", "*.png"))
	if err != nil {
		return nil, err
	}
	jpgs, err := filepath.Glob(filepath.Join("output", "*.jpg"))
	if err != nil {
		return nil, err
	}
	return append(pngs, jpgs...), nil
}
