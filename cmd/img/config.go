package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhanren/Malden-image-creator/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate project configuration",
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigValidateCmd())
	return cmd
}

func loadConfig() (*config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.NewLoader(wd, slog.Default()).Load()
}

func newConfigShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if done, err := writeStructured(format, cfg.Raw()); done {
				return err
			}

			fmt.Println(cyan("Resolved configuration:"))
			fmt.Printf("  provider:        %s\n", cfg.API.Provider)
			fmt.Printf("  model:           %s\n", cfg.API.Model)
			fmt.Printf("  timeout:         %ds\n", cfg.API.Timeout)
			fmt.Printf("  max retries:     %d\n", cfg.API.MaxRetries)
			fmt.Printf("  size:            %dx%d\n", cfg.Defaults.Width, cfg.Defaults.Height)
			if cfg.Defaults.Style != "" {
				fmt.Printf("  style:           %s\n", cfg.Defaults.Style)
			}
			if cfg.Defaults.NegativePrompt != "" {
				fmt.Printf("  negative prompt: %s\n", cfg.Defaults.NegativePrompt)
			}
			if len(cfg.Defaults.ReferenceImage) > 0 {
				fmt.Printf("  reference image: %v\n", []string(cfg.Defaults.ReferenceImage))
			}
			fmt.Printf("  output dir:      %s\n", cfg.Output.BaseDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "output-format", "text", "output format: text, json or yaml")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the project configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if err == nil {
				printSuccess("Configuration is valid.")
				return nil
			}

			var notFound *config.NotFoundError
			if errors.As(err, &notFound) {
				printWarning("%v", notFound)
				return nil
			}
			return err
		},
	}
}
