package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var version = "dev"

type rootOptions struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "img",
		Short:         "Generate images from text prompts with Jimeng AI",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			var handler slog.Handler
			if cmd.Name() == "serve" {
				if !opts.verbose {
					level = slog.LevelInfo
				}
				handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
			} else {
				handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
			}
			slog.SetDefault(slog.New(handler))

			// serve installs its own handler for graceful
			// shutdown; every other command aborts cleanly.
			if cmd.Name() != "serve" {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, os.Interrupt)
				go func() {
					<-sigCh
					fmt.Fprintln(os.Stderr, "Aborted.")
					os.Exit(130)
				}()
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logging")

	cmd.AddCommand(
		newInitCmd(),
		newConfigCmd(),
		newGenerateCmd(),
		newHistoryCmd(),
		newExportCmd(),
		newServeCmd(),
	)
	return cmd
}
