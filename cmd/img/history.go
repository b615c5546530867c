package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhanren/Malden-image-creator/internal/history"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect generation history",
	}
	cmd.AddCommand(
		newHistoryListCmd(),
		newHistoryShowCmd(),
		newHistorySearchCmd(),
		newHistoryStatsCmd(),
	)
	return cmd
}

func historyStore() (*history.Store, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return history.NewStore(wd), nil
}

func printEntries(entries []history.Entry, format string) error {
	if done, err := writeStructured(format, entries); done {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No history entries.")
		return nil
	}
	for _, e := range entries {
		mark := green("✓")
		if e.Status != "success" {
			mark = red("✗")
		}
		fmt.Printf("%s %s  %s  %s\n", mark, e.ID, e.Timestamp.Format("2006-01-02 15:04"), e.Prompt)
	}
	return nil
}

func newHistoryListCmd() *cobra.Command {
	var limit int
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent generations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := historyStore()
			if err != nil {
				return err
			}
			entries, err := store.List(limit)
			if err != nil {
				return err
			}
			return printEntries(entries, format)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries to show")
	cmd.Flags().StringVar(&format, "output-format", "text", "output format: text, json or yaml")
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one history entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := historyStore()
			if err != nil {
				return err
			}
			entry, err := store.Get(args[0])
			if err != nil {
				return err
			}
			if done, err := writeStructured(format, entry); done {
				return err
			}
			fmt.Printf("id:          %s\n", entry.ID)
			fmt.Printf("timestamp:   %s\n", entry.Timestamp.Format("2006-01-02 15:04:05"))
			fmt.Printf("status:      %s\n", entry.Status)
			fmt.Printf("prompt:      %s\n", entry.Prompt)
			if entry.ResolvedPrompt != "" && entry.ResolvedPrompt != entry.Prompt {
				fmt.Printf("resolved:    %s\n", entry.ResolvedPrompt)
			}
			if entry.Series != "" {
				fmt.Printf("series:      %s (%s)\n", entry.Series, entry.ItemID)
			}
			fmt.Printf("model:       %s\n", entry.Model)
			fmt.Printf("size:        %dx%d\n", entry.Width, entry.Height)
			if entry.Seed != nil {
				fmt.Printf("seed:        %d\n", *entry.Seed)
			}
			if entry.OutputPath != "" {
				fmt.Printf("output:      %s\n", entry.OutputPath)
			}
			if entry.Error != "" {
				fmt.Printf("error:       %s\n", entry.Error)
			}
			fmt.Printf("duration:    %dms\n", entry.DurationMs)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "output-format", "text", "output format: text, json or yaml")
	return cmd
}

func newHistorySearchCmd() *cobra.Command {
	var format string
	var seriesName string
	var status string

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search history by prompt text, series or status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := history.Filter{Series: seriesName, Status: status}
			if len(args) > 0 {
				filter.Prompt = args[0]
			}
			if filter == (history.Filter{}) {
				return fmt.Errorf("give a query or at least one of --series, --status")
			}
			store, err := historyStore()
			if err != nil {
				return err
			}
			entries, err := store.Search(filter)
			if err != nil {
				return err
			}
			return printEntries(entries, format)
		},
	}
	cmd.Flags().StringVar(&seriesName, "series", "", "only entries from this series")
	cmd.Flags().StringVar(&status, "status", "", "only entries with this status: success or failed")
	cmd.Flags().StringVar(&format, "output-format", "text", "output format: text, json or yaml")
	return cmd
}

func newHistoryStatsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate history statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := historyStore()
			if err != nil {
				return err
			}
			stats, err := store.Stats()
			if err != nil {
				return err
			}
			if done, err := writeStructured(format, stats); done {
				return err
			}
			fmt.Printf("total:      %d\n", stats.Total)
			fmt.Printf("succeeded:  %d\n", stats.Succeeded)
			fmt.Printf("failed:     %d\n", stats.Failed)
			for model, count := range stats.ByModel {
				fmt.Printf("  %s: %d\n", model, count)
			}
			if stats.SeriesCount > 0 {
				fmt.Printf("series:     %d\n", stats.SeriesCount)
			}
			fmt.Printf("total time: %.1fs\n", float64(stats.TotalDurationMs)/1000)
			fmt.Printf("avg time:   %.1fs\n", float64(stats.AvgDurationMs)/1000)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "output-format", "text", "output format: text, json or yaml")
	return cmd
}
