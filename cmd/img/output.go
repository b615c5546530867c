package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
)

func printSuccess(format string, args ...any) {
	fmt.Printf(green("✓ ")+format+"\n", args...)
}

func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, red("✗ ")+format+"\n", args...)
}

func printWarning(format string, args ...any) {
	fmt.Printf(yellow("⚠ ")+format+"\n", args...)
}

// writeStructured renders v as JSON or YAML for machine consumption.
// It returns false for the text format so the caller prints its own
// human-readable output.
func writeStructured(format string, v any) (bool, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return true, err
		}
		fmt.Println(string(data))
		return true, nil
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return true, err
		}
		fmt.Print(string(data))
		return true, nil
	}
	return false, nil
}
