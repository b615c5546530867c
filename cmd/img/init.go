package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zhanren/Malden-image-creator/internal/config"
)

const defaultConfigTemplate = `# imgcreator configuration

# API configuration
api:
  provider: volcengine
  # Model options: "图片生成4.0", "文生图3.1", "文生图3.0", "图生图3.0"
  model: "图片生成4.0"

# Default generation settings
defaults:
  width: 1024
  height: 1024
  # Default style applied to all prompts
  style: "flat, minimal, modern"

# Output configuration
output:
  base_dir: ./output
  # Naming pattern: {timestamp}_{id}.png
  naming: "{timestamp}_{id}"

# Export profiles
export:
  ios:
    enabled: true
    scales: ["@1x", "@2x", "@3x"]
  android:
    enabled: true
    densities: ["mdpi", "hdpi", "xhdpi", "xxhdpi", "xxxhdpi"]
  custom:
    # Add custom sizes here
    # - width: 100
    #   height: 100
    #   suffix: "_thumb"
`

const envExampleTemplate = `# imgcreator environment variables
# Copy this file to .env and fill in your credentials

# Volcengine access key pair (required)
VOLCENGINE_ACCESS_KEY_ID=your_access_key_id
VOLCENGINE_SECRET_ACCESS_KEY=your_secret_access_key
`

const seriesReadmeTemplate = `# Series definitions

Place series YAML files in this directory.

Example: app-icons.yaml

    name: app-icons
    template: "{{style}} icon of {{subject}}, {{constraints}}"
    defaults:
      style: "flat, minimal, modern"
      constraints: "single color, centered, no text"
    config:
      width: 512
      height: 512
    items:
      - id: home
        subject: "home house"
      - id: settings
        subject: "gear cog"
`

const gitignoreTemplate = `# imgcreator generated files
output/
export/
.imgcreator/

# Environment
.env
`

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [name]",
		Short: "Initialize a new imgcreator project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "."
			if len(args) == 1 {
				name = args[0]
			}
			return runInit(name, force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "reinitialize an existing project")
	return cmd
}

func runInit(name string, force bool) error {
	projectPath := name
	if name == "." {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		projectPath = wd
	}
	projectName := filepath.Base(projectPath)

	configPath := filepath.Join(projectPath, config.ProjectConfigName)
	if _, err := os.Stat(configPath); err == nil && !force {
		printWarning("Project already exists at %s", projectPath)
		fmt.Println("Use --force to reinitialize (existing files are preserved).")
		return nil
	}

	fmt.Printf("Initializing imgcreator project: %s\n\n", cyan(projectName))

	for _, dir := range []string{projectPath, filepath.Join(projectPath, "series"), filepath.Join(projectPath, "output")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	files := []struct {
		path    string
		content string
	}{
		{configPath, defaultConfigTemplate},
		{filepath.Join(projectPath, ".env.example"), envExampleTemplate},
		{filepath.Join(projectPath, "series", "README.md"), seriesReadmeTemplate},
		{filepath.Join(projectPath, ".gitignore"), gitignoreTemplate},
	}
	for _, f := range files {
		if _, err := os.Stat(f.path); err == nil {
			continue
		}
		if err := os.WriteFile(f.path, []byte(f.content), 0o644); err != nil {
			return fmt.Errorf("create %s: %w", f.path, err)
		}
	}

	printSuccess("Project initialized successfully!")
	fmt.Println()
	fmt.Println("Project structure:")
	fmt.Printf("  %s/\n", projectPath)
	fmt.Println("  ├── imgcreator.yaml    # Project configuration")
	fmt.Println("  ├── .env.example       # Credentials template")
	fmt.Println("  ├── .gitignore         # Git ignore rules")
	fmt.Println("  ├── series/            # Series definitions")
	fmt.Println("  └── output/            # Generated images")
	fmt.Println()
	fmt.Println(cyan("Next steps:"))
	fmt.Println("  1. Copy .env.example to .env and add your Volcengine access keys")
	fmt.Println("  2. Edit imgcreator.yaml to customize defaults")
	fmt.Println("  3. Create a series definition in series/")
	fmt.Println("  4. Run: img generate \"your prompt\"")
	return nil
}
