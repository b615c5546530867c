package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ValidModels lists the Jimeng AI model names accepted in api.model.
var ValidModels = []string{
	"图片生成4.0",
	"文生图3.1",
	"文生图3.0",
	"图生图3.0",
}

// ValidProviders lists the accepted api.provider values.
var ValidProviders = []string{"volcengine"}

type Config struct {
	API      APIConfig      `yaml:"api"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Output   OutputConfig   `yaml:"output"`
	Export   ExportConfig   `yaml:"export"`

	// raw is the merged tree the struct was decoded from. Kept for
	// override layering and for printing the resolved configuration.
	raw map[string]any
}

type APIConfig struct {
	Provider   string  `yaml:"provider"`
	Model      string  `yaml:"model"`
	Timeout    int     `yaml:"timeout"` // seconds
	MaxRetries int     `yaml:"max_retries"`
	RetryDelay float64 `yaml:"retry_delay"` // seconds, doubled per retry
}

type DefaultsConfig struct {
	Width          int        `yaml:"width"`
	Height         int        `yaml:"height"`
	Style          string     `yaml:"style"`
	NegativePrompt string     `yaml:"negative_prompt"`
	ReferenceImage StringList `yaml:"reference_image"`
}

type OutputConfig struct {
	BaseDir string `yaml:"base_dir"`
	Naming  string `yaml:"naming"`
	Format  string `yaml:"format"`
}

type ExportConfig struct {
	IOS     ExportIOSConfig     `yaml:"ios"`
	Android ExportAndroidConfig `yaml:"android"`
	Custom  []CustomSizeConfig  `yaml:"custom"`
}

type ExportIOSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Scales  []string `yaml:"scales"`
}

type ExportAndroidConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Densities []string `yaml:"densities"`
}

type CustomSizeConfig struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Suffix string `yaml:"suffix"`
}

// StringList accepts either a single scalar or a sequence of strings in
// YAML. The vendor contract allows one or many reference images, so the
// config does too.
type StringList []string

func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*s = StringList{single}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := value.Decode(&many); err != nil {
			return err
		}
		*s = StringList(many)
		return nil
	}
	return fmt.Errorf("reference_image: expected a string path or a list of string paths")
}

func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Provider:   "volcengine",
			Model:      "文生图3.0",
			Timeout:    60,
			MaxRetries: 3,
			RetryDelay: 1.0,
		},
		Defaults: DefaultsConfig{
			Width:  1024,
			Height: 1024,
		},
		Output: OutputConfig{
			BaseDir: "./output",
			Naming:  "{timestamp}_{id}",
			Format:  "png",
		},
		Export: ExportConfig{
			IOS: ExportIOSConfig{
				Enabled: true,
				Scales:  []string{"@1x", "@2x", "@3x"},
			},
			Android: ExportAndroidConfig{
				Enabled:   true,
				Densities: []string{"mdpi", "hdpi", "xhdpi", "xxhdpi", "xxxhdpi"},
			},
		},
	}
}

// Raw returns the merged tree the config was built from.
func (c *Config) Raw() map[string]any {
	return c.raw
}

// fromMap decodes a merged, substituted tree into a Config. Sections
// absent from the tree keep their built-in defaults, so every field has
// a concrete value afterwards.
func fromMap(merged map[string]any) (*Config, error) {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode merged config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode merged config: %w", err)
	}
	cfg.raw = merged
	return cfg, nil
}
