// Package series loads batch-generation definitions: a prompt template
// plus per-item variable sets, stored as YAML files under the
// project's series directory.
package series

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zhanren/Malden-image-creator/internal/config"
)

// DirName is the series directory under the project root.
const DirName = "series"

// NotFoundError reports a missing series file.
type NotFoundError struct {
	Name      string
	Dir       string
	Available []string
}

func (e *NotFoundError) Error() string {
	avail := "none"
	if len(e.Available) > 0 {
		avail = strings.Join(e.Available, ", ")
	}
	return fmt.Sprintf("series %q not found in %s.\nAvailable series: %s", e.Name, e.Dir, avail)
}

// ValidationError reports an invalid series definition.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid series %s: %s", e.Path, e.Message)
}

// Overrides are per-series settings layered over the project config.
// Nil pointers mean "keep the project value".
type Overrides struct {
	Width          *int    `yaml:"width"`
	Height         *int    `yaml:"height"`
	Model          *string `yaml:"model"`
	Style          *string `yaml:"style"`
	NegativePrompt *string `yaml:"negative_prompt"`
	Seed           *int64  `yaml:"seed"`

	// ReferenceImage switches every item into image-to-image mode.
	ReferenceImage config.StringList `yaml:"reference_image"`
}

// ToMap converts set overrides into a config override layer.
func (o *Overrides) ToMap() map[string]any {
	out := map[string]any{}
	if o.Width != nil {
		out["width"] = *o.Width
	}
	if o.Height != nil {
		out["height"] = *o.Height
	}
	if o.Model != nil {
		out["model"] = *o.Model
	}
	if o.Style != nil {
		out["style"] = *o.Style
	}
	if o.NegativePrompt != nil {
		out["negative_prompt"] = *o.NegativePrompt
	}
	if o.Seed != nil {
		out["seed"] = *o.Seed
	}
	if len(o.ReferenceImage) > 0 {
		out["reference_image"] = o.ReferenceImage
	}
	return out
}

// Item is one entry of a series: an id and the variable values fed to
// the prompt template.
type Item struct {
	ID   string
	Data map[string]any
}

// Series is one batch-generation definition.
type Series struct {
	Name     string
	Template string
	Defaults map[string]any
	Config   Overrides
	Items    []Item
	Path     string
}

// Len returns the number of items.
func (s *Series) Len() int { return len(s.Items) }

// Loader finds and parses series files for one project.
type Loader struct {
	dir string
}

// NewLoader builds a loader for the given project root.
func NewLoader(projectRoot string) *Loader {
	return &Loader{dir: filepath.Join(projectRoot, DirName)}
}

// List returns the names of all series files, sorted, without their
// extension.
func (l *Loader) List() []string {
	dirents, err := os.ReadDir(l.dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if strings.HasSuffix(name, ".yaml") {
			names = append(names, strings.TrimSuffix(name, ".yaml"))
		} else if strings.HasSuffix(name, ".yml") {
			names = append(names, strings.TrimSuffix(name, ".yml"))
		}
	}
	sort.Strings(names)
	return names
}

// Load parses one series by name.
func (l *Loader) Load(name string) (*Series, error) {
	path := filepath.Join(l.dir, name+".yaml")
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(l.dir, name+".yml")
		if _, err := os.Stat(path); err != nil {
			return nil, &NotFoundError{Name: name, Dir: l.dir, Available: l.List()}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read series %s: %w", path, err)
	}

	var raw struct {
		Name     string           `yaml:"name"`
		Template string           `yaml:"template"`
		Defaults map[string]any   `yaml:"defaults"`
		Config   Overrides        `yaml:"config"`
		RefImage yaml.Node        `yaml:"reference_image"`
		Items    []map[string]any `yaml:"items"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Path: path, Message: fmt.Sprintf("invalid YAML: %v", err)}
	}

	if raw.Name == "" {
		return nil, &ValidationError{Path: path, Message: "missing 'name' field"}
	}
	if raw.Template == "" {
		return nil, &ValidationError{Path: path, Message: "missing 'template' field"}
	}
	if raw.Items == nil {
		return nil, &ValidationError{Path: path, Message: "missing 'items' field"}
	}

	s := &Series{
		Name:     raw.Name,
		Template: raw.Template,
		Defaults: raw.Defaults,
		Config:   raw.Config,
		Path:     path,
	}
	if s.Defaults == nil {
		s.Defaults = map[string]any{}
	}

	// reference_image may also appear at the top level.
	if len(s.Config.ReferenceImage) == 0 && raw.RefImage.Kind != 0 {
		var single string
		var many []string
		if err := raw.RefImage.Decode(&single); err == nil && single != "" {
			s.Config.ReferenceImage = []string{single}
		} else if err := raw.RefImage.Decode(&many); err == nil {
			s.Config.ReferenceImage = many
		}
	}

	for i, itemData := range raw.Items {
		id, ok := itemData["id"].(string)
		if !ok || id == "" {
			return nil, &ValidationError{Path: path, Message: fmt.Sprintf("item %d missing 'id' field", i)}
		}
		vars := make(map[string]any, len(itemData)-1)
		for k, v := range itemData {
			if k != "id" {
				vars[k] = v
			}
		}
		s.Items = append(s.Items, Item{ID: id, Data: vars})
	}

	return s, nil
}

// LoadDefault loads the single series of the project. It returns nil
// without error when zero or multiple series exist, so the caller can
// explain which names are available.
func (l *Loader) LoadDefault() (*Series, error) {
	names := l.List()
	if len(names) != 1 {
		return nil, nil
	}
	return l.Load(names[0])
}

// Load resolves a series by name, or the project default when name is
// empty.
func Load(name, projectRoot string) (*Series, error) {
	l := NewLoader(projectRoot)
	if name != "" {
		return l.Load(name)
	}
	s, err := l.LoadDefault()
	if err != nil {
		return nil, err
	}
	if s == nil {
		available := l.List()
		if len(available) == 0 {
			return nil, &NotFoundError{Name: "(default)", Dir: l.dir}
		}
		return nil, fmt.Errorf("multiple series available, pick one with --series: %s", strings.Join(available, ", "))
	}
	return s, nil
}
