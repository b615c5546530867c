package config

import (
	"fmt"
	"strings"
)

// MissingEnvError reports a ${VAR} placeholder with no matching
// environment variable and no inline default.
type MissingEnvError struct {
	Var string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("environment variable %q is not set. Set it with: export %s=your_value", e.Var, e.Var)
}

// NotFoundError reports a missing project configuration file. It is
// distinct from ValidationError so callers can offer to scaffold a new
// project instead of complaining about config contents.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("project config not found: %s\nRun 'img init' to create a new project.", e.Path)
}

// ValidationError carries every violation found in a merged config.
// Validation never stops at the first problem.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration validation failed:")
	for _, p := range e.Problems {
		b.WriteString("\n  - ")
		b.WriteString(p)
	}
	return b.String()
}
