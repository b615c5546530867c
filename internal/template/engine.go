// Package template implements the prompt placeholder grammar:
// {{variable}}, {{variable|default}} and dotted paths like
// {{item.subject}}.
package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// variablePattern matches one placeholder: dotted identifier path with
// an optional inline default after '|'. Defaults may contain anything
// except '}'.
var variablePattern = regexp.MustCompile(
	`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)*)(?:\s*\|\s*([^}]*))?\s*\}\}`)

// Result carries the rendered string plus which variables came from the
// caller's context and which fell back to a default. Callers use the
// split to warn about defaulted values.
type Result struct {
	Rendered        string
	VariablesUsed   []string
	DefaultsApplied []string
}

// SyntaxError reports a malformed template, found before any
// substitution is attempted.
type SyntaxError struct {
	Message string
}

func (e *SyntaxError) Error() string {
	return "template syntax error: " + e.Message
}

// VariableNotFoundError is raised in strict mode when a placeholder has
// no value anywhere. Available lists every dot-flattened key across the
// context and defaults maps.
type VariableNotFoundError struct {
	Variable  string
	Available []string
}

func (e *VariableNotFoundError) Error() string {
	msg := fmt.Sprintf("variable '{{%s}}' not found", e.Variable)
	if len(e.Available) > 0 {
		msg += ". Available variables: " + strings.Join(e.Available, ", ")
	}
	return msg
}

// Engine resolves placeholders against a context map and a defaults
// map. Strict mode fails on unresolved variables; permissive mode
// leaves the placeholder text untouched.
type Engine struct {
	Strict bool
}

func New(strict bool) *Engine {
	return &Engine{Strict: strict}
}

// Validate checks template syntax and returns the variable names in
// encounter order with duplicates removed.
func (e *Engine) Validate(template string) ([]string, error) {
	open := strings.Count(template, "{{")
	closed := strings.Count(template, "}}")
	if open != closed {
		return nil, &SyntaxError{Message: fmt.Sprintf(
			"unbalanced braces: %d '{{' and %d '}}'", open, closed)}
	}
	if strings.Contains(template, "{{{{") || strings.Contains(template, "}}}}") {
		return nil, &SyntaxError{Message: "nested braces are not supported"}
	}

	var variables []string
	seen := map[string]bool{}
	for _, m := range variablePattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			variables = append(variables, m[1])
		}
	}
	return variables, nil
}

// ExtractVariables is Validate under the name callers reach for when
// they only want the variable list.
func (e *Engine) ExtractVariables(template string) ([]string, error) {
	return e.Validate(template)
}

// RequiredVariables returns the variables that the caller must supply:
// those with neither an inline default nor a value in defaults.
func (e *Engine) RequiredVariables(template string, defaults map[string]any) ([]string, error) {
	if _, err := e.Validate(template); err != nil {
		return nil, err
	}

	var required []string
	seen := map[string]bool{}
	for _, m := range variablePattern.FindAllStringSubmatchIndex(template, -1) {
		name := template[m[2]:m[3]]
		if m[4] != -1 {
			continue // has inline default
		}
		if _, ok := nestedValue(defaults, name); ok {
			continue
		}
		if !seen[name] {
			seen[name] = true
			required = append(required, name)
		}
	}
	return required, nil
}

// Render substitutes every placeholder. Each occurrence is resolved
// independently: context first, then defaults, then the inline literal
// trimmed of surrounding whitespace.
func (e *Engine) Render(template string, context, defaults map[string]any) (*Result, error) {
	if _, err := e.Validate(template); err != nil {
		return nil, err
	}
	if context == nil {
		context = map[string]any{}
	}
	if defaults == nil {
		defaults = map[string]any{}
	}

	res := &Result{}
	matches := variablePattern.FindAllStringSubmatchIndex(template, -1)

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(template[last:m[0]])
		name := template[m[2]:m[3]]

		if v, ok := nestedValue(context, name); ok {
			b.WriteString(fmt.Sprint(v))
			res.VariablesUsed = append(res.VariablesUsed, name)
		} else if v, ok := nestedValue(defaults, name); ok {
			b.WriteString(fmt.Sprint(v))
			res.DefaultsApplied = append(res.DefaultsApplied, name)
		} else if m[4] != -1 {
			b.WriteString(strings.TrimSpace(template[m[4]:m[5]]))
			res.DefaultsApplied = append(res.DefaultsApplied, name)
		} else if e.Strict {
			available := append(flattenKeys(context, ""), flattenKeys(defaults, "")...)
			sort.Strings(available)
			return nil, &VariableNotFoundError{Variable: name, Available: available}
		} else {
			b.WriteString(template[m[0]:m[1]])
		}
		last = m[1]
	}
	b.WriteString(template[last:])
	res.Rendered = b.String()
	return res, nil
}

// RenderString renders and returns just the output string.
func (e *Engine) RenderString(template string, context, defaults map[string]any) (string, error) {
	res, err := e.Render(template, context, defaults)
	if err != nil {
		return "", err
	}
	return res.Rendered, nil
}

// nestedValue walks a dotted path through nested maps. A missing
// segment or a non-map in the middle is "not found", never a failure.
func nestedValue(data map[string]any, key string) (any, bool) {
	var current any = data
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// flattenKeys lists every key in a nested map with dot-path notation,
// including the intermediate map keys themselves.
func flattenKeys(data map[string]any, prefix string) []string {
	var keys []string
	for key, value := range data {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		keys = append(keys, full)
		if nested, ok := value.(map[string]any); ok {
			keys = append(keys, flattenKeys(nested, full)...)
		}
	}
	return keys
}
