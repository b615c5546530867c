package template

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestRenderBasic(t *testing.T) {
	e := New(true)

	res, err := e.Render("{{style}} icon of {{subject}}",
		map[string]any{"subject": "home"},
		map[string]any{"style": "flat"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if res.Rendered != "flat icon of home" {
		t.Errorf("rendered = %q, want %q", res.Rendered, "flat icon of home")
	}
	if !reflect.DeepEqual(res.VariablesUsed, []string{"subject"}) {
		t.Errorf("variables_used = %v, want [subject]", res.VariablesUsed)
	}
	if !reflect.DeepEqual(res.DefaultsApplied, []string{"style"}) {
		t.Errorf("defaults_applied = %v, want [style]", res.DefaultsApplied)
	}
}

func TestRenderInlineDefault(t *testing.T) {
	e := New(true)

	tests := []struct {
		template string
		context  map[string]any
		want     string
	}{
		{"{{color|blue}}", nil, "blue"},
		{"{{color|blue}}", map[string]any{"color": "red"}, "red"},
		{"{{color| spaced default }}", nil, "spaced default"},
		{"{{a|x}} {{a|y}}", nil, "x y"}, // each occurrence resolved independently
	}

	for _, tt := range tests {
		got, err := e.RenderString(tt.template, tt.context, nil)
		if err != nil {
			t.Errorf("RenderString(%q) error: %v", tt.template, err)
			continue
		}
		if got != tt.want {
			t.Errorf("RenderString(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestRenderDottedPath(t *testing.T) {
	e := New(true)

	context := map[string]any{
		"item": map[string]any{"subject": "gear cog", "id": 7},
	}

	got, err := e.RenderString("icon of {{item.subject}} #{{item.id}}", context, nil)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got != "icon of gear cog #7" {
		t.Errorf("rendered = %q", got)
	}

	// A dotted path through a non-map is "not found", not a crash.
	_, err = e.RenderString("{{item.subject.deeper}}", context, nil)
	var notFound *VariableNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected VariableNotFoundError, got %v", err)
	}
}

func TestRenderStrictMissingListsKeys(t *testing.T) {
	e := New(true)

	_, err := e.Render("{{missing}}",
		map[string]any{"a": 1, "nested": map[string]any{"b": 2}},
		map[string]any{"c": 3})

	var notFound *VariableNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected VariableNotFoundError, got %v", err)
	}
	if notFound.Variable != "missing" {
		t.Errorf("variable = %q", notFound.Variable)
	}
	for _, key := range []string{"a", "nested", "nested.b", "c"} {
		if !contains(notFound.Available, key) {
			t.Errorf("available %v should include %q", notFound.Available, key)
		}
	}
}

func TestRenderPermissiveKeepsPlaceholder(t *testing.T) {
	e := New(false)

	got, err := e.RenderString("keep {{missing}} as-is", nil, nil)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got != "keep {{missing}} as-is" {
		t.Errorf("rendered = %q", got)
	}
}

func TestRenderIdempotentOnResolvedOutput(t *testing.T) {
	e := New(true)

	first, err := e.RenderString("{{style|flat}} icon", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.RenderString(first, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Errorf("rendering resolved output changed it: %q -> %q", first, second)
	}
}

func TestValidate(t *testing.T) {
	e := New(true)

	vars, err := e.Validate("{{a}} {{a}} {{b}}")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !reflect.DeepEqual(vars, []string{"a", "b"}) {
		t.Errorf("variables = %v, want [a b]", vars)
	}
}

func TestValidateSyntaxErrors(t *testing.T) {
	e := New(true)

	tests := []struct {
		template string
		fragment string
	}{
		{"{{unclosed", "unbalanced"},
		{"closed}} {{a}}", "unbalanced"},
		{"{{{{a}}}}", "nested"},
		{"{{a}} {{{{b}}}}", "nested"},
	}

	for _, tt := range tests {
		_, err := e.Validate(tt.template)
		var syntaxErr *SyntaxError
		if !errors.As(err, &syntaxErr) {
			t.Errorf("Validate(%q): expected SyntaxError, got %v", tt.template, err)
			continue
		}
		if !strings.Contains(err.Error(), tt.fragment) {
			t.Errorf("Validate(%q) error %q should mention %q", tt.template, err, tt.fragment)
		}
	}

	// Render refuses bad syntax before substituting anything.
	_, err := e.Render("{{ok}} {{unclosed", map[string]any{"ok": "v"}, nil)
	var syntaxErr *SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("Render should fail on syntax before substitution, got %v", err)
	}
}

func TestRequiredVariables(t *testing.T) {
	e := New(true)

	required, err := e.RequiredVariables(
		"{{a}} {{b|x}} {{c}} {{a}}",
		map[string]any{"c": "provided"})
	if err != nil {
		t.Fatalf("RequiredVariables failed: %v", err)
	}
	if !reflect.DeepEqual(required, []string{"a"}) {
		t.Errorf("required = %v, want [a]", required)
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
