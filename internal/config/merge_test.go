package config

import (
	"reflect"
	"testing"
)

func TestDeepMerge(t *testing.T) {
	base := map[string]any{
		"api": map[string]any{
			"model":   "ModelA",
			"timeout": 60,
		},
	}
	override := map[string]any{
		"api": map[string]any{
			"model": "ModelB",
		},
		"defaults": map[string]any{
			"width":  512,
			"height": 512,
		},
	}

	got := DeepMerge(base, override)

	want := map[string]any{
		"api": map[string]any{
			"model":   "ModelB",
			"timeout": 60,
		},
		"defaults": map[string]any{
			"width":  512,
			"height": 512,
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DeepMerge = %v, want %v", got, want)
	}
}

func TestDeepMergeDoesNotMutateInputs(t *testing.T) {
	base := map[string]any{
		"api": map[string]any{"model": "ModelA"},
	}
	override := map[string]any{
		"api": map[string]any{"model": "ModelB"},
	}

	DeepMerge(base, override)

	if base["api"].(map[string]any)["model"] != "ModelA" {
		t.Error("DeepMerge mutated base")
	}
	if override["api"].(map[string]any)["model"] != "ModelB" {
		t.Error("DeepMerge mutated override")
	}
}

func TestDeepMergeReplacesArrays(t *testing.T) {
	base := map[string]any{
		"export": map[string]any{"scales": []any{"@1x", "@2x", "@3x"}},
	}
	override := map[string]any{
		"export": map[string]any{"scales": []any{"@2x"}},
	}

	got := DeepMerge(base, override)

	scales := got["export"].(map[string]any)["scales"].([]any)
	if len(scales) != 1 || scales[0] != "@2x" {
		t.Errorf("arrays must be replaced, not concatenated: %v", scales)
	}
}

func TestDeepMergeScalarReplacesMap(t *testing.T) {
	base := map[string]any{"a": map[string]any{"b": 1}}
	override := map[string]any{"a": "flat"}

	got := DeepMerge(base, override)
	if got["a"] != "flat" {
		t.Errorf("override scalar should replace base map: %v", got["a"])
	}
}
