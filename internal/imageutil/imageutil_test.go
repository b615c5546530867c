package imageutil

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("save test image: %v", err)
	}
}

func TestLoadPNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref.png")
	writeTestPNG(t, path, 8, 8)

	data, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty image data")
	}
}

func TestLoadRelativeToProjectRoot(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "refs")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeTestPNG(t, filepath.Join(sub, "ref.png"), 4, 4)

	if _, err := Load(filepath.Join("refs", "ref.png"), dir); err != nil {
		t.Fatalf("Load relative: %v", err)
	}
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.png"), "")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref.gif")
	if err := os.WriteFile(path, []byte("GIF89a"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path, "")
	var format *FormatError
	if !errors.As(err, &format) {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestLoadCorruptImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref.png")
	if err := os.WriteFile(path, []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path, "")
	var load *LoadError
	if !errors.As(err, &load) {
		t.Fatalf("expected LoadError, got %v", err)
	}
}

func TestLoadAndEncode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref.png")
	writeTestPNG(t, path, 8, 8)

	encoded, raw, err := LoadAndEncode(path, "")
	if err != nil {
		t.Fatalf("LoadAndEncode: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	if string(decoded) != string(raw) {
		t.Fatal("base64 payload does not round-trip to raw bytes")
	}

	img, _, err := image.Decode(bytes.NewReader(decoded))
	if err != nil {
		t.Fatalf("decode image: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 8 {
		t.Fatalf("unexpected dimensions %v", img.Bounds())
	}
}
