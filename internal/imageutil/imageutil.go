// Package imageutil loads and encodes reference images for
// image-conditioned generation.
package imageutil

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

var supportedExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// NotFoundError reports a missing reference image file.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("reference image not found: %s\nCheck that the file exists and path is correct.", e.Path)
}

// FormatError reports an unsupported image extension.
type FormatError struct {
	Path string
	Ext  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unsupported image format %q for %s. Supported formats: .jpeg, .jpg, .png", e.Ext, e.Path)
}

// LoadError reports an image that exists but cannot be decoded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("cannot read image file %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Resolve turns a possibly-relative image path into an absolute one,
// resolving relative paths against the project root.
func Resolve(path, projectRoot string) string {
	if filepath.IsAbs(path) || projectRoot == "" {
		return path
	}
	return filepath.Join(projectRoot, path)
}

// Load reads a reference image, validates that it decodes, and returns
// it re-encoded in its own format.
func Load(path, projectRoot string) ([]byte, error) {
	resolved := Resolve(path, projectRoot)

	if _, err := os.Stat(resolved); os.IsNotExist(err) {
		return nil, &NotFoundError{Path: path}
	}

	ext := strings.ToLower(filepath.Ext(resolved))
	if !supportedExts[ext] {
		return nil, &FormatError{Path: path, Ext: ext}
	}

	img, err := imaging.Open(resolved)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return nil, &FormatError{Path: path, Ext: ext}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return buf.Bytes(), nil
}

// EncodeBase64 encodes image bytes without a data-URI prefix, as the
// vendor API expects.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// LoadAndEncode loads an image and returns its base64 encoding along
// with the raw bytes.
func LoadAndEncode(path, projectRoot string) (string, []byte, error) {
	data, err := Load(path, projectRoot)
	if err != nil {
		return "", nil, err
	}
	return EncodeBase64(data), data, nil
}
