package export

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// NotFoundError reports a missing source image.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("image not found: %s", e.Path)
}

// ExportError wraps a failure while reading or writing variants.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// LoadImage decodes a source image from disk.
func LoadImage(path string) (image.Image, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &NotFoundError{Path: path}
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, &ExportError{Path: path, Err: err}
	}
	return img, nil
}

// ResizeWithScale resizes to baseWidth*scale by baseHeight*scale,
// rounding to the nearest pixel.
func ResizeWithScale(img image.Image, baseWidth, baseHeight int, scale float64) image.Image {
	w := int(math.Round(float64(baseWidth) * scale))
	h := int(math.Round(float64(baseHeight) * scale))
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// ResizeToSize resizes to the target dimensions. With maintainAspect
// the image is scaled by the smaller of the two ratios so it fits
// inside the target box without distortion.
func ResizeToSize(img image.Image, width, height int, maintainAspect bool) image.Image {
	if !maintainAspect {
		return imaging.Resize(img, width, height, imaging.Lanczos)
	}
	bounds := img.Bounds()
	ratio := math.Min(
		float64(width)/float64(bounds.Dx()),
		float64(height)/float64(bounds.Dy()),
	)
	w := int(math.Round(float64(bounds.Dx()) * ratio))
	h := int(math.Round(float64(bounds.Dy()) * ratio))
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

func save(img image.Image, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	if err := imaging.Save(img, path); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	return nil
}

// ExportIOS writes name@1x.png, name@2x.png and name@3x.png into
// outDir. Zero base dimensions default to the image's own size.
func ExportIOS(img image.Image, name, outDir string, baseWidth, baseHeight int) ([]string, error) {
	if baseWidth <= 0 || baseHeight <= 0 {
		baseWidth, baseHeight = img.Bounds().Dx(), img.Bounds().Dy()
	}
	var paths []string
	for _, variant := range IOSProfile.sortedScales() {
		path := filepath.Join(outDir, fmt.Sprintf("%s%s.png", name, variant))
		resized := ResizeWithScale(img, baseWidth, baseHeight, IOSProfile.Scales[variant])
		if err := save(resized, path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ExportAndroid writes name.png into one subdirectory per density
// bucket under outDir.
func ExportAndroid(img image.Image, name, outDir string, baseWidth, baseHeight int) ([]string, error) {
	if baseWidth <= 0 || baseHeight <= 0 {
		baseWidth, baseHeight = img.Bounds().Dx(), img.Bounds().Dy()
	}
	var paths []string
	for _, density := range AndroidProfile.sortedScales() {
		path := filepath.Join(outDir, density, name+".png")
		resized := ResizeWithScale(img, baseWidth, baseHeight, AndroidProfile.Scales[density])
		if err := save(resized, path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ExportCustomSize writes one resized variant. The default file name
// carries the target size as a suffix (name_200x150.png); a non-empty
// suffix replaces it.
func ExportCustomSize(img image.Image, name, outDir string, width, height int, maintainAspect bool, suffix string) (string, error) {
	if suffix == "" {
		suffix = fmt.Sprintf("_%dx%d", width, height)
	}
	path := filepath.Join(outDir, name+suffix+".png")
	resized := ResizeToSize(img, width, height, maintainAspect)
	if err := save(resized, path); err != nil {
		return "", err
	}
	return path, nil
}

// ExportProfile applies a named profile to one image, writing under
// outDir/<profile name>.
func ExportProfile(img image.Image, name string, profile Profile, outDir string) ([]string, error) {
	dir := filepath.Join(outDir, profile.Name)
	switch profile.Name {
	case AndroidProfile.Name:
		return ExportAndroid(img, name, dir, 0, 0)
	default:
		return ExportIOS(img, name, dir, 0, 0)
	}
}
