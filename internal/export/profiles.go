// Package export resizes generated images into platform asset sets
// (iOS scale variants, Android density buckets) and custom sizes.
package export

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Profile is a named set of scale factors applied to an image's base
// size.
type Profile struct {
	Name        string
	Description string
	Scales      map[string]float64
}

// IOSProfile produces the @1x/@2x/@3x variants expected by asset
// catalogs.
var IOSProfile = Profile{
	Name:        "ios",
	Description: "iOS asset scales",
	Scales: map[string]float64{
		"@1x": 1.0,
		"@2x": 2.0,
		"@3x": 3.0,
	},
}

// AndroidProfile produces the standard density buckets.
var AndroidProfile = Profile{
	Name:        "android",
	Description: "Android density buckets",
	Scales: map[string]float64{
		"mdpi":    1.0,
		"hdpi":    1.5,
		"xhdpi":   2.0,
		"xxhdpi":  3.0,
		"xxxhdpi": 4.0,
	},
}

var profiles = map[string]Profile{
	IOSProfile.Name:     IOSProfile,
	AndroidProfile.Name: AndroidProfile,
}

// Get looks up a built-in profile by name.
func Get(name string) (Profile, bool) {
	p, ok := profiles[name]
	return p, ok
}

// List returns the built-in profile names, sorted.
func List() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sortedScales returns the profile's variant names ordered by scale
// factor so export output is deterministic.
func (p Profile) sortedScales() []string {
	names := make([]string, 0, len(p.Scales))
	for name := range p.Scales {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if p.Scales[names[i]] != p.Scales[names[j]] {
			return p.Scales[names[i]] < p.Scales[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

// ParseSize parses a WIDTHxHEIGHT spec like "512x256". Both
// dimensions must be positive.
func ParseSize(spec string) (width, height int, err error) {
	w, h, ok := strings.Cut(spec, "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q: use WIDTHxHEIGHT (e.g. 100x100)", spec)
	}
	width, err = strconv.Atoi(w)
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q: width must be a positive integer", spec)
	}
	height, err = strconv.Atoi(h)
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q: height must be a positive integer", spec)
	}
	return width, height, nil
}
