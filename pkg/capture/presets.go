package capture

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Preset names for common camera modes.
const (
	PresetQVGA  = "qvga"
	PresetVGA   = "vga"
	Preset720p  = "720p"
	Preset1080p = "1080p"
	Preset4K    = "4k"
)

var presets = map[string]Resolution{
	PresetQVGA:  {Width: 320, Height: 240},
	PresetVGA:   {Width: 640, Height: 480},
	Preset720p:  {Width: 1280, Height: 720},
	Preset1080p: {Width: 1920, Height: 1080},
	Preset4K:    {Width: 3840, Height: 2160},
}

// Preset returns the resolution for a named preset.
func Preset(name string) (Resolution, bool) {
	r, ok := presets[strings.ToLower(name)]
	return r, ok
}

// PresetNames returns the preset names ordered by pixel count.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := presets[names[i]], presets[names[j]]
		return a.Width*a.Height < b.Width*b.Height
	})
	return names
}

// ParseResolution accepts a preset name ("720p"), "WxH" ("1280x720"),
// or "0x0" / "" / "none" to clear a setting.
func ParseResolution(s string) (Resolution, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "none" {
		return Resolution{}, nil
	}
	if r, ok := presets[s]; ok {
		return r, nil
	}

	ws, hs, found := strings.Cut(s, "x")
	if !found {
		return Resolution{}, fmt.Errorf("%w: %q (want WxH or one of %s)",
			ErrInvalidResolution, s, strings.Join(PresetNames(), ", "))
	}
	w, werr := strconv.Atoi(ws)
	h, herr := strconv.Atoi(hs)
	if werr != nil || herr != nil {
		return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidResolution, s)
	}
	r := Resolution{Width: w, Height: h}
	if err := r.Validate(); err != nil {
		return Resolution{}, err
	}
	return r, nil
}
