package config

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"sigs.k8s.io/yaml"
)

//go:embed default/presets/*.yaml
var presetFiles embed.FS

const presetDir = "default/presets"

// ErrUnknownPreset is returned when a named preset doesn't exist.
var ErrUnknownPreset = errors.New("unknown preset")

// PresetNames lists the builtin sweeps in alphabetical order.
func PresetNames() []string {
	entries, err := presetFiles.ReadDir(presetDir)
	if err != nil {
		panic(err)
	}

	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Preset loads a builtin sweep by name.
func Preset(name string) (Sweep, error) {
	data, err := presetFiles.ReadFile(path.Join(presetDir, name+".yaml"))
	if err != nil {
		return Sweep{}, fmt.Errorf("%w: %q, choose one of: %q", ErrUnknownPreset, name, PresetNames())
	}

	var out Sweep
	if err := yaml.UnmarshalStrict(data, &out); err != nil {
		return Sweep{}, fmt.Errorf("preset %q: %w", name, err)
	}
	return out, nil
}

// UsePreset replaces the configured sweep with a builtin one.
func (c *Configuration) UsePreset(name string) error {
	sweep, err := Preset(name)
	if err != nil {
		return err
	}
	c.Sweep = sweep
	return c.Validate()
}
