// Package config loads, validates and hot-reloads the YAML profile
// documents described in spec.md §6.3: named bundles of per-role agent
// settings, sandbox defaults, tracker selection and retry policy.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/amelia-orch/amelia/internal/state"
)

// Document is the top-level shape of a profiles.yaml file: a map of
// profile name to profile body, keyed under "profiles".
type Document struct {
	Profiles map[string]state.Profile `yaml:"profiles"`
}

// rawDocument mirrors Document but keeps each profile as a yaml.Node so the
// legacy flat driver:/model: shape can be detected before the strict
// Profile struct is decoded.
type rawDocument struct {
	Profiles map[string]yaml.Node `yaml:"profiles"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads path, rejects the legacy flat profile shape, decodes into
// named state.Profile values and validates every one. Profile.Name is
// filled in from its map key.
func Load(path string) (map[string]state.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{Path: path, Err: ErrConfigNotFound}
		}
		return nil, &LoadError{Path: path, Err: err}
	}
	return Parse(data)
}

// Parse decodes YAML content already read into memory, separated from
// Load so callers that already hold the file's bytes don't need to read
// it again.
func Parse(data []byte) (map[string]state.Profile, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	profiles := make(map[string]state.Profile, len(raw.Profiles))
	names := sortedKeys(raw.Profiles)
	for _, name := range names {
		node := raw.Profiles[name]

		if legacy, migrated := detectLegacyShape(name, &node); legacy {
			return nil, &LegacyShapeError{Profile: name, MigratedYAML: migrated}
		}

		var p state.Profile
		if err := node.Decode(&p); err != nil {
			return nil, fmt.Errorf("%w: profile %q: %v", ErrInvalidYAML, name, err)
		}
		p.Name = name

		if err := validate.Struct(p); err != nil {
			return nil, &ValidationError{Profile: name, Err: err}
		}

		profiles[name] = p
	}

	return profiles, nil
}

// detectLegacyShape reports whether a profile node carries top-level
// driver:/model: keys (the shape profiles used before agents became a
// per-role map) and, if so, renders the nested shape it should migrate to.
func detectLegacyShape(name string, node *yaml.Node) (bool, string) {
	if node.Kind != yaml.MappingNode {
		return false, ""
	}

	var driver, model string
	hasDriver, hasModel := false, false
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		switch key {
		case "driver":
			driver = node.Content[i+1].Value
			hasDriver = true
		case "model":
			model = node.Content[i+1].Value
			hasModel = true
		}
	}
	if !hasDriver && !hasModel {
		return false, ""
	}

	migrated := state.Profile{
		Name: name,
		Agents: map[state.Role]state.AgentConfig{
			state.RoleArchitect: {Driver: state.DriverKey(driver), Model: model},
			state.RoleDeveloper: {Driver: state.DriverKey(driver), Model: model},
			state.RoleReviewer:  {Driver: state.DriverKey(driver), Model: model},
		},
	}
	out, err := yaml.Marshal(Document{Profiles: map[string]state.Profile{name: migrated}})
	if err != nil {
		out = []byte(fmt.Sprintf("# driver: %s, model: %s (migration render failed: %v)", driver, model, err))
	}
	return true, string(out)
}

func sortedKeys(m map[string]yaml.Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Path resolves a config directory to the profiles file Load should read
// by joining "profiles.yaml" onto it; a file path passed in is treated as
// a directory like any other. Mirrors the single-file-per-concern layout the
// rest of the pack's YAML loaders use.
func Path(configDir string) string {
	return filepath.Join(configDir, "profiles.yaml")
}
