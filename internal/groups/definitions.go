package groups

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type definitionsFile struct {
	Groups []Definition `yaml:"groups"`
}

// LoadDefinitions reads group definitions from a YAML file. An empty path
// yields the built-in defaults.
func LoadDefinitions(path string) ([]Definition, error) {
	if path == "" {
		return DefaultDefinitions(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open groups file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseDefinitions(f)
}

// ParseDefinitions decodes and checks a YAML document of the form
// `groups: [{name, color, max_size, templates: {...}}]`.
func ParseDefinitions(r io.Reader) ([]Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc definitionsFile
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("groups file is empty")
		}
		return nil, fmt.Errorf("failed to decode groups file: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Groups))
	for i, def := range doc.Groups {
		if def.Name == "" {
			return nil, fmt.Errorf("group %d: name is required", i)
		}
		if def.MaxSize < 0 {
			return nil, fmt.Errorf("group %q: max_size must not be negative", def.Name)
		}
		if _, dup := seen[def.Name]; dup {
			return nil, fmt.Errorf("group %q: defined twice", def.Name)
		}
		seen[def.Name] = struct{}{}
	}

	return doc.Groups, nil
}

// DefaultDefinitions returns the groups used when no file is configured.
func DefaultDefinitions() []Definition {
	shared := Templates{
		Leave:         []string{"see you next time!", "thanks for stopping by"},
		HeartResponse: []string{"thanks for the love :redheart:", "keep them coming :biceps:"},
		ChatResponse:  []string{"good point", "ha, agreed :crazyface:"},
	}

	team := func(name, color string) Definition {
		t := shared
		t.Join = []string{
			"welcome to team " + name + "! :biceps:",
			"you're on team " + name + " now :trophy:",
		}
		t.Full = []string{"team " + name + " is full, stick around for a spot"}
		t.Periodic = []string{
			"team " + name + ", send some hearts! :redheart:",
			"how is everyone on team " + name + " doing?",
		}
		return Definition{Name: name, Color: color, MaxSize: 500, Templates: t}
	}

	return []Definition{
		team("sunrise", "vivid tangerine"),
		team("lagoon", "sky blue"),
		team("meadow", "fern"),
	}
}
