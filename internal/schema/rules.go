package schema

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rules is the set of header profiles known to the application.
type Rules struct {
	DefaultProfile string     `yaml:"default_profile"`
	Profiles       []*Profile `yaml:"profiles"`

	byName map[string]*Profile
}

// Parse decodes and validates a YAML rules document.
func Parse(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := r.compile(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	return &r, nil
}

// LoadFile reads rules from path. An empty path returns the built-in rules.
func LoadFile(path string) (*Rules, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in profiles seace-v1 through seace-v4.
func Default() (*Rules, error) {
	return Parse(defaultRules)
}

func (r *Rules) compile() error {
	if len(r.Profiles) == 0 {
		return fmt.Errorf("at least one profile is required")
	}

	r.byName = make(map[string]*Profile, len(r.Profiles))
	for _, p := range r.Profiles {
		if p == nil {
			return fmt.Errorf("empty profile entry")
		}
		if err := p.compile(); err != nil {
			return err
		}
		if _, dup := r.byName[p.Name]; dup {
			return fmt.Errorf("profile %q defined twice", p.Name)
		}
		r.byName[p.Name] = p
	}

	if r.DefaultProfile == "" {
		r.DefaultProfile = r.Profiles[0].Name
	}
	if _, ok := r.byName[r.DefaultProfile]; !ok {
		return fmt.Errorf("default_profile %q is not defined", r.DefaultProfile)
	}
	return nil
}

// Get returns a profile by name. An empty name returns the default profile.
func (r *Rules) Get(name string) (*Profile, bool) {
	if name == "" {
		name = r.DefaultProfile
	}
	p, ok := r.byName[name]
	return p, ok
}

// SetDefault changes the default profile.
func (r *Rules) SetDefault(name string) error {
	if _, ok := r.byName[name]; !ok {
		return fmt.Errorf("unknown profile: %s", name)
	}
	r.DefaultProfile = name
	return nil
}

// Names returns all profile names sorted alphabetically.
func (r *Rules) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
