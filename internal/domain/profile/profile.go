package profile

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-yaml"

	"github.com/GriffinCanCode/lifescope/internal/domain/scope"
	"github.com/GriffinCanCode/lifescope/internal/domain/session"
)

var (
	// ErrUnknownProfile is returned by Set.Get for a missing name.
	ErrUnknownProfile = errors.New("unknown session profile")
	// ErrUnknownModule is returned when a profile names a module absent from the catalog.
	ErrUnknownModule = errors.New("unknown module")
)

// Profile is one named session preset
type Profile struct {
	Name               string   `yaml:"name"`
	Tag                string   `yaml:"tag"`
	AutoSave           bool     `yaml:"auto_save"`
	AutoCloseWhenEmpty bool     `yaml:"auto_close_when_empty"`
	Modules            []string `yaml:"modules"`

	tag scope.Tag
}

// ScopeTag returns the parsed tag
func (p Profile) ScopeTag() scope.Tag { return p.tag }

// Catalog maps module names used in profiles to modules.
type Catalog map[string]scope.Module

// Apply configures b from p. Unknown modules make b.Build fail.
func (p Profile) Apply(b *session.Builder, catalog Catalog) *session.Builder {
	for _, name := range p.Modules {
		m, ok := catalog[name]
		if !ok {
			return b.Fail(fmt.Errorf("profile %q: %w %q", p.Name, ErrUnknownModule, name))
		}
		b.WithModule(m)
	}
	if p.AutoSave {
		b.WithAutoSave()
	}
	if p.AutoCloseWhenEmpty {
		b.AutoCloseWhenEmpty()
	}
	return b
}

// Set is a validated collection of profiles keyed by name
type Set struct {
	profiles map[string]Profile
}

type file struct {
	Profiles []Profile `yaml:"profiles"`
}

// Parse decodes and validates profile YAML. Unknown fields are rejected.
func Parse(data []byte) (*Set, error) {
	var f file
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}

	set := &Set{profiles: make(map[string]Profile, len(f.Profiles))}
	for i, p := range f.Profiles {
		if p.Name == "" {
			return nil, fmt.Errorf("profile #%d: missing name", i+1)
		}
		if _, dup := set.profiles[p.Name]; dup {
			return nil, fmt.Errorf("profile %q: defined twice", p.Name)
		}
		tag, err := scope.ParseTag(p.Tag)
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", p.Name, err)
		}
		if tag.Category() == scope.CategoryRoot || tag.Category() == scope.CategoryWindow {
			return nil, fmt.Errorf("profile %q: %s is not a session tag", p.Name, tag)
		}
		p.tag = tag
		set.profiles[p.Name] = p
	}
	return set, nil
}

// Load reads profiles from path
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return Parse(data)
}

// Empty returns a set with no profiles
func Empty() *Set {
	return &Set{profiles: map[string]Profile{}}
}

// Get returns the named profile
func (s *Set) Get(name string) (Profile, error) {
	p, ok := s.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%q: %w", name, ErrUnknownProfile)
	}
	return p, nil
}

// Names returns the profile names in sorted order
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.profiles))
	for n := range s.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Builder starts a root session configured by the named profile.
func (s *Set) Builder(mgr *session.Manager, name string, catalog Catalog) (*session.Builder, error) {
	p, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	return p.Apply(mgr.CreateSession(p.tag), catalog), nil
}

// ChildBuilder starts a child of parent configured by the named profile.
func (s *Set) ChildBuilder(parent *session.Session, name string, catalog Catalog) (*session.Builder, error) {
	p, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	return p.Apply(parent.CreateChild(p.tag), catalog), nil
}
