package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CommandEntry binds one script function to a tag. An empty tag is allowed:
// the command is built but never subscribed.
type CommandEntry struct {
	Tag             string `yaml:"tag"`
	Script          string `yaml:"script"`
	DestroyOnUnbind bool   `yaml:"destroy_on_unbind"`
}

// SetEntry describes one command set and its activation behaviour.
type SetEntry struct {
	Name            string         `yaml:"name"`
	ActivateOnStart bool           `yaml:"activate_on_start"`
	SendOnActivate  string         `yaml:"send_on_activate"`
	Commands        []CommandEntry `yaml:"commands"`
}

type manifestFile struct {
	Global []CommandEntry `yaml:"global"`
	Sets   []SetEntry     `yaml:"sets"`
}

// CommandManifest holds the commands discovered by the registry at startup
// (Global) and the scoped command sets.
type CommandManifest struct {
	Global []CommandEntry
	Sets   []SetEntry
	byName map[string]int
}

// Set returns the set called name.
func (m *CommandManifest) Set(name string) (SetEntry, bool) {
	i, ok := m.byName[name]
	if !ok {
		return SetEntry{}, false
	}
	return m.Sets[i], true
}

// Count returns the number of commands across global and set entries.
func (m *CommandManifest) Count() int {
	n := len(m.Global)
	for _, s := range m.Sets {
		n += len(s.Commands)
	}
	return n
}

// LoadCommandManifest loads and validates the command manifest YAML.
func LoadCommandManifest(path string) (*CommandManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read command manifest: %w", err)
	}
	return ParseCommandManifest(raw)
}

func ParseCommandManifest(raw []byte) (*CommandManifest, error) {
	var f manifestFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse command manifest: %w", err)
	}
	m := &CommandManifest{
		Global: f.Global,
		Sets:   f.Sets,
		byName: make(map[string]int, len(f.Sets)),
	}
	for i, c := range f.Global {
		if c.Script == "" {
			return nil, fmt.Errorf("global command %d (%q): missing script", i, c.Tag)
		}
	}
	for i, s := range f.Sets {
		if s.Name == "" {
			return nil, fmt.Errorf("set %d: missing name", i)
		}
		if _, dup := m.byName[s.Name]; dup {
			return nil, fmt.Errorf("set %q: duplicate name", s.Name)
		}
		m.byName[s.Name] = i
		for j, c := range s.Commands {
			if c.Script == "" {
				return nil, fmt.Errorf("set %q command %d (%q): missing script", s.Name, j, c.Tag)
			}
		}
	}
	return m, nil
}
