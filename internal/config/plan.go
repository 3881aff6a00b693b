package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"scrub/internal/store"
)

// PlanFile is the on-disk description of a cleaning run: the stores it
// may touch and the rules to execute, by id. Rules themselves are
// registered in code; the plan file only selects among them.
type PlanFile struct {
	Name        string      `yaml:"name"`
	SourceStore string      `yaml:"source_store"`
	Stores      []PlanStore `yaml:"stores"`
	Rules       []string    `yaml:"rules"`
}

// PlanStore is one named store connection in a plan file.
type PlanStore struct {
	Name         string   `yaml:"name"`
	Driver       string   `yaml:"driver"`
	DSN          string   `yaml:"dsn"`
	MaxOpenConns int      `yaml:"max_open_conns"`
	QueryTimeout Duration `yaml:"query_timeout"`
}

// Duration decodes Go duration strings ("10s", "1m") from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// LoadPlanFile reads and validates a YAML plan file.
func LoadPlanFile(path string) (*PlanFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}

	var plan PlanFile
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan file %s: %w", path, err)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("plan file %s: %w", path, err)
	}
	return &plan, nil
}

// Validate checks that the plan is internally consistent.
func (p *PlanFile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("plan has no name")
	}
	if len(p.Stores) == 0 {
		return fmt.Errorf("plan declares no stores")
	}

	names := make(map[string]bool, len(p.Stores))
	for _, s := range p.Stores {
		cfg := s.storeConfig()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("store %q: %w", s.Name, err)
		}
		if names[s.Name] {
			return fmt.Errorf("store %q declared twice", s.Name)
		}
		names[s.Name] = true
	}

	if p.SourceStore == "" {
		return fmt.Errorf("plan names no source_store")
	}
	if !names[p.SourceStore] {
		return fmt.Errorf("source_store %q is not among the declared stores", p.SourceStore)
	}

	if len(p.Rules) == 0 {
		return fmt.Errorf("plan selects no rules")
	}
	seen := make(map[string]bool, len(p.Rules))
	for _, id := range p.Rules {
		if id == "" {
			return fmt.Errorf("plan selects a rule with an empty id")
		}
		if seen[id] {
			return fmt.Errorf("rule %q selected twice", id)
		}
		seen[id] = true
	}
	return nil
}

// StoreConfigs returns the store connection configs declared by the plan.
func (p *PlanFile) StoreConfigs() []store.Config {
	out := make([]store.Config, 0, len(p.Stores))
	for _, s := range p.Stores {
		out = append(out, s.storeConfig())
	}
	return out
}

func (s PlanStore) storeConfig() store.Config {
	return store.Config{
		Name:         s.Name,
		Driver:       s.Driver,
		DSN:          s.DSN,
		MaxOpenConns: s.MaxOpenConns,
		QueryTimeout: time.Duration(s.QueryTimeout),
	}
}
