package access

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the declarative form of the whole access-control state: subjects,
// roles, resources, policies and engine tuning, loadable from YAML, JSON or
// the line DSL.
type Config struct {
	Version     int              `json:"version" yaml:"version"`
	Users       []*User          `json:"users" yaml:"users"`
	Roles       []*Role          `json:"roles" yaml:"roles"`
	Resources   []*Resource      `json:"resources" yaml:"resources"`
	Policies    []*Policy        `json:"policies" yaml:"policies"`
	Memberships []RoleMembership `json:"memberships,omitempty" yaml:"memberships,omitempty"`
	Engine      EngineConfig     `json:"engine,omitempty" yaml:"engine,omitempty"`
}

// RoleMembership is an externally managed user-to-role assignment.
type RoleMembership struct {
	UserID string `json:"user_id" yaml:"user_id"`
	RoleID string `json:"role_id" yaml:"role_id"`
}

// EngineConfig carries engine tuning knobs alongside the data.
type EngineConfig struct {
	DecisionCacheTTL int64 `json:"decision_cache_ttl_ms,omitempty" yaml:"decision_cache_ttl_ms,omitempty"`
	AuditBuffer      int   `json:"audit_buffer,omitempty" yaml:"audit_buffer,omitempty"`
}

// ConfigLoader loads configuration from the supported formats.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile picks the decoder from the file extension: .yaml/.yml, .json or
// .dsl/.txt for the line DSL.
func (l *ConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return l.LoadYAML(data)
	case ".json":
		return l.LoadJSON(data)
	case ".dsl", ".txt":
		return l.LoadDSL(data)
	}
	return nil, fmt.Errorf("access: unsupported config format %q", filepath.Ext(path))
}

// ToYAML exports the config to YAML.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports the config to indented JSON.
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate checks a config for structural problems before it is applied:
// user and role invariants, policy soundness, users referencing roles the
// config never declares, and hierarchy cycles.
func (c *Config) Validate() error {
	roleIDs := make(map[string]bool, len(c.Roles))
	for _, r := range c.Roles {
		if r.ID == "" {
			return fmt.Errorf("access: config: role with empty id")
		}
		roleIDs[r.ID] = true
	}
	for _, u := range c.Users {
		if err := u.Validate(); err != nil {
			return fmt.Errorf("access: config: %w", err)
		}
		for _, rid := range u.Roles {
			if !roleIDs[rid] {
				return fmt.Errorf("access: config: user %s references undeclared role %s", u.ID, rid)
			}
		}
	}
	for _, m := range c.Memberships {
		if !roleIDs[m.RoleID] {
			return fmt.Errorf("access: config: membership for %s references undeclared role %s", m.UserID, m.RoleID)
		}
	}
	for _, p := range c.Policies {
		if err := ValidatePolicy(p); err != nil {
			return err
		}
	}
	if _, err := ResolveHierarchy(c.Roles); err != nil {
		return err
	}
	return nil
}

// ApplyConfig upserts the config into the engine's stores and rebuilds the
// snapshot. Existing records with matching ids are replaced; records absent
// from the config are left alone.
func (e *Engine) ApplyConfig(ctx context.Context, cfg *Config) error {
	if cfg.Engine.DecisionCacheTTL > 0 {
		e.decisionCacheTTL = time.Duration(cfg.Engine.DecisionCacheTTL) * time.Millisecond
	}

	for _, r := range cfg.Roles {
		if err := upsert(ctx, r.ID,
			func() error { return e.roleStore.CreateRole(ctx, r) },
			func() error { return e.roleStore.UpdateRole(ctx, r) }); err != nil {
			return fmt.Errorf("access: apply role %s: %w", r.ID, err)
		}
	}
	for _, u := range cfg.Users {
		if err := u.Validate(); err != nil {
			return err
		}
		if err := upsert(ctx, u.ID,
			func() error { return e.userStore.CreateUser(ctx, u) },
			func() error { return e.userStore.UpdateUser(ctx, u) }); err != nil {
			return fmt.Errorf("access: apply user %s: %w", u.ID, err)
		}
	}
	for _, r := range cfg.Resources {
		if err := e.resourceStore.CreateResource(ctx, r); err != nil {
			return fmt.Errorf("access: apply resource %s: %w", r.ID, err)
		}
	}
	for _, p := range cfg.Policies {
		if err := ValidatePolicy(p); err != nil {
			return err
		}
		if err := upsert(ctx, p.ID,
			func() error { return e.policyStore.CreatePolicy(ctx, p) },
			func() error { return e.policyStore.UpdatePolicy(ctx, p) }); err != nil {
			return fmt.Errorf("access: apply policy %s: %w", p.ID, err)
		}
	}
	if e.membershipStore != nil {
		for _, m := range cfg.Memberships {
			if err := e.membershipStore.AssignRole(ctx, m.UserID, m.RoleID); err != nil {
				return fmt.Errorf("access: apply membership %s/%s: %w", m.UserID, m.RoleID, err)
			}
		}
	}

	return e.invalidate(ctx)
}

// upsert tries create first and falls back to update when the record exists.
func upsert(_ context.Context, _ string, create, update func() error) error {
	if err := create(); err != nil {
		return update()
	}
	return nil
}
