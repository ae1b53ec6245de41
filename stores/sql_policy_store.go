package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/shieldview/access"
)

// SQLPolicyStore persists policies in SQL (squealx). Rules travel as a JSON
// blob; every create/update also appends an immutable snapshot to the
// policy_history table.
type SQLPolicyStore struct {
	db *squealx.DB
}

func NewSQLPolicyStore(db *squealx.DB) *SQLPolicyStore {
	return &SQLPolicyStore{db: db}
}

func (s *SQLPolicyStore) policyParams(p *access.Policy) map[string]any {
	rules, _ := json.Marshal(p.Rules)
	return map[string]any{
		"id":         p.ID,
		"name":       p.Name,
		"enabled":    boolToInt(p.Enabled),
		"priority":   p.Priority,
		"rules_json": string(rules),
		"version":    p.Version,
		"created_at": p.CreatedAt,
		"updated_at": p.UpdatedAt,
	}
}

func (s *SQLPolicyStore) CreatePolicy(ctx context.Context, p *access.Policy) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	q := `INSERT INTO policies(id, name, enabled, priority, rules_json, version, created_at, updated_at) VALUES(:id, :name, :enabled, :priority, :rules_json, :version, :created_at, :updated_at)`
	if _, err := s.db.NamedExecContext(ctx, q, s.policyParams(p)); err != nil {
		return err
	}
	return s.insertPolicyHistory(ctx, p)
}

func (s *SQLPolicyStore) UpdatePolicy(ctx context.Context, p *access.Policy) error {
	p.UpdatedAt = time.Now()
	q := `UPDATE policies SET name=:name, enabled=:enabled, priority=:priority, rules_json=:rules_json, version=:version, updated_at=:updated_at WHERE id=:id`
	if _, err := s.db.NamedExecContext(ctx, q, s.policyParams(p)); err != nil {
		return err
	}
	return s.insertPolicyHistory(ctx, p)
}

func (s *SQLPolicyStore) DeletePolicy(ctx context.Context, id string) error {
	q := `DELETE FROM policies WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLPolicyStore) GetPolicy(ctx context.Context, id string) (*access.Policy, error) {
	q := `SELECT id, name, enabled, priority, rules_json, version, created_at, updated_at FROM policies WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("policy not found: %s", id)
	}
	return scanPolicy(r)
}

func (s *SQLPolicyStore) ListPolicies(ctx context.Context) ([]*access.Policy, error) {
	q := `SELECT id, name, enabled, priority, rules_json, version, created_at, updated_at FROM policies`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*access.Policy, 0)
	for r.Next() {
		p, err := scanPolicy(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func scanPolicy(r rowScanner) (*access.Policy, error) {
	var id, name, rulesJSON string
	var enabledInt, priority, version int
	var createdRaw, updatedRaw any
	if err := r.Scan(&id, &name, &enabledInt, &priority, &rulesJSON, &version, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	p := &access.Policy{
		ID:        id,
		Name:      name,
		Enabled:   enabledInt != 0,
		Priority:  priority,
		Version:   version,
		CreatedAt: scanTime(createdRaw),
		UpdatedAt: scanTime(updatedRaw),
	}
	if err := json.Unmarshal([]byte(rulesJSON), &p.Rules); err != nil {
		return nil, fmt.Errorf("policy %s: decode rules: %w", id, err)
	}
	return p, nil
}

// insertPolicyHistory appends a JSON snapshot of the policy to the append-only
// history table.
func (s *SQLPolicyStore) insertPolicyHistory(ctx context.Context, p *access.Policy) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	q := `INSERT INTO policy_history(policy_id, snapshot_json) VALUES(:policy_id, :snapshot_json)`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{"policy_id": p.ID, "snapshot_json": string(b)})
	return err
}

func (s *SQLPolicyStore) GetPolicyHistory(ctx context.Context, id string) ([]*access.Policy, error) {
	q := `SELECT snapshot_json FROM policy_history WHERE policy_id = :policy_id ORDER BY created_at ASC`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"policy_id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*access.Policy, 0)
	for r.Next() {
		var snap string
		if err := r.Scan(&snap); err != nil {
			return nil, err
		}
		p := &access.Policy{}
		if err := json.Unmarshal([]byte(snap), p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no history for policy %s", id)
	}
	return out, nil
}
