package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/shieldview/access"
)

// SQLRoleStore persists roles in SQL (squealx).
type SQLRoleStore struct {
	db *squealx.DB
}

func NewSQLRoleStore(db *squealx.DB) *SQLRoleStore {
	return &SQLRoleStore{db: db}
}

func (s *SQLRoleStore) roleParams(r *access.Role) map[string]any {
	perms, _ := json.Marshal(r.Permissions)
	return map[string]any{
		"id":                r.ID,
		"display_name":      r.DisplayName,
		"permissions_json":  string(perms),
		"parent_role":       r.ParentRole,
		"is_system":         boolToInt(r.IsSystem),
		"is_privileged":     boolToInt(r.IsPrivileged),
		"requires_mfa":      boolToInt(r.RequiresMFA),
		"requires_approval": boolToInt(r.RequiresApproval),
		"created_at":        r.CreatedAt,
	}
}

func (s *SQLRoleStore) CreateRole(ctx context.Context, r *access.Role) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	q := `INSERT INTO roles(id, display_name, permissions_json, parent_role, is_system, is_privileged, requires_mfa, requires_approval, created_at) VALUES(:id, :display_name, :permissions_json, :parent_role, :is_system, :is_privileged, :requires_mfa, :requires_approval, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, s.roleParams(r))
	return err
}

func (s *SQLRoleStore) UpdateRole(ctx context.Context, r *access.Role) error {
	q := `UPDATE roles SET display_name=:display_name, permissions_json=:permissions_json, parent_role=:parent_role, is_system=:is_system, is_privileged=:is_privileged, requires_mfa=:requires_mfa, requires_approval=:requires_approval WHERE id=:id`
	_, err := s.db.NamedExecContext(ctx, q, s.roleParams(r))
	return err
}

func (s *SQLRoleStore) DeleteRole(ctx context.Context, id string) error {
	q := `DELETE FROM roles WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLRoleStore) GetRole(ctx context.Context, id string) (*access.Role, error) {
	q := `SELECT id, display_name, permissions_json, parent_role, is_system, is_privileged, requires_mfa, requires_approval, created_at FROM roles WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("role not found: %s", id)
	}
	return scanRole(r)
}

func (s *SQLRoleStore) ListRoles(ctx context.Context) ([]*access.Role, error) {
	q := `SELECT id, display_name, permissions_json, parent_role, is_system, is_privileged, requires_mfa, requires_approval, created_at FROM roles`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*access.Role, 0)
	for r.Next() {
		role, err := scanRole(r)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}

func scanRole(r rowScanner) (*access.Role, error) {
	var id, displayName, permsJSON, parent string
	var sysInt, privInt, mfaInt, approvalInt int
	var createdRaw any
	if err := r.Scan(&id, &displayName, &permsJSON, &parent, &sysInt, &privInt, &mfaInt, &approvalInt, &createdRaw); err != nil {
		return nil, err
	}
	role := &access.Role{
		ID:               id,
		DisplayName:      displayName,
		ParentRole:       parent,
		IsSystem:         sysInt != 0,
		IsPrivileged:     privInt != 0,
		RequiresMFA:      mfaInt != 0,
		RequiresApproval: approvalInt != 0,
		CreatedAt:        scanTime(createdRaw),
	}
	_ = json.Unmarshal([]byte(permsJSON), &role.Permissions)
	return role, nil
}
