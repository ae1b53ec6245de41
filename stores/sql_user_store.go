package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/shieldview/access"
)

// SQLUserStore persists users in SQL (squealx).
type SQLUserStore struct {
	db *squealx.DB
}

func NewSQLUserStore(db *squealx.DB) *SQLUserStore {
	return &SQLUserStore{db: db}
}

func (s *SQLUserStore) userParams(u *access.User) map[string]any {
	roles, _ := json.Marshal(u.Roles)
	return map[string]any{
		"id":          u.ID,
		"status":      string(u.Status),
		"roles_json":  string(roles),
		"department":  u.Department,
		"mfa_enabled": boolToInt(u.MFAEnabled),
		"risk_score":  u.RiskScore,
		"ip":          u.IP,
		"location":    u.Location,
		"created_at":  u.CreatedAt,
	}
}

func (s *SQLUserStore) CreateUser(ctx context.Context, u *access.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	q := `INSERT INTO users(id, status, roles_json, department, mfa_enabled, risk_score, ip, location, created_at) VALUES(:id, :status, :roles_json, :department, :mfa_enabled, :risk_score, :ip, :location, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, s.userParams(u))
	return err
}

func (s *SQLUserStore) UpdateUser(ctx context.Context, u *access.User) error {
	q := `UPDATE users SET status=:status, roles_json=:roles_json, department=:department, mfa_enabled=:mfa_enabled, risk_score=:risk_score, ip=:ip, location=:location WHERE id=:id`
	_, err := s.db.NamedExecContext(ctx, q, s.userParams(u))
	return err
}

func (s *SQLUserStore) DeleteUser(ctx context.Context, id string) error {
	q := `DELETE FROM users WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLUserStore) GetUser(ctx context.Context, id string) (*access.User, error) {
	q := `SELECT id, status, roles_json, department, mfa_enabled, risk_score, ip, location, created_at FROM users WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("user not found: %s", id)
	}
	return scanUser(r)
}

func (s *SQLUserStore) ListUsers(ctx context.Context) ([]*access.User, error) {
	q := `SELECT id, status, roles_json, department, mfa_enabled, risk_score, ip, location, created_at FROM users`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*access.User, 0)
	for r.Next() {
		u, err := scanUser(r)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// rowScanner is the subset of the driver rows the scan helpers need.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner) (*access.User, error) {
	var id, status, rolesJSON, department, ip, location string
	var mfaInt int
	var risk float64
	var createdRaw any
	if err := r.Scan(&id, &status, &rolesJSON, &department, &mfaInt, &risk, &ip, &location, &createdRaw); err != nil {
		return nil, err
	}
	u := &access.User{
		ID:         id,
		Status:     access.UserStatus(status),
		Department: department,
		MFAEnabled: mfaInt != 0,
		RiskScore:  risk,
		IP:         ip,
		Location:   location,
		CreatedAt:  scanTime(createdRaw),
	}
	_ = json.Unmarshal([]byte(rolesJSON), &u.Roles)
	return u, nil
}
