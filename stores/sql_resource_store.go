package stores

import (
	"context"
	"fmt"

	"github.com/oarkflow/squealx"

	"github.com/shieldview/access"
)

// SQLResourceStore persists the resource registry in SQL (squealx).
type SQLResourceStore struct {
	db *squealx.DB
}

func NewSQLResourceStore(db *squealx.DB) *SQLResourceStore {
	return &SQLResourceStore{db: db}
}

func (s *SQLResourceStore) CreateResource(ctx context.Context, r *access.Resource) error {
	q := `INSERT OR REPLACE INTO resources(id, path, sensitivity, owner) VALUES(:id, :path, :sensitivity, :owner)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":          r.ID,
		"path":        r.Path,
		"sensitivity": r.Sensitivity,
		"owner":       r.Owner,
	})
	return err
}

func (s *SQLResourceStore) DeleteResource(ctx context.Context, id string) error {
	q := `DELETE FROM resources WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLResourceStore) GetResourceByPath(ctx context.Context, path string) (*access.Resource, error) {
	q := `SELECT id, path, sensitivity, owner FROM resources WHERE path = :path`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"path": path})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("resource not found: %s", path)
	}
	return scanResource(r)
}

func (s *SQLResourceStore) ListResources(ctx context.Context) ([]*access.Resource, error) {
	q := `SELECT id, path, sensitivity, owner FROM resources`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*access.Resource, 0)
	for r.Next() {
		res, err := scanResource(r)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func scanResource(r rowScanner) (*access.Resource, error) {
	res := &access.Resource{}
	if err := r.Scan(&res.ID, &res.Path, &res.Sensitivity, &res.Owner); err != nil {
		return nil, err
	}
	return res, nil
}
