package stores

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shieldview/access"
)

// MemoryUserStore implements in-memory user persistence for testing/demo.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*access.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*access.User)}
}

func (s *MemoryUserStore) CreateUser(ctx context.Context, u *access.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.ID]; exists {
		return fmt.Errorf("user already exists: %s", u.ID)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.users[u.ID] = u
	return nil
}

func (s *MemoryUserStore) UpdateUser(ctx context.Context, u *access.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return fmt.Errorf("user not found: %s", u.ID)
	}
	s.users[u.ID] = u
	return nil
}

func (s *MemoryUserStore) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	return nil
}

func (s *MemoryUserStore) GetUser(ctx context.Context, id string) (*access.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user not found: %s", id)
	}
	dup := *u
	return &dup, nil
}

func (s *MemoryUserStore) ListUsers(ctx context.Context) ([]*access.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*access.User, 0, len(s.users))
	for _, u := range s.users {
		dup := *u
		out = append(out, &dup)
	}
	return out, nil
}

// MemoryRoleStore implements in-memory role persistence.
type MemoryRoleStore struct {
	mu    sync.RWMutex
	roles map[string]*access.Role
}

func NewMemoryRoleStore() *MemoryRoleStore {
	return &MemoryRoleStore{roles: make(map[string]*access.Role)}
}

func (s *MemoryRoleStore) CreateRole(ctx context.Context, r *access.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.roles[r.ID]; exists {
		return fmt.Errorf("role already exists: %s", r.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.roles[r.ID] = r
	return nil
}

func (s *MemoryRoleStore) UpdateRole(ctx context.Context, r *access.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[r.ID]; !ok {
		return fmt.Errorf("role not found: %s", r.ID)
	}
	s.roles[r.ID] = r
	return nil
}

func (s *MemoryRoleStore) DeleteRole(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, id)
	return nil
}

func (s *MemoryRoleStore) GetRole(ctx context.Context, id string) (*access.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, fmt.Errorf("role not found: %s", id)
	}
	return r, nil
}

func (s *MemoryRoleStore) ListRoles(ctx context.Context) ([]*access.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*access.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	return out, nil
}

// MemoryPolicyStore implements policy persistence in-memory. Updates keep an
// append-only history of prior versions.
type MemoryPolicyStore struct {
	mu        sync.RWMutex
	policies  map[string]*access.Policy
	histories map[string][]*access.Policy
}

func NewMemoryPolicyStore() *MemoryPolicyStore {
	return &MemoryPolicyStore{
		policies:  make(map[string]*access.Policy),
		histories: make(map[string][]*access.Policy),
	}
}

func (s *MemoryPolicyStore) CreatePolicy(ctx context.Context, p *access.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.policies[p.ID]; exists {
		return fmt.Errorf("policy already exists: %s", p.ID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = p.CreatedAt
	s.policies[p.ID] = p
	return nil
}

func (s *MemoryPolicyStore) UpdatePolicy(ctx context.Context, p *access.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.policies[p.ID]; ok {
		dup := *old
		s.histories[p.ID] = append(s.histories[p.ID], &dup)
	}
	p.UpdatedAt = time.Now()
	p.Version++
	s.policies[p.ID] = p
	return nil
}

func (s *MemoryPolicyStore) DeletePolicy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.policies, id)
	return nil
}

func (s *MemoryPolicyStore) GetPolicy(ctx context.Context, id string) (*access.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, fmt.Errorf("policy not found: %s", id)
	}
	return p, nil
}

func (s *MemoryPolicyStore) ListPolicies(ctx context.Context) ([]*access.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*access.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryPolicyStore) GetPolicyHistory(ctx context.Context, id string) ([]*access.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.histories[id]
	if !ok {
		return nil, fmt.Errorf("no history for policy %s", id)
	}
	return h, nil
}

// MemoryResourceStore implements the in-memory resource registry.
type MemoryResourceStore struct {
	mu     sync.RWMutex
	byID   map[string]*access.Resource
	byPath map[string]*access.Resource
}

func NewMemoryResourceStore() *MemoryResourceStore {
	return &MemoryResourceStore{
		byID:   make(map[string]*access.Resource),
		byPath: make(map[string]*access.Resource),
	}
}

func (s *MemoryResourceStore) CreateResource(ctx context.Context, r *access.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byID[r.ID]; ok {
		delete(s.byPath, old.Path)
	}
	s.byID[r.ID] = r
	s.byPath[r.Path] = r
	return nil
}

func (s *MemoryResourceStore) DeleteResource(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.byID[id]; ok {
		delete(s.byPath, r.Path)
		delete(s.byID, id)
	}
	return nil
}

func (s *MemoryResourceStore) GetResourceByPath(ctx context.Context, path string) (*access.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byPath[path]
	if !ok {
		return nil, fmt.Errorf("resource not found: %s", path)
	}
	return r, nil
}

func (s *MemoryResourceStore) ListResources(ctx context.Context) ([]*access.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*access.Resource, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r)
	}
	return out, nil
}

// MemoryAuditStore implements in-memory audit logging.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []*access.AuditEntry
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{entries: make([]*access.AuditEntry, 0)}
}

func (s *MemoryAuditStore) LogDecision(ctx context.Context, entry *access.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryAuditStore) GetAccessLog(ctx context.Context, filter access.AuditFilter) ([]*access.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*access.AuditEntry, 0)
	for _, entry := range s.entries {
		if filter.UserID != "" && entry.UserID != filter.UserID {
			continue
		}
		if filter.Resource != "" && entry.Resource != filter.Resource {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if !filter.StartTime.IsZero() && entry.Timestamp.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && entry.Timestamp.After(filter.EndTime) {
			continue
		}
		out = append(out, entry)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// MemoryRoleMembershipStore keeps user->role assignments in memory.
type MemoryRoleMembershipStore struct {
	mu    sync.RWMutex
	roles map[string]map[string]bool
}

func NewMemoryRoleMembershipStore() *MemoryRoleMembershipStore {
	return &MemoryRoleMembershipStore{roles: make(map[string]map[string]bool)}
}

func (m *MemoryRoleMembershipStore) AssignRole(ctx context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[userID]; !ok {
		m.roles[userID] = make(map[string]bool)
	}
	m.roles[userID][roleID] = true
	return nil
}

func (m *MemoryRoleMembershipStore) RevokeRole(ctx context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.roles[userID], roleID)
	return nil
}

func (m *MemoryRoleMembershipStore) ListRoles(ctx context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0)
	for r := range m.roles[userID] {
		out = append(out, r)
	}
	return out, nil
}
