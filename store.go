package access

import (
	"context"
	"time"
)

// ============================================================================
// STORAGE INTERFACES
// ============================================================================

// UserStore manages user persistence
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id string) error
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
}

// RoleStore manages role persistence
type RoleStore interface {
	CreateRole(ctx context.Context, r *Role) error
	UpdateRole(ctx context.Context, r *Role) error
	DeleteRole(ctx context.Context, id string) error
	GetRole(ctx context.Context, id string) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
}

// PolicyStore manages policy persistence
type PolicyStore interface {
	CreatePolicy(ctx context.Context, p *Policy) error
	UpdatePolicy(ctx context.Context, p *Policy) error
	DeletePolicy(ctx context.Context, id string) error
	GetPolicy(ctx context.Context, id string) (*Policy, error)
	ListPolicies(ctx context.Context) ([]*Policy, error)
}

// ResourceStore manages resource registry persistence
type ResourceStore interface {
	CreateResource(ctx context.Context, r *Resource) error
	DeleteResource(ctx context.Context, id string) error
	GetResourceByPath(ctx context.Context, path string) (*Resource, error)
	ListResources(ctx context.Context) ([]*Resource, error)
}

// RoleMembershipStore supplements User.Roles with externally managed
// subject->role assignments (e.g. a directory sync writing to Redis).
type RoleMembershipStore interface {
	AssignRole(ctx context.Context, userID, roleID string) error
	RevokeRole(ctx context.Context, userID, roleID string) error
	ListRoles(ctx context.Context, userID string) ([]string, error)
}

// AuditStore manages decision audit logs
type AuditStore interface {
	LogDecision(ctx context.Context, entry *AuditEntry) error
	GetAccessLog(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
}

// AuditEntry records one access decision for audit and replay.
type AuditEntry struct {
	ID        string          `json:"id"`
	TraceID   string          `json:"trace_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	UserID    string          `json:"user_id"`
	Action    string          `json:"action"`
	Resource  string          `json:"resource"`
	Decision  *AccessDecision `json:"decision"`
}

// AuditFilter for querying audit logs
type AuditFilter struct {
	UserID    string
	Resource  string
	Action    string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}
