package access

import (
	"fmt"
	"time"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// UserStatus is the lifecycle state of a user account. Only active users can
// be granted access.
type UserStatus string

const (
	StatusPending   UserStatus = "pending"
	StatusActive    UserStatus = "active"
	StatusSuspended UserStatus = "suspended"
	StatusInactive  UserStatus = "inactive"
	StatusDeleted   UserStatus = "deleted"
)

func (s UserStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusInactive, StatusDeleted:
		return true
	}
	return false
}

// User represents who is requesting access
type User struct {
	ID         string     `json:"id" yaml:"id"`
	Status     UserStatus `json:"status" yaml:"status"`
	Roles      []string   `json:"roles" yaml:"roles"`
	Department string     `json:"department,omitempty" yaml:"department,omitempty"`
	MFAEnabled bool       `json:"mfa_enabled" yaml:"mfa_enabled"`
	RiskScore  float64    `json:"risk_score" yaml:"risk_score"` // 0..100
	IP         string     `json:"ip,omitempty" yaml:"ip,omitempty"`
	Location   string     `json:"location,omitempty" yaml:"location,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// Validate checks the user invariants: status must be a known value and the
// risk score must stay inside [0,100].
func (u *User) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("user ID is required")
	}
	if !u.Status.Valid() {
		return fmt.Errorf("user %s: invalid status %q", u.ID, u.Status)
	}
	if u.RiskScore < 0 || u.RiskScore > 100 {
		return fmt.Errorf("user %s: risk score %.1f out of range [0,100]", u.ID, u.RiskScore)
	}
	return nil
}

// Role is a named collection of permission strings. ParentRole references
// another role by id; the effective permission set is the union of the role's
// own permissions and all ancestors' permissions.
type Role struct {
	ID               string    `json:"id" yaml:"id"`
	DisplayName      string    `json:"display_name" yaml:"display_name"`
	Permissions      []string  `json:"permissions" yaml:"permissions"`
	ParentRole       string    `json:"parent_role,omitempty" yaml:"parent_role,omitempty"`
	IsSystem         bool      `json:"is_system,omitempty" yaml:"is_system,omitempty"`
	IsPrivileged     bool      `json:"is_privileged,omitempty" yaml:"is_privileged,omitempty"`
	RequiresMFA      bool      `json:"requires_mfa,omitempty" yaml:"requires_mfa,omitempty"`
	RequiresApproval bool      `json:"requires_approval,omitempty" yaml:"requires_approval,omitempty"`
	CreatedAt        time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// Resource represents what is being accessed. Path is hierarchical
// ("/deploy/production") and is what policy resource patterns match against.
type Resource struct {
	ID          string `json:"id" yaml:"id"`
	Path        string `json:"path" yaml:"path"`
	Sensitivity string `json:"sensitivity,omitempty" yaml:"sensitivity,omitempty"`
	Owner       string `json:"owner,omitempty" yaml:"owner,omitempty"`
}

// Effect represents the outcome a rule asks for
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Attribute identifies which request-context value a condition inspects.
type Attribute string

const (
	AttrRole       Attribute = "role"
	AttrDepartment Attribute = "department"
	AttrTime       Attribute = "time"
	AttrMFA        Attribute = "mfa"
	AttrIP         Attribute = "ip"
	AttrRisk       Attribute = "risk"
	AttrLocation   Attribute = "location"
)

// Operator is the comparison a condition applies.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
)

// PolicyCondition is one attribute/operator/value test. All conditions on a
// rule are AND-combined.
type PolicyCondition struct {
	Attribute Attribute `json:"attribute" yaml:"attribute"`
	Operator  Operator  `json:"operator" yaml:"operator"`
	Value     any       `json:"value" yaml:"value"`
}

func (c PolicyCondition) String() string {
	return fmt.Sprintf("%s %s %v", c.Attribute, c.Operator, c.Value)
}

// PolicyRule binds an effect to action/resource patterns plus conditions.
type PolicyRule struct {
	ID          string            `json:"id" yaml:"id"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Effect      Effect            `json:"effect" yaml:"effect"`
	Actions     []string          `json:"actions" yaml:"actions"`
	Resources   []string          `json:"resources" yaml:"resources"`
	Conditions  []PolicyCondition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Policy is an ordered list of rules with an evaluation priority.
// Lower priority value means evaluated earlier (higher precedence).
type Policy struct {
	ID        string       `json:"id" yaml:"id"`
	Name      string       `json:"name" yaml:"name"`
	Enabled   bool         `json:"enabled" yaml:"enabled"`
	Priority  int          `json:"priority" yaml:"priority"`
	Rules     []PolicyRule `json:"rules" yaml:"rules"`
	Version   int          `json:"version,omitempty" yaml:"version,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt time.Time    `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// ============================================================================
// REQUESTS AND DECISIONS
// ============================================================================

// AccessRequest is the engine's single entry-point input.
type AccessRequest struct {
	UserID   string `json:"user_id"`
	Resource string `json:"resource"` // hierarchical path, e.g. "/code/readme.md"
	Action   string `json:"action"`
}

// StepType classifies one step of the evaluation trace.
type StepType string

const (
	StepUserLookup      StepType = "user_lookup"
	StepRoleCheck       StepType = "role_check"
	StepPermissionCheck StepType = "permission_check"
	StepPolicyEval      StepType = "policy_eval"
	StepConditionCheck  StepType = "condition_check"
	StepFinalDecision   StepType = "final_decision"
)

// StepResult is the outcome of a single trace step.
type StepResult string

const (
	ResultPass StepResult = "pass"
	ResultFail StepResult = "fail"
	ResultSkip StepResult = "skip"
)

// EvaluationStep is one numbered, auditable entry in the evaluation trace.
type EvaluationStep struct {
	Step        int            `json:"step"`
	Type        StepType       `json:"type"`
	Result      StepResult     `json:"result"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
}

// AccessDecision is the immutable result of exactly one EvaluateAccess call.
type AccessDecision struct {
	Allowed        bool             `json:"allowed"`
	Reason         string           `json:"reason"`
	MatchedPolicy  string           `json:"matched_policy,omitempty"`
	MatchedRule    string           `json:"matched_rule,omitempty"`
	EvaluationPath []EvaluationStep `json:"evaluation_path"`
	Timestamp      time.Time        `json:"timestamp"`
}

// Reason strings surfaced on deny decisions.
const (
	ReasonUserNotFound     = "user not found"
	ReasonAccountNotActive = "account not active"
	ReasonDefaultDeny      = "no matching permission or policy"
	ReasonRolePermission   = "role grants permission"
)

// ============================================================================
// ERRORS
// ============================================================================

// ConfigurationError reports a cyclic role hierarchy detected while building
// the effective-permission table. It is an administrative error: the walk is
// truncated at the repeated ancestor and evaluation proceeds with whatever
// permissions were collected before the cycle.
type ConfigurationError struct {
	RoleID string
	Cycle  []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("cyclic role hierarchy at %s: %v", e.RoleID, e.Cycle)
}

