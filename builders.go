package access

import "time"

// Builders provide a fluent API for assembling policies, roles and users.

// PolicyBuilder builds a Policy.
type PolicyBuilder struct {
	p *Policy
}

func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{p: &Policy{Enabled: true, Version: 1}}
}

func (b *PolicyBuilder) ID(id string) *PolicyBuilder          { b.p.ID = id; return b }
func (b *PolicyBuilder) Name(n string) *PolicyBuilder         { b.p.Name = n; return b }
func (b *PolicyBuilder) Priority(p int) *PolicyBuilder        { b.p.Priority = p; return b }
func (b *PolicyBuilder) Enabled(on bool) *PolicyBuilder       { b.p.Enabled = on; return b }
func (b *PolicyBuilder) Version(v int) *PolicyBuilder         { b.p.Version = v; return b }
func (b *PolicyBuilder) CreatedAt(t time.Time) *PolicyBuilder { b.p.CreatedAt = t; return b }
func (b *PolicyBuilder) Rule(r PolicyRule) *PolicyBuilder {
	b.p.Rules = append(b.p.Rules, r)
	return b
}
func (b *PolicyBuilder) Build() *Policy { return b.p }

// RuleBuilder builds a PolicyRule for use with PolicyBuilder.Rule.
type RuleBuilder struct {
	r PolicyRule
}

func NewRuleBuilder(effect Effect) *RuleBuilder {
	return &RuleBuilder{r: PolicyRule{Effect: effect}}
}

func (b *RuleBuilder) ID(id string) *RuleBuilder            { b.r.ID = id; return b }
func (b *RuleBuilder) Description(d string) *RuleBuilder    { b.r.Description = d; return b }
func (b *RuleBuilder) Actions(a ...string) *RuleBuilder {
	b.r.Actions = append(b.r.Actions, a...)
	return b
}
func (b *RuleBuilder) Resources(r ...string) *RuleBuilder {
	b.r.Resources = append(b.r.Resources, r...)
	return b
}
func (b *RuleBuilder) Condition(attr Attribute, op Operator, value any) *RuleBuilder {
	b.r.Conditions = append(b.r.Conditions, PolicyCondition{Attribute: attr, Operator: op, Value: value})
	return b
}
func (b *RuleBuilder) Build() PolicyRule { return b.r }

// RoleBuilder builds a Role.
type RoleBuilder struct {
	r *Role
}

func NewRoleBuilder(id string) *RoleBuilder {
	return &RoleBuilder{r: &Role{ID: id}}
}

func (b *RoleBuilder) DisplayName(n string) *RoleBuilder { b.r.DisplayName = n; return b }
func (b *RoleBuilder) Parent(id string) *RoleBuilder     { b.r.ParentRole = id; return b }
func (b *RoleBuilder) Permissions(p ...string) *RoleBuilder {
	b.r.Permissions = append(b.r.Permissions, p...)
	return b
}
func (b *RoleBuilder) System(on bool) *RoleBuilder           { b.r.IsSystem = on; return b }
func (b *RoleBuilder) Privileged(on bool) *RoleBuilder       { b.r.IsPrivileged = on; return b }
func (b *RoleBuilder) RequireMFA(on bool) *RoleBuilder       { b.r.RequiresMFA = on; return b }
func (b *RoleBuilder) RequireApproval(on bool) *RoleBuilder  { b.r.RequiresApproval = on; return b }
func (b *RoleBuilder) Build() *Role                          { return b.r }

// UserBuilder builds a User.
type UserBuilder struct {
	u *User
}

func NewUserBuilder(id string) *UserBuilder {
	return &UserBuilder{u: &User{ID: id, Status: StatusActive}}
}

func (b *UserBuilder) Status(s UserStatus) *UserBuilder { b.u.Status = s; return b }
func (b *UserBuilder) Roles(r ...string) *UserBuilder {
	b.u.Roles = append(b.u.Roles, r...)
	return b
}
func (b *UserBuilder) Department(d string) *UserBuilder { b.u.Department = d; return b }
func (b *UserBuilder) MFA(on bool) *UserBuilder         { b.u.MFAEnabled = on; return b }
func (b *UserBuilder) RiskScore(s float64) *UserBuilder { b.u.RiskScore = s; return b }
func (b *UserBuilder) IP(ip string) *UserBuilder        { b.u.IP = ip; return b }
func (b *UserBuilder) Location(l string) *UserBuilder   { b.u.Location = l; return b }
func (b *UserBuilder) Build() *User                     { return b.u }
