package stores

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/shieldview/access"
)

func openTestDB(t *testing.T) *squealx.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	db := squealx.NewDb(sqlDB, "sqlite", "testdb")
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSQLUserStoreRoundtrip(t *testing.T) {
	db := openTestDB(t)
	store := NewSQLUserStore(db)
	ctx := context.Background()

	u := &access.User{
		ID:         "alice",
		Status:     access.StatusActive,
		Roles:      []string{"developer", "oncall"},
		Department: "engineering",
		MFAEnabled: true,
		RiskScore:  12.5,
		IP:         "10.0.0.5",
		Location:   "office",
	}
	if err := store.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	got, err := store.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Status != access.StatusActive || !got.MFAEnabled || got.RiskScore != 12.5 {
		t.Fatalf("user round trip mangled fields: %+v", got)
	}
	if len(got.Roles) != 2 || got.Roles[0] != "developer" {
		t.Fatalf("roles round trip = %v", got.Roles)
	}

	u.Status = access.StatusSuspended
	if err := store.UpdateUser(ctx, u); err != nil {
		t.Fatalf("update user: %v", err)
	}
	got, _ = store.GetUser(ctx, "alice")
	if got.Status != access.StatusSuspended {
		t.Fatalf("status after update = %s", got.Status)
	}

	if err := store.DeleteUser(ctx, "alice"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := store.GetUser(ctx, "alice"); err == nil {
		t.Fatal("deleted user still readable")
	}
}

func TestSQLRoleStoreRoundtrip(t *testing.T) {
	db := openTestDB(t)
	store := NewSQLRoleStore(db)
	ctx := context.Background()

	r := &access.Role{
		ID:           "developer",
		DisplayName:  "Developer",
		Permissions:  []string{"code:read", "code:write"},
		ParentRole:   "employee",
		IsPrivileged: true,
		RequiresMFA:  true,
	}
	if err := store.CreateRole(ctx, r); err != nil {
		t.Fatalf("create role: %v", err)
	}

	got, err := store.GetRole(ctx, "developer")
	if err != nil {
		t.Fatalf("get role: %v", err)
	}
	if got.ParentRole != "employee" || !got.IsPrivileged || !got.RequiresMFA || got.IsSystem {
		t.Fatalf("role round trip mangled flags: %+v", got)
	}
	if len(got.Permissions) != 2 {
		t.Fatalf("permissions round trip = %v", got.Permissions)
	}

	list, err := store.ListRoles(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("list roles: %v, %d entries", err, len(list))
	}
}

func TestSQLPolicyStoreRoundtripAndHistory(t *testing.T) {
	db := openTestDB(t)
	store := NewSQLPolicyStore(db)
	ctx := context.Background()

	p := &access.Policy{
		ID:       "freeze",
		Name:     "Freeze deploys",
		Enabled:  true,
		Priority: 5,
		Version:  1,
		Rules: []access.PolicyRule{{
			ID:        "deny-risky",
			Effect:    access.EffectDeny,
			Actions:   []string{"execute"},
			Resources: []string{"/deploy/*"},
			Conditions: []access.PolicyCondition{
				{Attribute: access.AttrRisk, Operator: access.OpGreaterThan, Value: 70},
			},
		}},
	}
	if err := store.CreatePolicy(ctx, p); err != nil {
		t.Fatalf("create policy: %v", err)
	}

	got, err := store.GetPolicy(ctx, "freeze")
	if err != nil {
		t.Fatalf("get policy: %v", err)
	}
	if got.Priority != 5 || !got.Enabled || len(got.Rules) != 1 {
		t.Fatalf("policy round trip mangled: %+v", got)
	}
	rule := got.Rules[0]
	if rule.Effect != access.EffectDeny || len(rule.Conditions) != 1 {
		t.Fatalf("rule round trip mangled: %+v", rule)
	}
	if rule.Conditions[0].Attribute != access.AttrRisk {
		t.Fatalf("condition round trip mangled: %+v", rule.Conditions[0])
	}

	got.Priority = 1
	if err := store.UpdatePolicy(ctx, got); err != nil {
		t.Fatalf("update policy: %v", err)
	}

	history, err := store.GetPolicyHistory(ctx, "freeze")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(history) < 2 {
		t.Fatalf("history has %d snapshots, want at least 2", len(history))
	}
}

func TestSQLResourceStoreRoundtrip(t *testing.T) {
	db := openTestDB(t)
	store := NewSQLResourceStore(db)
	ctx := context.Background()

	r := &access.Resource{ID: "res-readme", Path: "/code/readme.md", Sensitivity: "internal", Owner: "alice"}
	if err := store.CreateResource(ctx, r); err != nil {
		t.Fatalf("create resource: %v", err)
	}

	got, err := store.GetResourceByPath(ctx, "/code/readme.md")
	if err != nil {
		t.Fatalf("get resource: %v", err)
	}
	if got.ID != "res-readme" || got.Sensitivity != "internal" {
		t.Fatalf("resource round trip mangled: %+v", got)
	}

	// Create with the same id replaces the registration.
	r.Path = "/code/README.md"
	if err := store.CreateResource(ctx, r); err != nil {
		t.Fatalf("re-register resource: %v", err)
	}
	if _, err := store.GetResourceByPath(ctx, "/code/README.md"); err != nil {
		t.Fatalf("resource not found under new path: %v", err)
	}
}

func TestSQLAuditStoreRoundtrip(t *testing.T) {
	db := openTestDB(t)
	store, err := NewSQLAuditStore(db)
	if err != nil {
		t.Fatalf("new audit store: %v", err)
	}
	ctx := context.Background()

	entry := &access.AuditEntry{
		ID:        "evt-1",
		TraceID:   "trace-abc-123",
		Timestamp: time.Now().UTC().Truncate(time.Second),
		UserID:    "alice",
		Action:    "read",
		Resource:  "/code/readme.md",
		Decision: &access.AccessDecision{
			Allowed:       true,
			Reason:        "role grants permission",
			MatchedPolicy: "",
			EvaluationPath: []access.EvaluationStep{
				{Step: 1, Type: access.StepUserLookup, Result: access.ResultPass, Description: "user alice is active"},
			},
		},
	}
	if err := store.LogDecision(ctx, entry); err != nil {
		t.Fatalf("log decision: %v", err)
	}

	logs, err := store.GetAccessLog(ctx, access.AuditFilter{UserID: "alice", Limit: 10})
	if err != nil {
		t.Fatalf("get access log: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	got := logs[0]
	if got.TraceID != "trace-abc-123" {
		t.Fatalf("trace id = %q", got.TraceID)
	}
	if !got.Decision.Allowed || got.Decision.Reason != "role grants permission" {
		t.Fatalf("decision round trip mangled: %+v", got.Decision)
	}
	if len(got.Decision.EvaluationPath) != 1 || got.Decision.EvaluationPath[0].Type != access.StepUserLookup {
		t.Fatalf("trace round trip mangled: %+v", got.Decision.EvaluationPath)
	}

	// Filters narrow the result set.
	logs, _ = store.GetAccessLog(ctx, access.AuditFilter{UserID: "nobody"})
	if len(logs) != 0 {
		t.Fatalf("filter by unknown user returned %d entries", len(logs))
	}
}

func TestSQLRoleMembershipStore(t *testing.T) {
	db := openTestDB(t)
	store := NewSQLRoleMembershipStore(db)
	ctx := context.Background()

	if err := store.AssignRole(ctx, "carol", "developer"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	// Assigning twice is idempotent.
	if err := store.AssignRole(ctx, "carol", "developer"); err != nil {
		t.Fatalf("re-assign: %v", err)
	}
	roles, err := store.ListRoles(ctx, "carol")
	if err != nil || len(roles) != 1 || roles[0] != "developer" {
		t.Fatalf("list roles: %v, %v", roles, err)
	}

	if err := store.RevokeRole(ctx, "carol", "developer"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	roles, _ = store.ListRoles(ctx, "carol")
	if len(roles) != 0 {
		t.Fatalf("roles after revoke = %v", roles)
	}
}
