package access

import (
	"reflect"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 4, 14, 30, 0, 0, time.UTC)

func fixtureRoles() []*Role {
	return []*Role{
		{ID: "employee", Permissions: []string{"wiki:read"}},
		{ID: "developer", ParentRole: "employee", Permissions: []string{"code:read", "code:write"}},
		{ID: "analyst", Permissions: nil},
	}
}

func fixtureUsers() []*User {
	return []*User{
		{ID: "alice", Status: StatusActive, Roles: []string{"developer"}, Department: "engineering", MFAEnabled: true, RiskScore: 12},
		{ID: "bob", Status: StatusSuspended, Roles: []string{"developer"}},
		{ID: "carol", Status: StatusActive, Roles: []string{"analyst"}, Department: "finance", RiskScore: 30},
	}
}

func mustSnapshot(t *testing.T, users []*User, roles []*Role, resources []*Resource, policies []*Policy) *Snapshot {
	t.Helper()
	snap, err := NewSnapshot(users, roles, resources, policies)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return snap
}

func stepTypes(steps []EvaluationStep) []StepType {
	out := make([]StepType, len(steps))
	for i, s := range steps {
		out[i] = s.Type
	}
	return out
}

func TestEvaluateRolePermissionAllow(t *testing.T) {
	snap := mustSnapshot(t, fixtureUsers(), fixtureRoles(), nil, nil)

	dec := Evaluate(snap, &AccessRequest{UserID: "alice", Resource: "/code/readme.md", Action: "read"}, testNow)
	if !dec.Allowed {
		t.Fatalf("expected allow, got deny: %s", dec.Reason)
	}
	if dec.Reason != ReasonRolePermission {
		t.Fatalf("reason = %q, want %q", dec.Reason, ReasonRolePermission)
	}
	if dec.MatchedPolicy != "" || dec.MatchedRule != "" {
		t.Fatalf("role-derived allow should carry no policy attribution, got %q/%q", dec.MatchedPolicy, dec.MatchedRule)
	}

	want := []StepType{StepUserLookup, StepRoleCheck, StepPermissionCheck, StepFinalDecision}
	if got := stepTypes(dec.EvaluationPath); !reflect.DeepEqual(got, want) {
		t.Fatalf("trace types = %v, want %v", got, want)
	}
	for i, s := range dec.EvaluationPath {
		if s.Step != i+1 {
			t.Fatalf("step %d numbered %d; numbering must be contiguous from 1", i, s.Step)
		}
	}
	if last := dec.EvaluationPath[len(dec.EvaluationPath)-1]; last.Result != ResultPass {
		t.Fatalf("final_decision result = %s, want pass", last.Result)
	}
}

func TestEvaluateInheritedPermission(t *testing.T) {
	snap := mustSnapshot(t, fixtureUsers(), fixtureRoles(), nil, nil)

	// wiki:read comes from the employee ancestor, not from developer itself.
	dec := Evaluate(snap, &AccessRequest{UserID: "alice", Resource: "/wiki/home", Action: "read"}, testNow)
	if !dec.Allowed {
		t.Fatalf("inherited permission should grant access: %s", dec.Reason)
	}
}

func TestEvaluatePolicyAllowWithCondition(t *testing.T) {
	policies := []*Policy{{
		ID:       "reports-access",
		Name:     "Reports access",
		Enabled:  true,
		Priority: 10,
		Rules: []PolicyRule{{
			ID:        "non-admin-read",
			Effect:    EffectAllow,
			Actions:   []string{"read"},
			Resources: []string{"/reports/*"},
			Conditions: []PolicyCondition{
				{Attribute: AttrRole, Operator: OpNotEquals, Value: "admin"},
				{Attribute: AttrRisk, Operator: OpLessThan, Value: 50},
			},
		}},
	}}
	snap := mustSnapshot(t, fixtureUsers(), fixtureRoles(), nil, policies)

	// carol holds no covering permission; only the policy grants this.
	dec := Evaluate(snap, &AccessRequest{UserID: "carol", Resource: "/reports/q3", Action: "read"}, testNow)
	if !dec.Allowed {
		t.Fatalf("expected policy allow, got deny: %s", dec.Reason)
	}
	if dec.MatchedPolicy != "reports-access" || dec.MatchedRule != "non-admin-read" {
		t.Fatalf("attribution = %q/%q, want reports-access/non-admin-read", dec.MatchedPolicy, dec.MatchedRule)
	}

	// Both conditions must appear in the trace as passed condition checks.
	condSteps := 0
	for _, s := range dec.EvaluationPath {
		if s.Type == StepConditionCheck {
			condSteps++
			if s.Result != ResultPass {
				t.Fatalf("condition step %d result = %s, want pass", s.Step, s.Result)
			}
		}
	}
	if condSteps != 2 {
		t.Fatalf("trace has %d condition_check steps, want 2", condSteps)
	}
}

func TestEvaluateSuspendedUserShortCircuits(t *testing.T) {
	snap := mustSnapshot(t, fixtureUsers(), fixtureRoles(), nil, nil)

	dec := Evaluate(snap, &AccessRequest{UserID: "bob", Resource: "/code/readme.md", Action: "read"}, testNow)
	if dec.Allowed {
		t.Fatal("suspended user must be denied")
	}
	if dec.Reason != ReasonAccountNotActive {
		t.Fatalf("reason = %q, want %q", dec.Reason, ReasonAccountNotActive)
	}

	if len(dec.EvaluationPath) != 5 {
		t.Fatalf("trace has %d steps, want 5", len(dec.EvaluationPath))
	}
	if first := dec.EvaluationPath[0]; first.Type != StepUserLookup || first.Result != ResultFail {
		t.Fatalf("first step = %s/%s, want user_lookup/fail", first.Type, first.Result)
	}
	for _, s := range dec.EvaluationPath[1:] {
		if s.Result != ResultSkip {
			t.Fatalf("step %d (%s) result = %s, want skip", s.Step, s.Type, s.Result)
		}
	}
}

func TestEvaluateUnknownUser(t *testing.T) {
	snap := mustSnapshot(t, fixtureUsers(), fixtureRoles(), nil, nil)

	dec := Evaluate(snap, &AccessRequest{UserID: "mallory", Resource: "/code/readme.md", Action: "read"}, testNow)
	if dec.Allowed || dec.Reason != ReasonUserNotFound {
		t.Fatalf("got allowed=%v reason=%q, want deny %q", dec.Allowed, dec.Reason, ReasonUserNotFound)
	}
}

func TestEvaluateDenyOverridesRolePermission(t *testing.T) {
	policies := []*Policy{{
		ID:       "freeze-writes",
		Enabled:  true,
		Priority: 1,
		Rules: []PolicyRule{{
			ID:          "deny-risky-write",
			Description: "writes are frozen for elevated risk scores",
			Effect:      EffectDeny,
			Actions:     []string{"write"},
			Resources:   []string{"/code/*"},
			Conditions: []PolicyCondition{
				{Attribute: AttrRisk, Operator: OpGreaterThan, Value: 10},
			},
		}},
	}}
	snap := mustSnapshot(t, fixtureUsers(), fixtureRoles(), nil, policies)

	// alice's developer role grants code:write, but the deny rule overrides it.
	dec := Evaluate(snap, &AccessRequest{UserID: "alice", Resource: "/code/main.go", Action: "write"}, testNow)
	if dec.Allowed {
		t.Fatal("explicit deny must override a role-derived allow")
	}
	if dec.Reason != "writes are frozen for elevated risk scores" {
		t.Fatalf("deny reason = %q, want the rule description", dec.Reason)
	}
	if dec.MatchedPolicy != "freeze-writes" || dec.MatchedRule != "deny-risky-write" {
		t.Fatalf("attribution = %q/%q", dec.MatchedPolicy, dec.MatchedRule)
	}

	// The permission_check step still records the tentative role grant.
	sawTentative := false
	for _, s := range dec.EvaluationPath {
		if s.Type == StepPermissionCheck && s.Result == ResultPass {
			sawTentative = true
		}
	}
	if !sawTentative {
		t.Fatal("trace should show the tentative role grant before the deny")
	}
}

func TestEvaluateDenyStopsRemainingPolicies(t *testing.T) {
	mkAllow := func(id string, prio int) *Policy {
		return &Policy{
			ID: id, Enabled: true, Priority: prio,
			Rules: []PolicyRule{{ID: "allow", Effect: EffectAllow, Actions: []string{"read"}, Resources: []string{"/data/*"}}},
		}
	}
	deny := &Policy{
		ID: "deny-mid", Enabled: true, Priority: 5,
		Rules: []PolicyRule{{ID: "deny", Effect: EffectDeny, Actions: []string{"read"}, Resources: []string{"/data/*"}}},
	}
	snap := mustSnapshot(t, fixtureUsers(), fixtureRoles(), nil, []*Policy{mkAllow("late-allow", 50), deny, mkAllow("early-allow", 1)})

	dec := Evaluate(snap, &AccessRequest{UserID: "carol", Resource: "/data/x", Action: "read"}, testNow)
	if dec.Allowed {
		t.Fatal("deny-overrides must win even with an earlier allow")
	}
	if dec.MatchedPolicy != "deny-mid" {
		t.Fatalf("matched policy = %q, want deny-mid", dec.MatchedPolicy)
	}

	// The higher-priority-value policy after the deny stop surfaces as skip.
	sawSkip := false
	for _, s := range dec.EvaluationPath {
		if s.Type == StepPolicyEval && s.Result == ResultSkip {
			sawSkip = true
			if s.Details["policy"] != "late-allow" {
				t.Fatalf("skipped policy = %v, want late-allow", s.Details["policy"])
			}
		}
	}
	if !sawSkip {
		t.Fatal("policies after a deny stop must appear in the trace as skip")
	}
}

func TestEvaluateAllowAttributionFollowsPriority(t *testing.T) {
	mk := func(id string, prio int) *Policy {
		return &Policy{
			ID: id, Enabled: true, Priority: prio,
			Rules: []PolicyRule{{ID: "r", Effect: EffectAllow, Actions: []string{"read"}, Resources: []string{"/data/*"}}},
		}
	}
	snap := mustSnapshot(t, fixtureUsers(), fixtureRoles(), nil, []*Policy{mk("low-precedence", 20), mk("high-precedence", 5)})

	dec := Evaluate(snap, &AccessRequest{UserID: "carol", Resource: "/data/x", Action: "read"}, testNow)
	if !dec.Allowed {
		t.Fatalf("expected allow: %s", dec.Reason)
	}
	if dec.MatchedPolicy != "high-precedence" {
		t.Fatalf("matched policy = %q, want the lower priority value (higher precedence)", dec.MatchedPolicy)
	}
}

func TestEvaluateDisabledPolicyIgnored(t *testing.T) {
	policies := []*Policy{{
		ID: "disabled-deny", Enabled: false, Priority: 1,
		Rules: []PolicyRule{{ID: "deny", Effect: EffectDeny, Actions: []string{"*"}, Resources: []string{"*"}}},
	}}
	snap := mustSnapshot(t, fixtureUsers(), fixtureRoles(), nil, policies)

	dec := Evaluate(snap, &AccessRequest{UserID: "alice", Resource: "/code/readme.md", Action: "read"}, testNow)
	if !dec.Allowed {
		t.Fatalf("disabled policy must not affect the outcome: %s", dec.Reason)
	}
}

func TestEvaluateDefaultDeny(t *testing.T) {
	snap := mustSnapshot(t, fixtureUsers(), fixtureRoles(), nil, nil)

	dec := Evaluate(snap, &AccessRequest{UserID: "carol", Resource: "/deploy/production", Action: "execute"}, testNow)
	if dec.Allowed {
		t.Fatal("no grant anywhere must fall through to deny")
	}
	if dec.Reason != ReasonDefaultDeny {
		t.Fatalf("reason = %q, want %q", dec.Reason, ReasonDefaultDeny)
	}
	if last := dec.EvaluationPath[len(dec.EvaluationPath)-1]; last.Type != StepFinalDecision || last.Result != ResultFail {
		t.Fatalf("last step = %s/%s, want final_decision/fail", last.Type, last.Result)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	policies := []*Policy{{
		ID: "p", Enabled: true, Priority: 3,
		Rules: []PolicyRule{{
			ID: "r", Effect: EffectAllow, Actions: []string{"read"}, Resources: []string{"/reports/*"},
			Conditions: []PolicyCondition{{Attribute: AttrDepartment, Operator: OpEquals, Value: "finance"}},
		}},
	}}
	snap := mustSnapshot(t, fixtureUsers(), fixtureRoles(), nil, policies)
	req := &AccessRequest{UserID: "carol", Resource: "/reports/q3", Action: "read"}

	first := Evaluate(snap, req, testNow)
	for i := 0; i < 10; i++ {
		again := Evaluate(snap, req, testNow)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("evaluation is not deterministic:\nfirst: %+v\nagain: %+v", first, again)
		}
	}
}

func TestEvaluateResourceRegistryIDMatch(t *testing.T) {
	resources := []*Resource{{ID: "res-readme", Path: "/code/readme.md", Sensitivity: "internal"}}
	policies := []*Policy{{
		ID: "by-id", Enabled: true, Priority: 1,
		Rules: []PolicyRule{{ID: "r", Effect: EffectAllow, Actions: []string{"read"}, Resources: []string{"res-readme"}}},
	}}
	snap := mustSnapshot(t, fixtureUsers(), fixtureRoles(), resources, policies)

	dec := Evaluate(snap, &AccessRequest{UserID: "carol", Resource: "/code/readme.md", Action: "read"}, testNow)
	if !dec.Allowed {
		t.Fatalf("rule referencing a registry id should match its path: %s", dec.Reason)
	}
}

func TestEvaluateWithCyclicHierarchyStillAnswers(t *testing.T) {
	roles := []*Role{
		{ID: "a", ParentRole: "b", Permissions: []string{"code:read"}},
		{ID: "b", ParentRole: "a", Permissions: []string{"wiki:read"}},
	}
	users := []*User{{ID: "dave", Status: StatusActive, Roles: []string{"a"}}}
	snap, err := NewSnapshot(users, roles, nil, nil)
	if err == nil {
		t.Fatal("expected configuration error for the cycle")
	}

	// Evaluation still works with the truncated permission sets.
	dec := Evaluate(snap, &AccessRequest{UserID: "dave", Resource: "/code/x", Action: "read"}, testNow)
	if !dec.Allowed {
		t.Fatalf("permissions collected before the cycle must still apply: %s", dec.Reason)
	}
}
