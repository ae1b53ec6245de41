package access

import (
	"testing"
	"time"
)

func TestMatchAction(t *testing.T) {
	cases := []struct {
		pattern, action string
		want            bool
	}{
		{"read", "read", true},
		{"read", "write", false},
		{"*", "anything", true},
		{"deploy:*", "deploy:canary", true},
		{"deploy:*", "rollback", false},
	}
	for _, tc := range cases {
		if got := matchAction(tc.pattern, tc.action); got != tc.want {
			t.Fatalf("matchAction(%q, %q) = %v, want %v", tc.pattern, tc.action, got, tc.want)
		}
	}
}

func TestPermissionCovers(t *testing.T) {
	cases := []struct {
		perm, action, path string
		want               bool
	}{
		{"code:read", "read", "/code/readme.md", true},
		{"code:read", "write", "/code/readme.md", false},
		{"code:read", "read", "/deploy/production", false},
		{"code:*", "write", "/code/main.go", true},
		{"*", "delete", "/anything", true},
		{"*:read", "read", "/wiki/page", true},
		{"/deploy/*:execute", "execute", "/deploy/staging", true},
		{"/deploy/*:execute", "execute", "/code/readme.md", false},
	}
	for _, tc := range cases {
		if got := permissionCovers(tc.perm, tc.action, tc.path); got != tc.want {
			t.Fatalf("permissionCovers(%q, %q, %q) = %v, want %v", tc.perm, tc.action, tc.path, got, tc.want)
		}
	}
}

func TestMatchResourceEntry(t *testing.T) {
	rc := &RequestContext{
		Resource:     &Resource{ID: "res-readme", Path: "/code/readme.md"},
		ResourcePath: "/code/readme.md",
	}
	if !matchResourceEntry("res-readme", rc) {
		t.Fatal("registry id should match the registered resource")
	}
	if !matchResourceEntry("/code/readme.md", rc) {
		t.Fatal("exact path should match")
	}
	if !matchResourceEntry("/code/*", rc) {
		t.Fatal("prefix pattern should match a child path")
	}
	if matchResourceEntry("/deploy/*", rc) {
		t.Fatal("unrelated prefix should not match")
	}
}

func TestMatchRuleShortCircuitsConditions(t *testing.T) {
	rc := &RequestContext{
		User:         &User{ID: "u", Department: "finance", RiskScore: 90},
		Roles:        []string{"analyst"},
		ResourcePath: "/reports/q3",
		Action:       "read",
		Time:         time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
	}
	rule := &PolicyRule{
		ID:        "r1",
		Effect:    EffectAllow,
		Actions:   []string{"read"},
		Resources: []string{"/reports/*"},
		Conditions: []PolicyCondition{
			{Attribute: AttrDepartment, Operator: OpEquals, Value: "engineering"}, // fails
			{Attribute: AttrRisk, Operator: OpLessThan, Value: 50},                // never reached
		},
	}

	matched, outcomes := matchRule(rule, rc)
	if matched {
		t.Fatal("rule should not match with a failing condition")
	}
	if len(outcomes) != 1 {
		t.Fatalf("conditions after the first failure must be skipped, got %d outcomes", len(outcomes))
	}
	if outcomes[0].Passed {
		t.Fatal("first outcome should be the failing condition")
	}
}

func TestMatchRuleRequiresActionAndResource(t *testing.T) {
	rc := &RequestContext{
		User:         &User{ID: "u"},
		ResourcePath: "/code/readme.md",
		Action:       "write",
	}
	rule := &PolicyRule{
		ID:        "r1",
		Effect:    EffectAllow,
		Actions:   []string{"read"},
		Resources: []string{"/code/*"},
	}
	if matched, _ := matchRule(rule, rc); matched {
		t.Fatal("action mismatch should prevent a match")
	}

	rule.Actions = []string{"write"}
	rule.Resources = []string{"/deploy/*"}
	if matched, _ := matchRule(rule, rc); matched {
		t.Fatal("resource mismatch should prevent a match")
	}

	rule.Resources = []string{"/code/*"}
	if matched, _ := matchRule(rule, rc); !matched {
		t.Fatal("rule with no conditions should match on action and resource alone")
	}
}
