package access

import (
	"errors"
	"testing"
)

func TestResolveHierarchyInheritsAncestorPermissions(t *testing.T) {
	roles := []*Role{
		{ID: "employee", Permissions: []string{"wiki:read"}},
		{ID: "developer", ParentRole: "employee", Permissions: []string{"code:read", "code:write"}},
		{ID: "lead", ParentRole: "developer", Permissions: []string{"deploy:execute"}},
	}
	h, err := ResolveHierarchy(roles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lead := h["lead"]
	for _, perm := range []string{"wiki:read", "code:read", "code:write", "deploy:execute"} {
		if !lead.HasPermission(perm) {
			t.Fatalf("lead missing inherited permission %q, got %v", perm, lead.EffectivePermissions)
		}
	}
	if got := lead.AncestorChain; len(got) != 2 || got[0] != "developer" || got[1] != "employee" {
		t.Fatalf("ancestor chain = %v, want [developer employee]", got)
	}

	// Inheritance is monotonic: a child set always contains the parent set.
	dev := h["developer"]
	for _, perm := range h["employee"].EffectivePermissions {
		if !dev.HasPermission(perm) {
			t.Fatalf("developer missing parent permission %q", perm)
		}
	}
}

func TestResolveHierarchyCycleTruncates(t *testing.T) {
	roles := []*Role{
		{ID: "a", ParentRole: "b", Permissions: []string{"a:read"}},
		{ID: "b", ParentRole: "c", Permissions: []string{"b:read"}},
		{ID: "c", ParentRole: "a", Permissions: []string{"c:read"}},
	}
	h, err := ResolveHierarchy(roles)
	if err == nil {
		t.Fatal("expected configuration error for cyclic hierarchy")
	}
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error %v is not a ConfigurationError", err)
	}

	// The walk keeps everything collected before the cycle closed.
	a := h["a"]
	for _, perm := range []string{"a:read", "b:read", "c:read"} {
		if !a.HasPermission(perm) {
			t.Fatalf("role a missing permission %q collected before cycle, got %v", perm, a.EffectivePermissions)
		}
	}
}

func TestResolveHierarchySelfCycle(t *testing.T) {
	h, err := ResolveHierarchy([]*Role{{ID: "loop", ParentRole: "loop", Permissions: []string{"x:read"}}})
	if err == nil {
		t.Fatal("expected configuration error for self-referential role")
	}
	if !h["loop"].HasPermission("x:read") {
		t.Fatal("self-referential role lost its own permissions")
	}
}

func TestResolveHierarchyDanglingParent(t *testing.T) {
	h, err := ResolveHierarchy([]*Role{{ID: "orphan", ParentRole: "missing", Permissions: []string{"x:read"}}})
	if err != nil {
		t.Fatalf("dangling parent should not be an error, got %v", err)
	}
	if got := h["orphan"].AncestorChain; len(got) != 0 {
		t.Fatalf("ancestor chain = %v, want empty", got)
	}
}

func TestResolveHierarchyDeterministicPermissionOrder(t *testing.T) {
	roles := []*Role{
		{ID: "r", Permissions: []string{"z:read", "a:read", "m:read"}},
	}
	first, _ := ResolveHierarchy(roles)
	second, _ := ResolveHierarchy(roles)
	a, b := first["r"].EffectivePermissions, second["r"].EffectivePermissions
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("resolution order not deterministic: %v vs %v", a, b)
		}
	}
	if a[0] != "a:read" || a[1] != "m:read" || a[2] != "z:read" {
		t.Fatalf("permissions not sorted: %v", a)
	}
}
