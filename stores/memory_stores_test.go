package stores

import (
	"context"
	"testing"
	"time"

	"github.com/shieldview/access"
)

func TestMemoryPolicyStoreHistory(t *testing.T) {
	store := NewMemoryPolicyStore()
	ctx := context.Background()

	p := &access.Policy{
		ID:      "p1",
		Enabled: true,
		Rules:   []access.PolicyRule{{ID: "r", Effect: access.EffectAllow, Actions: []string{"read"}, Resources: []string{"*"}}},
	}
	if err := store.CreatePolicy(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CreatePolicy(ctx, p); err == nil {
		t.Fatal("duplicate create should fail")
	}

	updated := *p
	updated.Priority = 9
	if err := store.UpdatePolicy(ctx, &updated); err != nil {
		t.Fatalf("update: %v", err)
	}

	h, err := store.GetPolicyHistory(ctx, "p1")
	if err != nil || len(h) != 1 {
		t.Fatalf("history: %v, %d entries", err, len(h))
	}
	if h[0].Priority != 0 {
		t.Fatalf("history should hold the pre-update snapshot, got priority %d", h[0].Priority)
	}
}

func TestMemoryResourceStorePathIndex(t *testing.T) {
	store := NewMemoryResourceStore()
	ctx := context.Background()

	r := &access.Resource{ID: "res-1", Path: "/code/readme.md"}
	if err := store.CreateResource(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.GetResourceByPath(ctx, "/code/readme.md")
	if err != nil || got.ID != "res-1" {
		t.Fatalf("lookup by path: %v, %+v", err, got)
	}

	// Re-registering the same id under a new path retires the old path.
	r2 := &access.Resource{ID: "res-1", Path: "/code/README.md"}
	if err := store.CreateResource(ctx, r2); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if _, err := store.GetResourceByPath(ctx, "/code/readme.md"); err == nil {
		t.Fatal("old path should be retired")
	}
	if err := store.DeleteResource(ctx, "res-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if list, _ := store.ListResources(ctx); len(list) != 0 {
		t.Fatalf("resources after delete = %v", list)
	}
}

func TestMemoryAuditStoreFilter(t *testing.T) {
	store := NewMemoryAuditStore()
	ctx := context.Background()

	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	for i, user := range []string{"alice", "bob", "alice"} {
		entry := &access.AuditEntry{
			ID:        string(rune('a' + i)),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			UserID:    user,
			Action:    "read",
			Resource:  "/code/readme.md",
			Decision:  &access.AccessDecision{Allowed: true},
		}
		if err := store.LogDecision(ctx, entry); err != nil {
			t.Fatalf("log: %v", err)
		}
	}

	logs, err := store.GetAccessLog(ctx, access.AuditFilter{UserID: "alice"})
	if err != nil || len(logs) != 2 {
		t.Fatalf("filter by user: %v, %d entries", err, len(logs))
	}

	logs, _ = store.GetAccessLog(ctx, access.AuditFilter{StartTime: base.Add(90 * time.Second)})
	if len(logs) != 1 {
		t.Fatalf("filter by start time: %d entries", len(logs))
	}

	logs, _ = store.GetAccessLog(ctx, access.AuditFilter{Limit: 1})
	if len(logs) != 1 {
		t.Fatalf("limit: %d entries", len(logs))
	}
}
