package access

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/shieldview/access/logger"
)

// Engine is the decision point. It loads users, roles, resources and policies
// from its stores into an immutable snapshot, answers access requests against
// that snapshot, caches decisions, and journals every decision to the audit
// store through a non-blocking channel.
type Engine struct {
	userStore       UserStore
	roleStore       RoleStore
	policyStore     PolicyStore
	resourceStore   ResourceStore
	auditStore      AuditStore
	membershipStore RoleMembershipStore // optional, merged into user role sets on reload

	snapshot atomic.Pointer[Snapshot]

	decisionCache    *ristretto.Cache
	decisionCacheTTL time.Duration

	logger      logger.Logger
	traceIDFunc logger.TraceIDFunc
	clock       func() time.Time

	auditCh   chan AuditEntry
	auditDone chan struct{}
	closed    atomic.Bool
}

const defaultAuditBuffer = 1024

// NewEngine wires an engine over the given stores. The audit store may be nil
// when no journaling is wanted; everything else is required. The initial
// snapshot is built from the stores before the engine is returned.
func NewEngine(ctx context.Context, users UserStore, roles RoleStore, policies PolicyStore, resources ResourceStore, audit AuditStore, opts ...EngineOption) (*Engine, error) {
	if users == nil || roles == nil || policies == nil || resources == nil {
		return nil, errors.New("access: user, role, policy and resource stores are required")
	}
	e := &Engine{
		userStore:        users,
		roleStore:        roles,
		policyStore:      policies,
		resourceStore:    resources,
		auditStore:       audit,
		decisionCacheTTL: time.Minute,
		logger:           logger.NewPhusluLogger(),
		clock:            time.Now,
		auditCh:          make(chan AuditEntry, defaultAuditBuffer),
		auditDone:        make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("access: decision cache: %w", err)
	}
	e.decisionCache = cache

	go e.auditWorker()

	if err := e.Reload(ctx); err != nil {
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			e.Close()
			return nil, err
		}
		// Cycles are an administrative problem, not a startup failure. The
		// snapshot is installed with truncated permissions and the error is
		// surfaced through the log.
		e.logger.Error("role hierarchy has configuration errors", "error", err.Error())
	}
	return e, nil
}

// Reload rebuilds the snapshot from the stores and drops all cached decisions.
// Store failures abort the reload and leave the previous snapshot in place.
// A *ConfigurationError (cyclic hierarchy) does not abort: the new snapshot is
// installed with the affected roles truncated and the error returned so the
// caller can alert an administrator.
func (e *Engine) Reload(ctx context.Context) error {
	users, err := e.userStore.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("access: reload users: %w", err)
	}
	roles, err := e.roleStore.ListRoles(ctx)
	if err != nil {
		return fmt.Errorf("access: reload roles: %w", err)
	}
	resources, err := e.resourceStore.ListResources(ctx)
	if err != nil {
		return fmt.Errorf("access: reload resources: %w", err)
	}
	policies, err := e.policyStore.ListPolicies(ctx)
	if err != nil {
		return fmt.Errorf("access: reload policies: %w", err)
	}

	if e.membershipStore != nil {
		users, err = e.mergeMemberships(ctx, users)
		if err != nil {
			return err
		}
	}

	snap, cfgErr := NewSnapshot(users, roles, resources, policies)
	e.snapshot.Store(snap)
	e.decisionCache.Clear()
	e.logger.Debug("snapshot reloaded",
		"users", len(snap.Users), "roles", len(snap.Roles),
		"resources", len(snap.Resources), "policies", len(snap.Policies))
	return cfgErr
}

// mergeMemberships unions externally managed role assignments into each user's
// declared role list.
func (e *Engine) mergeMemberships(ctx context.Context, users []*User) ([]*User, error) {
	out := make([]*User, 0, len(users))
	for _, u := range users {
		extra, err := e.membershipStore.ListRoles(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("access: reload memberships for %s: %w", u.ID, err)
		}
		if len(extra) == 0 {
			out = append(out, u)
			continue
		}
		// Membership stores return sets in arbitrary order; sort so snapshots
		// built from the same state are identical.
		sort.Strings(extra)
		merged := *u
		merged.Roles = append(append([]string{}, u.Roles...), extra...)
		out = append(out, &merged)
	}
	return out, nil
}

// Snapshot returns the current immutable snapshot, or nil before the first
// successful reload.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// EvaluateAccess answers one access request. Decisions are served from the
// cache when an identical request was answered within the cache TTL and no
// mutation happened since; every freshly computed decision is journaled to the
// audit store.
func (e *Engine) EvaluateAccess(ctx context.Context, req *AccessRequest) (*AccessDecision, error) {
	if req == nil {
		return nil, errors.New("access: nil request")
	}
	snap := e.snapshot.Load()
	if snap == nil {
		return nil, errors.New("access: no snapshot loaded")
	}

	key := req.UserID + "\x00" + req.Resource + "\x00" + req.Action
	if v, ok := e.decisionCache.Get(key); ok {
		if dec, ok := v.(*AccessDecision); ok {
			e.logger.Debug("decision cache hit", "user", req.UserID, "resource", req.Resource, "action", req.Action)
			return dec, nil
		}
	}

	dec := Evaluate(snap, req, e.clock())
	e.decisionCache.SetWithTTL(key, dec, 1, e.decisionCacheTTL)

	e.journal(req, dec)
	e.logger.Info("access evaluated",
		"user", req.UserID, "resource", req.Resource, "action", req.Action,
		"allowed", dec.Allowed, "reason", dec.Reason)
	return dec, nil
}

// BatchEvaluate answers several requests against one consistent snapshot.
// Results are positional.
func (e *Engine) BatchEvaluate(ctx context.Context, reqs []AccessRequest) ([]*AccessDecision, error) {
	snap := e.snapshot.Load()
	if snap == nil {
		return nil, errors.New("access: no snapshot loaded")
	}
	now := e.clock()
	out := make([]*AccessDecision, len(reqs))
	for i := range reqs {
		out[i] = Evaluate(snap, &reqs[i], now)
		e.journal(&reqs[i], out[i])
	}
	return out, nil
}

// ListEffectiveActions probes which of the given actions the user may perform
// on the resource right now. With no actions given a standard probe set is
// used. Probes bypass the cache and are not journaled.
func (e *Engine) ListEffectiveActions(ctx context.Context, userID, resource string, actions ...string) ([]string, error) {
	snap := e.snapshot.Load()
	if snap == nil {
		return nil, errors.New("access: no snapshot loaded")
	}
	if len(actions) == 0 {
		actions = []string{"read", "write", "execute", "delete", "admin"}
	}
	now := e.clock()
	var allowed []string
	for _, a := range actions {
		dec := Evaluate(snap, &AccessRequest{UserID: userID, Resource: resource, Action: a}, now)
		if dec.Allowed {
			allowed = append(allowed, a)
		}
	}
	return allowed, nil
}

// ReplayDecision re-evaluates an audited request against the current snapshot
// at the originally recorded time and reports whether the outcome still holds.
func (e *Engine) ReplayDecision(ctx context.Context, entry *AuditEntry) (*AccessDecision, bool, error) {
	if entry == nil || entry.Decision == nil {
		return nil, false, errors.New("access: audit entry has no decision")
	}
	snap := e.snapshot.Load()
	if snap == nil {
		return nil, false, errors.New("access: no snapshot loaded")
	}
	req := &AccessRequest{UserID: entry.UserID, Resource: entry.Resource, Action: entry.Action}
	dec := Evaluate(snap, req, entry.Timestamp)
	same := dec.Allowed == entry.Decision.Allowed &&
		dec.MatchedPolicy == entry.Decision.MatchedPolicy &&
		dec.MatchedRule == entry.Decision.MatchedRule
	return dec, same, nil
}

// journal hands the decision to the audit worker without blocking the request
// path. When the buffer is full the entry is dropped and counted in the log.
func (e *Engine) journal(req *AccessRequest, dec *AccessDecision) {
	if e.auditStore == nil || e.closed.Load() {
		return
	}
	entry := AuditEntry{
		ID:        strconv.FormatInt(dec.Timestamp.UnixNano(), 10),
		Timestamp: dec.Timestamp,
		UserID:    req.UserID,
		Action:    req.Action,
		Resource:  req.Resource,
		Decision:  dec,
	}
	if e.traceIDFunc != nil {
		entry.TraceID = e.traceIDFunc()
	}
	select {
	case e.auditCh <- entry:
	default:
		e.logger.Error("audit buffer full, dropping entry",
			"user", req.UserID, "resource", req.Resource, "action", req.Action)
	}
}

func (e *Engine) auditWorker() {
	defer close(e.auditDone)
	for entry := range e.auditCh {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.auditStore.LogDecision(ctx, &entry); err != nil {
			e.logger.Error("audit append failed", "id", entry.ID, "error", err.Error())
		}
		cancel()
	}
}

// Close stops the audit worker after draining buffered entries. The engine
// must not be used afterwards.
func (e *Engine) Close() {
	if e.closed.CompareAndSwap(false, true) {
		close(e.auditCh)
		<-e.auditDone
		e.decisionCache.Close()
	}
}

// invalidate drops cached decisions and rebuilds the snapshot after a store
// mutation. Configuration errors are logged, not returned; the mutation itself
// already succeeded.
func (e *Engine) invalidate(ctx context.Context) error {
	if err := e.Reload(ctx); err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			e.logger.Error("role hierarchy has configuration errors", "error", err.Error())
			return nil
		}
		return err
	}
	return nil
}

// Administrative operations. Each one writes through to the backing store and
// rebuilds the snapshot so the next evaluation sees the change.

func (e *Engine) CreateUser(ctx context.Context, u *User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if err := e.userStore.CreateUser(ctx, u); err != nil {
		return err
	}
	return e.invalidate(ctx)
}

func (e *Engine) UpdateUser(ctx context.Context, u *User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if err := e.userStore.UpdateUser(ctx, u); err != nil {
		return err
	}
	return e.invalidate(ctx)
}

func (e *Engine) DeleteUser(ctx context.Context, id string) error {
	if err := e.userStore.DeleteUser(ctx, id); err != nil {
		return err
	}
	return e.invalidate(ctx)
}

func (e *Engine) CreateRole(ctx context.Context, r *Role) error {
	if r.ID == "" {
		return errors.New("access: role id is required")
	}
	if err := e.roleStore.CreateRole(ctx, r); err != nil {
		return err
	}
	return e.invalidate(ctx)
}

func (e *Engine) UpdateRole(ctx context.Context, r *Role) error {
	if err := e.roleStore.UpdateRole(ctx, r); err != nil {
		return err
	}
	return e.invalidate(ctx)
}

func (e *Engine) DeleteRole(ctx context.Context, id string) error {
	if err := e.roleStore.DeleteRole(ctx, id); err != nil {
		return err
	}
	return e.invalidate(ctx)
}

func (e *Engine) CreatePolicy(ctx context.Context, p *Policy) error {
	if err := ValidatePolicy(p); err != nil {
		return err
	}
	if err := e.policyStore.CreatePolicy(ctx, p); err != nil {
		return err
	}
	return e.invalidate(ctx)
}

func (e *Engine) UpdatePolicy(ctx context.Context, p *Policy) error {
	if err := ValidatePolicy(p); err != nil {
		return err
	}
	if err := e.policyStore.UpdatePolicy(ctx, p); err != nil {
		return err
	}
	return e.invalidate(ctx)
}

func (e *Engine) DeletePolicy(ctx context.Context, id string) error {
	if err := e.policyStore.DeletePolicy(ctx, id); err != nil {
		return err
	}
	return e.invalidate(ctx)
}

// SetPolicyEnabled toggles a policy without touching its rules.
func (e *Engine) SetPolicyEnabled(ctx context.Context, id string, enabled bool) error {
	p, err := e.policyStore.GetPolicy(ctx, id)
	if err != nil {
		return err
	}
	p.Enabled = enabled
	p.UpdatedAt = e.clock()
	if err := e.policyStore.UpdatePolicy(ctx, p); err != nil {
		return err
	}
	return e.invalidate(ctx)
}

func (e *Engine) RegisterResource(ctx context.Context, r *Resource) error {
	if r.Path == "" {
		return errors.New("access: resource path is required")
	}
	if err := e.resourceStore.CreateResource(ctx, r); err != nil {
		return err
	}
	return e.invalidate(ctx)
}

func (e *Engine) RemoveResource(ctx context.Context, id string) error {
	if err := e.resourceStore.DeleteResource(ctx, id); err != nil {
		return err
	}
	return e.invalidate(ctx)
}

// AssignRole and RevokeRole manage external role memberships. They require a
// membership store to be configured.

func (e *Engine) AssignRole(ctx context.Context, userID, roleID string) error {
	if e.membershipStore == nil {
		return errors.New("access: no role membership store configured")
	}
	if err := e.membershipStore.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	return e.invalidate(ctx)
}

func (e *Engine) RevokeRole(ctx context.Context, userID, roleID string) error {
	if e.membershipStore == nil {
		return errors.New("access: no role membership store configured")
	}
	if err := e.membershipStore.RevokeRole(ctx, userID, roleID); err != nil {
		return err
	}
	return e.invalidate(ctx)
}

// AuditTrail reads back journaled decisions matching the filter.
func (e *Engine) AuditTrail(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	if e.auditStore == nil {
		return nil, errors.New("access: no audit store configured")
	}
	return e.auditStore.GetAccessLog(ctx, filter)
}

// ValidatePolicy checks structural soundness before a policy is accepted:
// ids present, at least one rule, known effects, non-empty action and resource
// sets, and every condition inside the attribute/operator table.
func ValidatePolicy(p *Policy) error {
	if p == nil || p.ID == "" {
		return errors.New("access: policy id is required")
	}
	if len(p.Rules) == 0 {
		return fmt.Errorf("access: policy %s has no rules", p.ID)
	}
	for i := range p.Rules {
		r := &p.Rules[i]
		if r.Effect != EffectAllow && r.Effect != EffectDeny {
			return fmt.Errorf("access: policy %s rule %s: unknown effect %q", p.ID, r.ID, r.Effect)
		}
		if len(r.Actions) == 0 {
			return fmt.Errorf("access: policy %s rule %s: no actions", p.ID, r.ID)
		}
		if len(r.Resources) == 0 {
			return fmt.Errorf("access: policy %s rule %s: no resources", p.ID, r.ID)
		}
		for _, c := range r.Conditions {
			ops, ok := operatorTable[c.Attribute]
			if !ok {
				return fmt.Errorf("access: policy %s rule %s: unknown attribute %q", p.ID, r.ID, c.Attribute)
			}
			if !ops[c.Operator] {
				return fmt.Errorf("access: policy %s rule %s: operator %q not permitted for attribute %q", p.ID, r.ID, c.Operator, c.Attribute)
			}
		}
	}
	return nil
}
