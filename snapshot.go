package access

import (
	"fmt"
	"sort"
	"time"
)

// Snapshot is an immutable view of the user/role/resource/policy state the
// engine evaluates against. It is built once per store mutation, never per
// request, and carries the memoized role hierarchy closure. Evaluate is a pure
// function of (snapshot, request, time); concurrent evaluations share a
// snapshot safely because nothing in it is written after construction.
type Snapshot struct {
	Users     map[string]*User
	Roles     map[string]*Role
	Resources map[string]*Resource // keyed by path
	Policies  []*Policy            // sorted by ascending priority, then id
	Hierarchy map[string]*EffectiveRole
}

// NewSnapshot assembles a snapshot and resolves the role hierarchy. A cyclic
// hierarchy yields a non-nil *ConfigurationError (possibly joined) for the
// administrator, but the snapshot is still fully usable: the offending roles
// keep the permissions collected before the cycle was detected.
func NewSnapshot(users []*User, roles []*Role, resources []*Resource, policies []*Policy) (*Snapshot, error) {
	s := &Snapshot{
		Users:     make(map[string]*User, len(users)),
		Roles:     make(map[string]*Role, len(roles)),
		Resources: make(map[string]*Resource, len(resources)),
		Policies:  make([]*Policy, 0, len(policies)),
	}
	for _, u := range users {
		s.Users[u.ID] = u
	}
	for _, r := range roles {
		s.Roles[r.ID] = r
	}
	for _, r := range resources {
		s.Resources[r.Path] = r
	}
	s.Policies = append(s.Policies, policies...)
	sort.SliceStable(s.Policies, func(i, j int) bool {
		if s.Policies[i].Priority != s.Policies[j].Priority {
			return s.Policies[i].Priority < s.Policies[j].Priority
		}
		return s.Policies[i].ID < s.Policies[j].ID
	})

	hierarchy, err := ResolveHierarchy(roles)
	s.Hierarchy = hierarchy
	return s, err
}

// effectiveRolesFor expands a user's role ids through the hierarchy closure:
// each held role followed by its ancestor chain, deduplicated in first-seen
// order. Role ids that resolve to no known role are returned separately.
func (s *Snapshot) effectiveRolesFor(u *User) (roles []string, unknown []string) {
	seen := make(map[string]bool, len(u.Roles)*2)
	appendRole := func(id string) {
		if !seen[id] {
			seen[id] = true
			roles = append(roles, id)
		}
	}
	for _, rid := range u.Roles {
		er, ok := s.Hierarchy[rid]
		if !ok {
			unknown = append(unknown, rid)
			continue
		}
		appendRole(rid)
		for _, anc := range er.AncestorChain {
			appendRole(anc)
		}
	}
	return roles, unknown
}

// effectivePermissionsFor is the sorted union of the user's effective role
// permission sets.
func (s *Snapshot) effectivePermissionsFor(u *User) []string {
	set := make(map[string]struct{})
	for _, rid := range u.Roles {
		er, ok := s.Hierarchy[rid]
		if !ok {
			continue
		}
		for _, p := range er.EffectivePermissions {
			set[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Evaluate runs one access request against the snapshot and returns the
// decision with its complete evaluation trace. It performs no I/O, touches no
// shared mutable state and is deterministic for identical inputs.
func Evaluate(snap *Snapshot, req *AccessRequest, now time.Time) *AccessDecision {
	tb := newTraceBuilder()
	dec := &AccessDecision{Timestamp: now}

	// 1. user_lookup
	user, ok := snap.Users[req.UserID]
	if !ok {
		tb.add(StepUserLookup, ResultFail, fmt.Sprintf("user %s not found", req.UserID), nil)
		return shortCircuitDeny(tb, dec, ReasonUserNotFound)
	}
	if user.Status != StatusActive {
		tb.add(StepUserLookup, ResultFail,
			fmt.Sprintf("user %s has status %s", user.ID, user.Status),
			map[string]any{"status": string(user.Status)})
		return shortCircuitDeny(tb, dec, ReasonAccountNotActive)
	}
	tb.add(StepUserLookup, ResultPass, fmt.Sprintf("user %s is active", user.ID), nil)

	// 2. role_check: zero effective roles is recorded as fail but evaluation
	// continues, since a policy can still grant access on attributes alone.
	effRoles, unknown := snap.effectiveRolesFor(user)
	roleDetails := map[string]any{}
	if len(effRoles) > 0 {
		roleDetails["roles"] = effRoles
	}
	if len(unknown) > 0 {
		roleDetails["unknown_roles"] = unknown
	}
	if len(roleDetails) == 0 {
		roleDetails = nil
	}
	if len(effRoles) == 0 {
		tb.add(StepRoleCheck, ResultFail, "user has no effective roles", roleDetails)
	} else {
		tb.add(StepRoleCheck, ResultPass,
			fmt.Sprintf("resolved %d effective role(s)", len(effRoles)), roleDetails)
	}

	rc := &RequestContext{
		User:         user,
		Roles:        effRoles,
		Resource:     snap.Resources[req.Resource],
		ResourcePath: req.Resource,
		Action:       req.Action,
		Time:         now,
	}

	// 3. permission_check: a role-derived grant is only tentative; an explicit
	// deny rule found below still overrides it.
	roleAllow := false
	grantedBy := ""
	perms := snap.effectivePermissionsFor(user)
	for _, p := range perms {
		if permissionCovers(p, req.Action, req.Resource) {
			roleAllow = true
			grantedBy = p
			break
		}
	}
	if roleAllow {
		tb.add(StepPermissionCheck, ResultPass,
			fmt.Sprintf("permission %q covers %s on %s", grantedBy, req.Action, req.Resource),
			map[string]any{"permission": grantedBy})
	} else {
		tb.add(StepPermissionCheck, ResultFail, "no role permission covers the request", nil)
	}

	// 4. policy_eval: enabled policies in ascending priority, rules in
	// declaration order. First matching deny stops the scan; allows are
	// tentative and keep their first (highest precedence) attribution.
	var (
		denyFound                bool
		denyPolicy, denyRule     string
		denyReason               string
		allowFound               bool
		allowPolicy, allowRule   string
		allowReason              string
		stoppedAt                = -1
	)

	for i, pol := range snap.Policies {
		if !pol.Enabled {
			continue
		}

		polMatched := false
		var polOutcomes []traceCondition
		var matchedRuleID string
		var matchedEffect Effect

		for ri := range pol.Rules {
			rule := &pol.Rules[ri]
			matched, outcomes := matchRule(rule, rc)
			for _, oc := range outcomes {
				polOutcomes = append(polOutcomes, traceCondition{ruleID: rule.ID, outcome: oc})
			}
			if !matched {
				continue
			}
			polMatched = true
			matchedRuleID = rule.ID
			matchedEffect = rule.Effect

			if rule.Effect == EffectDeny {
				denyFound = true
				denyPolicy = pol.ID
				denyRule = rule.ID
				denyReason = ruleReason(pol, rule)
				break
			}
			if !allowFound {
				allowFound = true
				allowPolicy = pol.ID
				allowRule = rule.ID
				allowReason = ruleReason(pol, rule)
			}
		}

		emitPolicyEval(tb, pol, polMatched, matchedRuleID, matchedEffect, polOutcomes)

		if denyFound {
			stoppedAt = i
			break
		}
	}

	// Policies left unevaluated by the deny stop surface in the trace as skip.
	if stoppedAt >= 0 {
		for _, pol := range snap.Policies[stoppedAt+1:] {
			if !pol.Enabled {
				continue
			}
			tb.add(StepPolicyEval, ResultSkip,
				fmt.Sprintf("policy %s not evaluated: explicit deny already matched", pol.ID),
				map[string]any{"policy": pol.ID})
		}
	}

	// 5. final_decision: deny-overrides, then tentative allow, then default deny.
	switch {
	case denyFound:
		dec.Allowed = false
		dec.Reason = denyReason
		dec.MatchedPolicy = denyPolicy
		dec.MatchedRule = denyRule
		tb.add(StepFinalDecision, ResultFail, "access denied: "+denyReason,
			map[string]any{"policy": denyPolicy, "rule": denyRule})
	case allowFound:
		dec.Allowed = true
		dec.Reason = allowReason
		dec.MatchedPolicy = allowPolicy
		dec.MatchedRule = allowRule
		tb.add(StepFinalDecision, ResultPass, "access allowed: "+allowReason,
			map[string]any{"policy": allowPolicy, "rule": allowRule})
	case roleAllow:
		dec.Allowed = true
		dec.Reason = ReasonRolePermission
		tb.add(StepFinalDecision, ResultPass,
			fmt.Sprintf("access allowed: %s (%s)", ReasonRolePermission, grantedBy),
			map[string]any{"permission": grantedBy})
	default:
		dec.Allowed = false
		dec.Reason = ReasonDefaultDeny
		tb.add(StepFinalDecision, ResultFail, "access denied: "+ReasonDefaultDeny, nil)
	}

	dec.EvaluationPath = tb.path()
	return dec
}

type traceCondition struct {
	ruleID  string
	outcome conditionOutcome
}

// emitPolicyEval writes the policy_eval step followed by the condition_check
// steps evaluated while matching its rules.
func emitPolicyEval(tb *traceBuilder, pol *Policy, matched bool, ruleID string, effect Effect, conds []traceCondition) {
	if matched {
		tb.add(StepPolicyEval, ResultPass,
			fmt.Sprintf("policy %s (priority %d): rule %s matched with effect %s", pol.ID, pol.Priority, ruleID, effect),
			map[string]any{"policy": pol.ID, "rule": ruleID, "effect": string(effect)})
	} else {
		tb.add(StepPolicyEval, ResultFail,
			fmt.Sprintf("policy %s (priority %d): no rule matched", pol.ID, pol.Priority),
			map[string]any{"policy": pol.ID})
	}
	for _, tc := range conds {
		result := ResultPass
		if !tc.outcome.Passed {
			result = ResultFail
		}
		details := map[string]any{
			"policy":    pol.ID,
			"rule":      tc.ruleID,
			"attribute": string(tc.outcome.Condition.Attribute),
			"operator":  string(tc.outcome.Condition.Operator),
			"value":     tc.outcome.Condition.Value,
		}
		if tc.outcome.Note != "" {
			details["warning"] = tc.outcome.Note
		}
		tb.add(StepConditionCheck, result,
			fmt.Sprintf("condition %s", tc.outcome.Condition), details)
	}
}

// shortCircuitDeny finishes a trace whose user_lookup failed: the remaining
// steps are emitted as skip and the decision is a deny with the lookup reason.
func shortCircuitDeny(tb *traceBuilder, dec *AccessDecision, reason string) *AccessDecision {
	tb.add(StepRoleCheck, ResultSkip, "skipped", nil)
	tb.add(StepPermissionCheck, ResultSkip, "skipped", nil)
	tb.add(StepPolicyEval, ResultSkip, "skipped", nil)
	tb.add(StepFinalDecision, ResultSkip, "access denied: "+reason, nil)
	dec.Allowed = false
	dec.Reason = reason
	dec.EvaluationPath = tb.path()
	return dec
}

func ruleReason(pol *Policy, rule *PolicyRule) string {
	if rule.Description != "" {
		return rule.Description
	}
	name := pol.Name
	if name == "" {
		name = pol.ID
	}
	if rule.Effect == EffectDeny {
		return fmt.Sprintf("denied by policy %s", name)
	}
	return fmt.Sprintf("allowed by policy %s", name)
}
