package access

import (
	"strings"

	"github.com/shieldview/access/utils"
)

// matchAction checks an action pattern against a requested action. "*" matches
// everything; a trailing '*' is a prefix match ("deploy:*" covers
// "deploy:canary").
func matchAction(pattern, actual string) bool {
	if pattern == "*" || pattern == actual {
		return true
	}
	if n := len(pattern); n > 0 && pattern[n-1] == '*' {
		prefix := pattern[:n-1]
		return len(actual) >= len(prefix) && actual[:len(prefix)] == prefix
	}
	return false
}

// matchResourceEntry checks one rule resource entry against the request. An
// entry is either a resource id (exact match against the registry record) or
// a path pattern with exact / trailing-'*' prefix semantics.
func matchResourceEntry(entry string, rc *RequestContext) bool {
	if rc.Resource != nil && entry == rc.Resource.ID {
		return true
	}
	return utils.MatchPath(rc.ResourcePath, entry)
}

// permissionCovers reports whether a role permission string covers the
// requested action on the resource path. Permissions are "<domain>:<action>"
// ("code:read"), where the domain names the top path segment, or a full path
// pattern ("/deploy/*:execute"). A bare "*" covers everything.
func permissionCovers(perm, action, path string) bool {
	if perm == "*" {
		return true
	}
	idx := strings.LastIndex(perm, ":")
	if idx < 0 {
		// Action-only permission, any resource.
		return matchAction(perm, action)
	}
	domain, permAction := perm[:idx], perm[idx+1:]
	if !matchAction(permAction, action) {
		return false
	}
	if domain == "*" {
		return true
	}
	if strings.HasPrefix(domain, "/") {
		return utils.MatchPath(path, domain)
	}
	return domain == topSegment(path)
}

func topSegment(path string) string {
	p := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}

// conditionOutcome records one evaluated condition for the trace.
type conditionOutcome struct {
	Condition PolicyCondition
	Passed    bool
	Note      string
}

// matchRule decides whether a rule applies to the request: the action set must
// cover the requested action (or contain "*"), at least one resource entry
// must match, and every condition must pass. Conditions are evaluated in
// declaration order and stop at the first failure; the evaluated outcomes are
// returned for the trace either way. An empty condition list trivially passes.
func matchRule(rule *PolicyRule, rc *RequestContext) (bool, []conditionOutcome) {
	actionOK := false
	for _, a := range rule.Actions {
		if matchAction(a, rc.Action) {
			actionOK = true
			break
		}
	}
	if !actionOK {
		return false, nil
	}

	resourceOK := false
	for _, r := range rule.Resources {
		if matchResourceEntry(r, rc) {
			resourceOK = true
			break
		}
	}
	if !resourceOK {
		return false, nil
	}

	outcomes := make([]conditionOutcome, 0, len(rule.Conditions))
	for _, cond := range rule.Conditions {
		ok, note := EvaluateCondition(cond, rc)
		outcomes = append(outcomes, conditionOutcome{Condition: cond, Passed: ok, Note: note})
		if !ok {
			return false, outcomes
		}
	}
	return true, outcomes
}
