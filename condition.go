package access

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RequestContext carries everything a condition may inspect for one request:
// the subject, the effective role closure, the target resource (when the
// registry knows it) and the evaluation time.
type RequestContext struct {
	User         *User
	Roles        []string // effective role ids, ancestors included
	Resource     *Resource
	ResourcePath string
	Action       string
	Time         time.Time
}

// operatorTable is the compatibility table between condition attributes and
// the operators permitted on them. Combinations outside the table fail closed
// with a diagnostic note instead of relying on runtime duck typing.
var operatorTable = map[Attribute]map[Operator]bool{
	AttrRole:       {OpEquals: true, OpNotEquals: true, OpIn: true, OpNotIn: true, OpContains: true},
	AttrDepartment: {OpEquals: true, OpNotEquals: true, OpIn: true, OpNotIn: true, OpContains: true},
	AttrLocation:   {OpEquals: true, OpNotEquals: true, OpIn: true, OpNotIn: true, OpContains: true},
	AttrIP:         {OpEquals: true, OpNotEquals: true, OpIn: true, OpNotIn: true, OpContains: true},
	AttrMFA:        {OpEquals: true, OpNotEquals: true},
	AttrRisk:       {OpEquals: true, OpNotEquals: true, OpGreaterThan: true, OpLessThan: true},
	AttrTime:       {OpEquals: true, OpNotEquals: true, OpGreaterThan: true, OpLessThan: true},
}

// EvaluateCondition evaluates one condition against the request context.
// The second return value is a diagnostic note; it is non-empty only when the
// condition failed for a structural reason (unknown attribute, operator not
// permitted, type mismatch) rather than an honest comparison miss.
func EvaluateCondition(cond PolicyCondition, rc *RequestContext) (bool, string) {
	ops, known := operatorTable[cond.Attribute]
	if !known {
		return false, fmt.Sprintf("unknown attribute %q", cond.Attribute)
	}
	if !ops[cond.Operator] {
		return false, fmt.Sprintf("operator %q not permitted for attribute %q", cond.Operator, cond.Attribute)
	}

	switch cond.Attribute {
	case AttrRole:
		return evalMembership(rc.Roles, cond)
	case AttrDepartment:
		return evalString(rc.User.Department, cond)
	case AttrLocation:
		return evalString(rc.User.Location, cond)
	case AttrIP:
		return evalString(rc.User.IP, cond)
	case AttrMFA:
		return evalBool(rc.User.MFAEnabled, cond)
	case AttrRisk:
		return evalNumber(rc.User.RiskScore, cond)
	case AttrTime:
		return evalTime(rc.Time, cond)
	}
	return false, fmt.Sprintf("unknown attribute %q", cond.Attribute)
}

// evalMembership handles set-valued context attributes (the subject's roles).
// equals/contains test membership of the condition value; not_equals requires
// the value to be absent from the whole set.
func evalMembership(values []string, cond PolicyCondition) (bool, string) {
	switch cond.Operator {
	case OpEquals, OpContains:
		want, ok := asString(cond.Value)
		if !ok {
			return false, fmt.Sprintf("condition value %v is not a string", cond.Value)
		}
		return containsString(values, want), ""
	case OpNotEquals:
		want, ok := asString(cond.Value)
		if !ok {
			return false, fmt.Sprintf("condition value %v is not a string", cond.Value)
		}
		return !containsString(values, want), ""
	case OpIn:
		set, ok := asStringList(cond.Value)
		if !ok {
			return false, fmt.Sprintf("condition value %v is not a list", cond.Value)
		}
		for _, v := range values {
			if containsString(set, v) {
				return true, ""
			}
		}
		return false, ""
	case OpNotIn:
		set, ok := asStringList(cond.Value)
		if !ok {
			return false, fmt.Sprintf("condition value %v is not a list", cond.Value)
		}
		for _, v := range values {
			if containsString(set, v) {
				return false, ""
			}
		}
		return true, ""
	}
	return false, ""
}

func evalString(v string, cond PolicyCondition) (bool, string) {
	switch cond.Operator {
	case OpEquals, OpNotEquals:
		want, ok := asString(cond.Value)
		if !ok {
			return false, fmt.Sprintf("condition value %v is not a string", cond.Value)
		}
		if cond.Operator == OpEquals {
			return v == want, ""
		}
		return v != want, ""
	case OpIn, OpNotIn:
		set, ok := asStringList(cond.Value)
		if !ok {
			return false, fmt.Sprintf("condition value %v is not a list", cond.Value)
		}
		if cond.Operator == OpIn {
			return containsString(set, v), ""
		}
		return !containsString(set, v), ""
	case OpContains:
		want, ok := asString(cond.Value)
		if !ok {
			return false, fmt.Sprintf("condition value %v is not a string", cond.Value)
		}
		return strings.Contains(v, want), ""
	}
	return false, ""
}

func evalBool(v bool, cond PolicyCondition) (bool, string) {
	want, ok := asBool(cond.Value)
	if !ok {
		return false, fmt.Sprintf("condition value %v is not a bool", cond.Value)
	}
	if cond.Operator == OpNotEquals {
		return v != want, ""
	}
	return v == want, ""
}

func evalNumber(v float64, cond PolicyCondition) (bool, string) {
	want, ok := asFloat(cond.Value)
	if !ok {
		// Non-numeric operands fail the condition rather than raising.
		return false, fmt.Sprintf("condition value %v is not numeric", cond.Value)
	}
	switch cond.Operator {
	case OpEquals:
		return v == want, ""
	case OpNotEquals:
		return v != want, ""
	case OpGreaterThan:
		return v > want, ""
	case OpLessThan:
		return v < want, ""
	}
	return false, ""
}

// evalTime compares the request's wall-clock minute-of-day against an "HH:MM"
// condition value (numeric values are taken as minutes directly).
func evalTime(t time.Time, cond PolicyCondition) (bool, string) {
	minute := t.Hour()*60 + t.Minute()
	want, ok := asMinuteOfDay(cond.Value)
	if !ok {
		return false, fmt.Sprintf("condition value %v is not a time of day", cond.Value)
	}
	switch cond.Operator {
	case OpEquals:
		return minute == want, ""
	case OpNotEquals:
		return minute != want, ""
	case OpGreaterThan:
		return minute > want, ""
	case OpLessThan:
		return minute < want, ""
	}
	return false, ""
}

// Coercion helpers. YAML/JSON decoding hands values over as any, so numeric
// condition values may arrive as int, int64 or float64 depending on source.

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asStringList(v any) ([]string, bool) {
	switch vv := v.(type) {
	case []string:
		return vv, true
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func asBool(v any) (bool, bool) {
	switch vv := v.(type) {
	case bool:
		return vv, true
	case string:
		if b, err := strconv.ParseBool(vv); err == nil {
			return b, true
		}
	}
	return false, false
}

func asFloat(v any) (float64, bool) {
	switch vv := v.(type) {
	case float64:
		return vv, true
	case float32:
		return float64(vv), true
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	case string:
		if f, err := strconv.ParseFloat(vv, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func asMinuteOfDay(v any) (int, bool) {
	if s, ok := v.(string); ok {
		if t, err := time.Parse("15:04", s); err == nil {
			return t.Hour()*60 + t.Minute(), true
		}
		return 0, false
	}
	if f, ok := asFloat(v); ok {
		m := int(f)
		if m >= 0 && m < 24*60 {
			return m, true
		}
	}
	return 0, false
}

func containsString(set []string, want string) bool {
	for _, s := range set {
		if s == want {
			return true
		}
	}
	return false
}
