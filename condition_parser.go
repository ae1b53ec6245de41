package access

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCondition parses the textual condition form used by the DSL and the
// CLI: "<attribute> <operator> <value>", e.g. "risk greater_than 70",
// "department in [engineering, security]" or "mfa equals true". The parsed
// condition is checked against the attribute/operator table.
func ParseCondition(s string) (PolicyCondition, error) {
	var cond PolicyCondition
	fields := strings.SplitN(strings.TrimSpace(s), " ", 3)
	if len(fields) != 3 {
		return cond, fmt.Errorf("access: condition %q: want \"<attribute> <operator> <value>\"", s)
	}

	attr := Attribute(fields[0])
	ops, ok := operatorTable[attr]
	if !ok {
		return cond, fmt.Errorf("access: condition %q: unknown attribute %q", s, fields[0])
	}
	op := Operator(fields[1])
	if !ops[op] {
		return cond, fmt.Errorf("access: condition %q: operator %q not permitted for attribute %q", s, op, attr)
	}

	cond.Attribute = attr
	cond.Operator = op
	cond.Value = parseConditionValue(strings.TrimSpace(fields[2]))
	return cond, nil
}

// parseConditionValue turns the textual value into its natural Go type:
// bracketed comma lists become []string, booleans and numbers their own types,
// everything else stays a string (quotes stripped).
func parseConditionValue(v string) any {
	if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
		parts := strings.Split(v[1:len(v)-1], ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.Trim(strings.TrimSpace(p), "\"'")
			if p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	// Keep clock values like "09:30" textual; ParseFloat would reject them.
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return strings.Trim(v, "\"'")
}

// FormatCondition renders a condition back into the textual DSL form.
// FormatCondition(ParseCondition(x)) round-trips for well-formed input.
func FormatCondition(cond PolicyCondition) string {
	return fmt.Sprintf("%s %s %s", cond.Attribute, cond.Operator, formatConditionValue(cond.Value))
}

func formatConditionValue(v any) string {
	switch vv := v.(type) {
	case []string:
		return "[" + strings.Join(vv, ", ") + "]"
	case []any:
		parts := make([]string, 0, len(vv))
		for _, item := range vv {
			parts = append(parts, fmt.Sprint(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
