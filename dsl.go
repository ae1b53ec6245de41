package access

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// The line DSL is a compact, diffable form of a Config. One directive per
// line, '#' comments, rule lines attach to the most recent policy:
//
//	version 1
//	role employee permissions=wiki:read
//	role developer parent=employee permissions=code:read,code:write
//	user alice active roles=developer department=engineering mfa=true risk=12
//	resource res-code /code/readme.md sensitivity=internal
//	policy block-risky priority=10
//	deny r1 actions=* resources=/deploy/* if risk greater_than 70
//	allow r2 actions=execute resources=/deploy/staging
//	member bob developer
//	engine cache_ttl_ms=500

// LoadDSL parses the line DSL into a Config.
func (l *ConfigLoader) LoadDSL(data []byte) (*Config, error) {
	cfg := &Config{}
	var current *Policy

	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		directive, rest, _ := strings.Cut(line, " ")
		var err error
		switch directive {
		case "version":
			cfg.Version, err = strconv.Atoi(strings.TrimSpace(rest))
		case "engine":
			err = parseDSLEngine(&cfg.Engine, rest)
		case "user":
			var u *User
			if u, err = parseDSLUser(rest); err == nil {
				cfg.Users = append(cfg.Users, u)
			}
		case "role":
			var r *Role
			if r, err = parseDSLRole(rest); err == nil {
				cfg.Roles = append(cfg.Roles, r)
			}
		case "resource":
			var r *Resource
			if r, err = parseDSLResource(rest); err == nil {
				cfg.Resources = append(cfg.Resources, r)
			}
		case "policy":
			if current, err = parseDSLPolicy(rest); err == nil {
				cfg.Policies = append(cfg.Policies, current)
			}
		case "allow", "deny":
			if current == nil {
				err = fmt.Errorf("rule outside a policy block")
				break
			}
			var rule PolicyRule
			if rule, err = parseDSLRule(Effect(directive), rest); err == nil {
				current.Rules = append(current.Rules, rule)
			}
		case "member":
			fields := strings.Fields(rest)
			if len(fields) != 2 {
				err = fmt.Errorf("want \"member <user> <role>\"")
				break
			}
			cfg.Memberships = append(cfg.Memberships, RoleMembership{UserID: fields[0], RoleID: fields[1]})
		default:
			err = fmt.Errorf("unknown directive %q", directive)
		}
		if err != nil {
			return nil, fmt.Errorf("access: dsl line %d: %w", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseDSLEngine(ec *EngineConfig, rest string) error {
	for _, tok := range strings.Fields(rest) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			return fmt.Errorf("engine option %q is not key=value", tok)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("engine option %s: %w", k, err)
		}
		switch k {
		case "cache_ttl_ms":
			ec.DecisionCacheTTL = int64(n)
		case "audit_buffer":
			ec.AuditBuffer = n
		default:
			return fmt.Errorf("unknown engine option %q", k)
		}
	}
	return nil
}

func parseDSLUser(rest string) (*User, error) {
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return nil, fmt.Errorf("want \"user <id> <status> [key=value ...]\"")
	}
	u := &User{ID: fields[0], Status: UserStatus(fields[1])}
	for _, tok := range fields[2:] {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			return nil, fmt.Errorf("user option %q is not key=value", tok)
		}
		switch k {
		case "roles":
			u.Roles = splitCSV(v)
		case "department":
			u.Department = v
		case "mfa":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("user option mfa: %w", err)
			}
			u.MFAEnabled = b
		case "risk":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("user option risk: %w", err)
			}
			u.RiskScore = f
		case "ip":
			u.IP = v
		case "location":
			u.Location = v
		default:
			return nil, fmt.Errorf("unknown user option %q", k)
		}
	}
	return u, u.Validate()
}

func parseDSLRole(rest string) (*Role, error) {
	fields := strings.Fields(rest)
	if len(fields) < 1 {
		return nil, fmt.Errorf("want \"role <id> [key=value ...]\"")
	}
	r := &Role{ID: fields[0]}
	for _, tok := range fields[1:] {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			switch tok {
			case "system":
				r.IsSystem = true
			case "privileged":
				r.IsPrivileged = true
			case "mfa_required":
				r.RequiresMFA = true
			case "approval_required":
				r.RequiresApproval = true
			default:
				return nil, fmt.Errorf("unknown role flag %q", tok)
			}
			continue
		}
		switch k {
		case "parent":
			r.ParentRole = v
		case "permissions":
			r.Permissions = splitCSV(v)
		case "name":
			r.DisplayName = v
		default:
			return nil, fmt.Errorf("unknown role option %q", k)
		}
	}
	return r, nil
}

func parseDSLResource(rest string) (*Resource, error) {
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return nil, fmt.Errorf("want \"resource <id> <path> [key=value ...]\"")
	}
	r := &Resource{ID: fields[0], Path: fields[1]}
	for _, tok := range fields[2:] {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			return nil, fmt.Errorf("resource option %q is not key=value", tok)
		}
		switch k {
		case "sensitivity":
			r.Sensitivity = v
		case "owner":
			r.Owner = v
		default:
			return nil, fmt.Errorf("unknown resource option %q", k)
		}
	}
	return r, nil
}

func parseDSLPolicy(rest string) (*Policy, error) {
	fields := strings.Fields(rest)
	if len(fields) < 1 {
		return nil, fmt.Errorf("want \"policy <id> [priority=n] [disabled] [name=...]\"")
	}
	p := &Policy{ID: fields[0], Enabled: true, Version: 1}
	for _, tok := range fields[1:] {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			if tok == "disabled" {
				p.Enabled = false
				continue
			}
			return nil, fmt.Errorf("unknown policy flag %q", tok)
		}
		switch k {
		case "priority":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("policy priority: %w", err)
			}
			p.Priority = n
		case "name":
			p.Name = v
		default:
			return nil, fmt.Errorf("unknown policy option %q", k)
		}
	}
	return p, nil
}

// parseDSLRule parses "<id> actions=a,b resources=x,y [if <cond>{; <cond>}]".
// Everything after " if " belongs to the condition list.
func parseDSLRule(effect Effect, rest string) (PolicyRule, error) {
	rule := PolicyRule{Effect: effect}

	head := rest
	if i := strings.Index(rest, " if "); i >= 0 {
		head = rest[:i]
		for _, cs := range strings.Split(rest[i+4:], ";") {
			cond, err := ParseCondition(cs)
			if err != nil {
				return rule, err
			}
			rule.Conditions = append(rule.Conditions, cond)
		}
	}

	fields := strings.Fields(head)
	if len(fields) < 1 {
		return rule, fmt.Errorf("want \"%s <id> actions=... resources=... [if ...]\"", effect)
	}
	rule.ID = fields[0]
	for _, tok := range fields[1:] {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			return rule, fmt.Errorf("rule option %q is not key=value", tok)
		}
		switch k {
		case "actions":
			rule.Actions = splitCSV(v)
		case "resources":
			rule.Resources = splitCSV(v)
		case "desc":
			rule.Description = strings.ReplaceAll(v, "_", " ")
		default:
			return rule, fmt.Errorf("unknown rule option %q", k)
		}
	}
	if len(rule.Actions) == 0 || len(rule.Resources) == 0 {
		return rule, fmt.Errorf("rule %s needs actions and resources", rule.ID)
	}
	return rule, nil
}

// ToDSL renders the config back into the line form. LoadDSL(ToDSL(c)) yields
// an equivalent config for anything the DSL can express.
func (c *Config) ToDSL() []byte {
	var b bytes.Buffer
	if c.Version != 0 {
		fmt.Fprintf(&b, "version %d\n", c.Version)
	}
	if c.Engine.DecisionCacheTTL > 0 || c.Engine.AuditBuffer > 0 {
		b.WriteString("engine")
		if c.Engine.DecisionCacheTTL > 0 {
			fmt.Fprintf(&b, " cache_ttl_ms=%d", c.Engine.DecisionCacheTTL)
		}
		if c.Engine.AuditBuffer > 0 {
			fmt.Fprintf(&b, " audit_buffer=%d", c.Engine.AuditBuffer)
		}
		b.WriteByte('\n')
	}
	for _, r := range c.Roles {
		fmt.Fprintf(&b, "role %s", r.ID)
		if r.ParentRole != "" {
			fmt.Fprintf(&b, " parent=%s", r.ParentRole)
		}
		if len(r.Permissions) > 0 {
			fmt.Fprintf(&b, " permissions=%s", strings.Join(r.Permissions, ","))
		}
		if r.DisplayName != "" {
			fmt.Fprintf(&b, " name=%s", r.DisplayName)
		}
		if r.IsSystem {
			b.WriteString(" system")
		}
		if r.IsPrivileged {
			b.WriteString(" privileged")
		}
		if r.RequiresMFA {
			b.WriteString(" mfa_required")
		}
		if r.RequiresApproval {
			b.WriteString(" approval_required")
		}
		b.WriteByte('\n')
	}
	for _, u := range c.Users {
		fmt.Fprintf(&b, "user %s %s", u.ID, u.Status)
		if len(u.Roles) > 0 {
			fmt.Fprintf(&b, " roles=%s", strings.Join(u.Roles, ","))
		}
		if u.Department != "" {
			fmt.Fprintf(&b, " department=%s", u.Department)
		}
		if u.MFAEnabled {
			b.WriteString(" mfa=true")
		}
		if u.RiskScore != 0 {
			fmt.Fprintf(&b, " risk=%s", strconv.FormatFloat(u.RiskScore, 'f', -1, 64))
		}
		if u.IP != "" {
			fmt.Fprintf(&b, " ip=%s", u.IP)
		}
		if u.Location != "" {
			fmt.Fprintf(&b, " location=%s", u.Location)
		}
		b.WriteByte('\n')
	}
	for _, r := range c.Resources {
		fmt.Fprintf(&b, "resource %s %s", r.ID, r.Path)
		if r.Sensitivity != "" {
			fmt.Fprintf(&b, " sensitivity=%s", r.Sensitivity)
		}
		if r.Owner != "" {
			fmt.Fprintf(&b, " owner=%s", r.Owner)
		}
		b.WriteByte('\n')
	}
	for _, p := range c.Policies {
		fmt.Fprintf(&b, "policy %s priority=%d", p.ID, p.Priority)
		if p.Name != "" {
			fmt.Fprintf(&b, " name=%s", p.Name)
		}
		if !p.Enabled {
			b.WriteString(" disabled")
		}
		b.WriteByte('\n')
		for _, r := range p.Rules {
			fmt.Fprintf(&b, "%s %s actions=%s resources=%s",
				r.Effect, r.ID, strings.Join(r.Actions, ","), strings.Join(r.Resources, ","))
			if r.Description != "" {
				fmt.Fprintf(&b, " desc=%s", strings.ReplaceAll(r.Description, " ", "_"))
			}
			if len(r.Conditions) > 0 {
				parts := make([]string, 0, len(r.Conditions))
				for _, cond := range r.Conditions {
					parts = append(parts, FormatCondition(cond))
				}
				fmt.Fprintf(&b, " if %s", strings.Join(parts, "; "))
			}
			b.WriteByte('\n')
		}
	}
	for _, m := range c.Memberships {
		fmt.Fprintf(&b, "member %s %s\n", m.UserID, m.RoleID)
	}
	return b.Bytes()
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
