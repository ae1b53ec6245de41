package stores

import (
	"context"
	"encoding/json"

	"github.com/oarkflow/squealx"

	"github.com/shieldview/access"
)

// SQLAuditStore persists decision audit entries in SQL. The full evaluation
// trace is stored as JSON so a decision can be replayed and re-examined later.
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) (*SQLAuditStore, error) {
	return &SQLAuditStore{db: db}, nil
}

func (s *SQLAuditStore) LogDecision(ctx context.Context, entry *access.AuditEntry) error {
	traceB, _ := json.Marshal(entry.Decision.EvaluationPath)
	q := `INSERT INTO audit_log(id, trace_id, timestamp, user_id, action, resource, allowed, matched_policy, matched_rule, reason, trace_json) VALUES(:id, :trace_id, :timestamp, :user_id, :action, :resource, :allowed, :matched_policy, :matched_rule, :reason, :trace_json)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":             entry.ID,
		"trace_id":       entry.TraceID,
		"timestamp":      entry.Timestamp,
		"user_id":        entry.UserID,
		"action":         entry.Action,
		"resource":       entry.Resource,
		"allowed":        boolToInt(entry.Decision.Allowed),
		"matched_policy": entry.Decision.MatchedPolicy,
		"matched_rule":   entry.Decision.MatchedRule,
		"reason":         entry.Decision.Reason,
		"trace_json":     string(traceB),
	})
	return err
}

func (s *SQLAuditStore) GetAccessLog(ctx context.Context, filter access.AuditFilter) ([]*access.AuditEntry, error) {
	q := `SELECT id, trace_id, timestamp, user_id, action, resource, allowed, matched_policy, matched_rule, reason, trace_json FROM audit_log WHERE 1=1`
	params := map[string]any{}
	if filter.UserID != "" {
		q += " AND user_id = :user_id"
		params["user_id"] = filter.UserID
	}
	if filter.Resource != "" {
		q += " AND resource = :resource"
		params["resource"] = filter.Resource
	}
	if filter.Action != "" {
		q += " AND action = :action"
		params["action"] = filter.Action
	}
	if !filter.StartTime.IsZero() {
		q += " AND timestamp >= :start"
		params["start"] = filter.StartTime
	}
	if !filter.EndTime.IsZero() {
		q += " AND timestamp <= :end"
		params["end"] = filter.EndTime
	}
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	} else {
		q += " LIMIT 100"
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*access.AuditEntry, 0)
	for r.Next() {
		var id, traceID, userID, action, resource, matchedPolicy, matchedRule, reason, traceJSON string
		var timestampRaw any
		var allowedInt int
		if err := r.Scan(&id, &traceID, &timestampRaw, &userID, &action, &resource, &allowedInt, &matchedPolicy, &matchedRule, &reason, &traceJSON); err != nil {
			return nil, err
		}
		entry := &access.AuditEntry{
			ID:        id,
			TraceID:   traceID,
			Timestamp: scanTime(timestampRaw),
			UserID:    userID,
			Action:    action,
			Resource:  resource,
			Decision: &access.AccessDecision{
				Allowed:       allowedInt != 0,
				MatchedPolicy: matchedPolicy,
				MatchedRule:   matchedRule,
				Reason:        reason,
			},
		}
		entry.Decision.Timestamp = entry.Timestamp
		_ = json.Unmarshal([]byte(traceJSON), &entry.Decision.EvaluationPath)
		out = append(out, entry)
	}
	return out, nil
}
