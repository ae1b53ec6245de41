package access

import (
	"errors"
	"time"

	"github.com/shieldview/access/logger"
)

// EngineOption customizes an Engine at construction time.
type EngineOption func(*Engine) error

// WithLogger replaces the default structured logger.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		if l == nil {
			return errors.New("access: nil logger")
		}
		e.logger = l
		return nil
	}
}

// WithTraceIDFunc sets the generator for audit trace ids. It must be cheap and
// safe for concurrent calls.
func WithTraceIDFunc(fn logger.TraceIDFunc) EngineOption {
	return func(e *Engine) error {
		e.traceIDFunc = fn
		return nil
	}
}

// WithClock replaces the evaluation clock. Tests use this to pin time-of-day
// conditions.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) error {
		if now == nil {
			return errors.New("access: nil clock")
		}
		e.clock = now
		return nil
	}
}

// WithDecisionCacheTTL sets how long a cached decision stays valid when no
// mutation invalidates it first.
func WithDecisionCacheTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) error {
		if ttl <= 0 {
			return errors.New("access: cache ttl must be positive")
		}
		e.decisionCacheTTL = ttl
		return nil
	}
}

// WithRoleMembershipStore attaches an externally managed role membership store
// whose assignments are merged into user role sets on every reload.
func WithRoleMembershipStore(s RoleMembershipStore) EngineOption {
	return func(e *Engine) error {
		e.membershipStore = s
		return nil
	}
}

// WithAuditBuffer sizes the asynchronous audit channel. Entries beyond the
// buffer are dropped rather than blocking evaluations.
func WithAuditBuffer(n int) EngineOption {
	return func(e *Engine) error {
		if n <= 0 {
			return errors.New("access: audit buffer must be positive")
		}
		e.auditCh = make(chan AuditEntry, n)
		return nil
	}
}
