// Package access decides, per request, whether a caller may read or write a resource
// and which view of the data the caller receives.
package access

import (
	"fmt"
	"strings"

	"github.com/noah-isme/gema-tutor-analytics/internal/sentinel"
)

// Resource names an operation guarded by the engine.
type Resource string

// Guarded resources.
const (
	ResourceClassAggregate  Resource = "class_aggregate"
	ResourceStudentDetail   Resource = "student_detail"
	ResourceAuditLog        Resource = "audit_log"
	ResourceWriteAuditEntry Resource = "write_audit_entry"
	ResourceIngestRecords   Resource = "ingest_records"
	ResourceRotateSalt      Resource = "rotate_salt"
)

// View is the shape of data a grant allows.
type View string

// Views handed out by the engine.
const (
	// ViewFull exposes raw rows and every field.
	ViewFull View = "full"
	// ViewLimited exposes aggregates and field-limited rows only.
	ViewLimited View = "limited"
)

// requirements maps each resource to the permissions that unlock it (any of).
// An empty list means any authenticated caller.
var requirements = map[Resource][]Permission{
	ResourceClassAggregate:  {PermViewClassData, PermViewAllData},
	ResourceStudentDetail:   {PermViewStudentProgress, PermViewAllData},
	ResourceAuditLog:        {PermViewAuditLogs},
	ResourceWriteAuditEntry: {},
	ResourceIngestRecords:   {PermManagePrivacy},
	ResourceRotateSalt:      {PermManagePrivacy},
}

// audited lists resources whose grants must produce exactly one audit entry.
var audited = map[Resource]bool{
	ResourceStudentDetail:   true,
	ResourceAuditLog:        true,
	ResourceWriteAuditEntry: true,
	ResourceIngestRecords:   true,
	ResourceRotateSalt:      true,
}

// Request is what the caller asks for. Scope is a class id for class resources
// and a pseudonym for student detail.
type Request struct {
	Resource Resource
	Scope    string
}

// Decision is a grant. Denials are returned as errors.
type Decision struct {
	Resource Resource
	Scope    string
	View     View
	// ClassIDs restricts class-scoped reads. Nil means every class.
	ClassIDs []string
	// CheckStudentScope asks the caller of the engine to cross-reference the
	// pseudonym's classes with Permits before serving data.
	CheckStudentScope bool

	role Role
}

// Audited reports whether serving this grant requires an audit entry.
func (d Decision) Audited() bool {
	return audited[d.Resource]
}

// Full reports whether the grant exposes raw rows.
func (d Decision) Full() bool {
	return d.View == ViewFull
}

// Permits reports whether any of classIDs lies within the granted scope.
func (d Decision) Permits(classIDs ...string) bool {
	if d.role.AllScopes() {
		return true
	}
	for _, id := range classIDs {
		if d.role.Covers(id) {
			return true
		}
	}
	return false
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrictStudentScope makes student detail grants require a class cross-check.
func WithStrictStudentScope(strict bool) Option {
	return func(e *Engine) {
		e.strictStudentScope = strict
	}
}

// Engine evaluates requests against the fixed permission matrix. It holds no
// per-request state and is safe for concurrent use.
type Engine struct {
	strictStudentScope bool
}

// NewEngine constructs an engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Authorize runs identify → resolve → permission → scope and returns a grant or
// one of ErrUnauthenticated, ErrForbidden, ErrOutOfScope.
func (e *Engine) Authorize(caller Caller, req Request) (Decision, error) {
	if !caller.Authenticated() {
		return Decision{}, sentinel.ErrUnauthenticated
	}

	required, ok := requirements[req.Resource]
	if !ok {
		return Decision{}, fmt.Errorf("%w: unknown resource %q", sentinel.ErrForbidden, req.Resource)
	}
	if len(required) > 0 && !caller.Role.HasAny(required...) {
		return Decision{}, sentinel.ErrForbidden
	}

	decision := Decision{
		Resource: req.Resource,
		Scope:    strings.TrimSpace(req.Scope),
		View:     ViewLimited,
		role:     caller.Role,
	}
	if caller.Role.Has(PermViewAllData) {
		decision.View = ViewFull
	}

	switch req.Resource {
	case ResourceClassAggregate:
		if decision.Scope != "" {
			if !caller.Role.Covers(decision.Scope) {
				return Decision{}, sentinel.ErrOutOfScope
			}
			decision.ClassIDs = []string{decision.Scope}
		} else if !caller.Role.AllScopes() {
			if len(caller.Role.Scopes) == 0 {
				return Decision{}, sentinel.ErrOutOfScope
			}
			decision.ClassIDs = append([]string(nil), caller.Role.Scopes...)
		}
	case ResourceStudentDetail:
		decision.CheckStudentScope = e.strictStudentScope && !caller.Role.AllScopes()
	case ResourceAuditLog, ResourceWriteAuditEntry, ResourceIngestRecords, ResourceRotateSalt:
		decision.View = ViewFull
	}

	return decision, nil
}
