// Package tenant defines the project identifier that scopes every core
// operation, plus helpers to carry it through context.Context.
//
// The project id is always an explicit parameter on store operations; the
// context helpers only bridge request middleware to call sites. There is
// no ambient global tenant state.
package tenant

import "context"

// ProjectID identifies a tenant. Every entity belongs to exactly one.
type ProjectID string

// String returns the raw project identifier.
func (p ProjectID) String() string { return string(p) }

// IsZero reports whether the project id is empty.
func (p ProjectID) IsZero() bool { return p == "" }

type ctxKey int

const (
	projectKey ctxKey = iota
	adminKey
)

// WithProject attaches a project id to the context.
func WithProject(ctx context.Context, project ProjectID) context.Context {
	return context.WithValue(ctx, projectKey, project)
}

// FromContext extracts the project id from the context.
// Returns false if no project is attached.
func FromContext(ctx context.Context) (ProjectID, bool) {
	p, ok := ctx.Value(projectKey).(ProjectID)
	return p, ok && !p.IsZero()
}

// WithAdmin marks the context as tenant-elevated. Sweepers that operate
// across all projects (time-wait resumption, worker liveness, schedule
// firing) run under an admin context; the storage layer honors the same
// elevation independently.
func WithAdmin(ctx context.Context) context.Context {
	return context.WithValue(ctx, adminKey, true)
}

// IsAdmin reports whether the context is tenant-elevated.
func IsAdmin(ctx context.Context) bool {
	v, ok := ctx.Value(adminKey).(bool)
	return ok && v
}
