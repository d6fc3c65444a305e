package types

import (
	"context"

	"gorm.io/gorm"
)

// Column is one named value of a row. Rows keep their columns in declaration
// order.
type Column struct {
	Name  string
	Value any
}

// Scope is the part of a loader a Medium binds to in VisitLoader.
type Scope interface {
	// Conn returns the explicit connection, bound to the open transaction
	// when there is one. It is nil when the loader executes implicitly
	// through its session.
	Conn() gorm.ConnPool

	// Session returns the GORM session of the current scope. Inside a
	// transaction the session is bound to it. Mediums issue their statements
	// through it.
	Session() *gorm.DB

	// Tracked returns the object registered under key in the current session
	// scope.
	Tracked(key string) (any, bool)

	// Track registers obj under key in the current session scope.
	Track(key string, obj any)
}

// Handle is the persisted identity of one saved row.
type Handle interface {
	// Target returns the name of the target the row was saved into.
	Target() string

	// Identity returns the primary-key values assigned to the row, in the
	// order of the target's primary key.
	Identity() []any
}

// Fetcher is a Handle that can read back persisted column values.
type Fetcher interface {
	Handle
	Get(ctx context.Context, column string) (any, error)
}

// Medium persists and removes rows for one target.
type Medium interface {
	// VisitLoader binds the medium to the loader's connection or session.
	VisitLoader(scope Scope)

	// Save persists one row and returns its handle.
	Save(ctx context.Context, row string, values []Column) (Handle, error)

	// Clear removes a row previously returned by Save.
	Clear(ctx context.Context, h Handle) error
}
