package store

import (
	"context"
	"errors"

	"github.com/identitylab/fedsync/pkg/identity"
)

var (
	// ErrUserNotFound is returned when no canonical user matches a lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrRefNotFound is returned when no source ref matches a lookup.
	ErrRefNotFound = errors.New("source ref not found")
	// ErrRefExists is returned when a (source, login) pair is already
	// bound, possibly to a different user.
	ErrRefExists = errors.New("source ref already exists")
)

// UserStore persists canonical users.
type UserStore interface {
	// CreateUser stores a new user and returns it with its assigned ID.
	CreateUser(ctx context.Context, user identity.User) (identity.User, error)
	// UpdateUser overwrites the core fields of an existing user.
	UpdateUser(ctx context.Context, user identity.User) error
	// UserByRef resolves the user owning the (source name, login) pair.
	UserByRef(ctx context.Context, sourceName, login string) (identity.User, error)
}

// RefStore persists external source references.
type RefStore interface {
	// RefByLogin resolves a ref by its system-wide (source name, login) key.
	RefByLogin(ctx context.Context, sourceName, login string) (identity.SourceRef, error)
	// RefsOfUser lists all refs owned by a user, ordered by ref ID.
	RefsOfUser(ctx context.Context, userID int64) ([]identity.SourceRef, error)
	// AddRef binds a new ref to a user and returns it with its assigned ID.
	// ErrRefExists is returned when the (source, login) pair is taken.
	AddRef(ctx context.Context, userID int64, ref identity.SourceRef) (identity.SourceRef, error)
	// UpdateRef overwrites the mutable fields of an existing ref (LoA).
	UpdateRef(ctx context.Context, ref identity.SourceRef) error
}

// AttributeStore persists string-encoded attribute values scoped to users
// and to source refs.
type AttributeStore interface {
	RefAttribute(ctx context.Context, refID int64, name string) (string, bool, error)
	SetRefAttribute(ctx context.Context, refID int64, name, value string) error
	DeleteRefAttribute(ctx context.Context, refID int64, name string) error

	UserAttribute(ctx context.Context, userID int64, name string) (string, bool, error)
	SetUserAttribute(ctx context.Context, userID int64, name, value string) error
	// UserAttributes lists all attributes owned by the user.
	UserAttributes(ctx context.Context, userID int64) (map[string]string, error)
}

// Store bundles everything the synchronization engine needs from
// persistence, including attribute definitions.
type Store interface {
	UserStore
	RefStore
	AttributeStore
	identity.DefinitionSource
}
