package auth

import "context"

// Store describes the persistence the auth core requires of its backing
// relational store. Implementations must keep every operation bounded by a
// timeout and report infrastructure failures as ErrStoreUnavailable.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
	Sessions(ctx context.Context) SessionStore
}

// UserStore reads and administers user records. The auth core itself only
// reads; mutation methods serve the administrative supplement.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, id string, upd UserUpdate) error
}

// UserUpdate carries partial user mutations; nil fields stay untouched.
type UserUpdate struct {
	PasswordHash *string
	IsActive     *bool
}

// RoleStore manages the static role set and user assignments.
type RoleStore interface {
	Find(ctx context.Context, id string) (*Role, error)
	List(ctx context.Context) ([]Role, error)
	Ensure(ctx context.Context, names []string) error
	NamesForUser(ctx context.Context, userID string) ([]string, error)
	ReplaceForUser(ctx context.Context, userID string, roleIDs []string) error
}

// PermissionStore manages the permission catalog and role grants.
type PermissionStore interface {
	Ensure(ctx context.Context, keys []string) error
	SetForRole(ctx context.Context, roleID string, keys []string) error
	KeysForUser(ctx context.Context, userID string) ([]string, error)
}

// SessionStore manages refresh-token sessions.
//
// Revoke is the conditional update that resolves concurrent rotation races:
// it flips is_revoked only when the row is still unrevoked and reports
// whether this call claimed the row. Calling it on an already revoked
// session is not an error; it returns claimed=false.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	// FindActiveByHash returns the unrevoked session for a token hash, or
	// ErrNotFound. Expiry is checked by the caller against ExpiresAt.
	FindActiveByHash(ctx context.Context, tokenHash string) (*Session, error)
	Revoke(ctx context.Context, id string) (claimed bool, err error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}
