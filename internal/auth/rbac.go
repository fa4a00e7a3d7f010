package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RBACService covers user administration and role assignment. It sits next
// to Service rather than inside it: these operations mutate the credential
// store, which the auth core itself only reads.
type RBACService struct {
	store      Store
	bcryptCost int
}

// NewRBACService constructs the administrative service.
func NewRBACService(store Store) (*RBACService, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	return &RBACService{store: store, bcryptCost: DefaultBcryptCost}, nil
}

// EnsureBuiltins seeds the role set, the permission catalog and the
// role-to-permission grants. Idempotent; safe to run at every startup.
func (s *RBACService) EnsureBuiltins(ctx context.Context) error {
	if err := s.store.Roles(ctx).Ensure(ctx, BuiltinRoles); err != nil {
		return err
	}
	if err := s.store.Permissions(ctx).Ensure(ctx, BuiltinPermissions); err != nil {
		return err
	}
	for role, grants := range RoleGrants {
		if err := s.store.Permissions(ctx).SetForRole(ctx, role, grants); err != nil {
			return fmt.Errorf("grant %s: %w", role, err)
		}
	}
	return nil
}

// CreateUser registers a user with a hashed password and an optional
// initial role set.
func (s *RBACService) CreateUser(ctx context.Context, email, password string, roleIDs []string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	password = strings.TrimSpace(password)
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &User{Email: email, PasswordHash: hash, IsActive: true}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}
	if len(roleIDs) > 0 {
		if err := s.store.Roles(ctx).ReplaceForUser(ctx, user.ID, dedupeSorted(roleIDs)); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// UpdateUser applies a partial mutation: new password and/or active flag.
func (s *RBACService) UpdateUser(ctx context.Context, userID string, password *string, isActive *bool) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	var upd UserUpdate
	if password != nil {
		pw := strings.TrimSpace(*password)
		if pw == "" {
			return fmt.Errorf("%w: password is required", ErrInvalidInput)
		}
		hash, err := HashPassword(pw, s.bcryptCost)
		if err != nil {
			return err
		}
		upd.PasswordHash = &hash
	}
	upd.IsActive = isActive
	if upd.PasswordHash == nil && upd.IsActive == nil {
		return nil
	}
	return s.store.Users(ctx).Update(ctx, userID, upd)
}

// AssignRoles replaces the user's role set. Effective permissions change on
// the user's next login or refresh, not retroactively on issued tokens.
func (s *RBACService) AssignRoles(ctx context.Context, userID string, roleIDs []string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if _, err := s.store.Users(ctx).Find(ctx, userID); err != nil {
		return err
	}
	return s.store.Roles(ctx).ReplaceForUser(ctx, userID, dedupeSorted(roleIDs))
}

// ListRoles returns the role catalog.
func (s *RBACService) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.Roles(ctx).List(ctx)
}
