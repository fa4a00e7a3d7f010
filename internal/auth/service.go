package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"theinternetcompany.one/internal/ids"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Service implements credential verification, token issuance, refresh
// rotation and permission-gated authorization on top of Store.
type Service struct {
	store      Store
	tokens     *Tokens
	now        func() time.Time
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithIssuer sets the issuer claim stamped into every token.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		s.tokens.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures the refresh session window. The window is
// sliding: every rotation renews it from the rotation instant.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithBcryptCost overrides the hashing cost for newly created passwords.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) error {
		if cost > 0 {
			s.bcryptCost = cost
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
			s.tokens.now = fn
		}
		return nil
	}
}

// NewService constructs the auth core. The signing secret is mandatory and
// injected here once; no component reads it from global state.
func NewService(store Store, secret []byte, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	tokens, err := NewTokens(secret, "")
	if err != nil {
		return nil, err
	}
	svc := &Service{
		store:      store,
		tokens:     tokens,
		now:        time.Now,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		bcryptCost: DefaultBcryptCost,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Tokens exposes the verifier for transport middleware.
func (s *Service) Tokens() *Tokens { return s.tokens }

// Resolve flattens the user's assigned roles into role names and a
// deduplicated, sorted permission-key set. Called fresh on every issuance
// so role changes take effect no later than the next rotation.
func (s *Service) Resolve(ctx context.Context, userID string) (roleNames, permissions []string, err error) {
	roleNames, err = s.store.Roles(ctx).NamesForUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	keys, err := s.store.Permissions(ctx).KeysForUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return roleNames, dedupeSorted(keys), nil
}

// Login verifies credentials and issues a fresh token pair backed by a new
// session row. Unknown email, wrong password and disabled account all fail
// with the same ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string, client ClientMetadata) (TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, ErrInvalidCredentials
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}
	if !user.IsActive {
		return TokenPair{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	return s.mint(ctx, user, client)
}

// Refresh consumes a presented refresh token and issues a replacement pair.
//
// The presented session is revoked before anything new is created. Two
// concurrent calls with the same token race on that conditional revoke;
// exactly one claims the row, every other observes it revoked and fails
// with ErrSessionRevoked. A failure after the revoke leaves the old session
// dead and no new one created, which only forces a re-login.
func (s *Service) Refresh(ctx context.Context, refreshToken string, client ClientMetadata) (TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}

	sessions := s.store.Sessions(ctx)
	session, err := sessions.FindActiveByHash(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrSessionRevoked
		}
		return TokenPair{}, err
	}
	// A session past its window is rejected exactly like an unknown one.
	if !session.Active(s.now()) {
		return TokenPair{}, ErrSessionRevoked
	}
	if session.UserID != claims.Subject {
		return TokenPair{}, ErrSessionRevoked
	}

	claimed, err := sessions.Revoke(ctx, session.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if !claimed {
		return TokenPair{}, ErrSessionRevoked
	}

	user, err := s.store.Users(ctx).Find(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrSessionRevoked
		}
		return TokenPair{}, err
	}
	if !user.IsActive {
		return TokenPair{}, ErrSessionRevoked
	}

	return s.mint(ctx, user, client)
}

// Logout revokes the session matching the presented token. The token is
// only hashed, never verified: a malformed token matches no session, which
// still satisfies the caller's intent. Idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	return s.store.Sessions(ctx).RevokeByHash(ctx, HashToken(refreshToken))
}

// LogoutAll revokes every active session the user owns. Idempotent;
// succeeds even when zero rows were affected.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}
	return s.store.Sessions(ctx).RevokeAllForUser(ctx, userID)
}

// Authorize verifies an access token and, when permission is non-empty,
// requires the snapshot to contain it. Access tokens are self-contained;
// no store lookup happens here.
func (s *Service) Authorize(ctx context.Context, accessToken, permission string) (*AccessClaims, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	if permission != "" && !claims.HasPermission(permission) {
		return nil, ErrForbidden
	}
	return claims, nil
}

// mint re-resolves permissions, signs a fresh pair and records the new
// session under the refresh token's hash. Shared by login and refresh.
func (s *Service) mint(ctx context.Context, user *User, client ClientMetadata) (TokenPair, error) {
	roleNames, permissions, err := s.Resolve(ctx, user.ID)
	if err != nil {
		return TokenPair{}, err
	}

	accessToken, accessExp, err := s.tokens.IssueAccess(user, roleNames, permissions, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, refreshExp, err := s.tokens.IssueRefresh(user.ID, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	device := ParseUserAgent(client.UserAgent)
	session := &Session{
		ID:         ids.New(),
		UserID:     user.ID,
		TokenHash:  HashToken(refreshToken),
		IPAddress:  client.IPAddress,
		UserAgent:  client.UserAgent,
		DeviceType: device.Type,
		OS:         device.OS,
		Browser:    device.Browser,
		ExpiresAt:  refreshExp,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.Sessions(ctx).Create(ctx, session); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func dedupeSorted(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
