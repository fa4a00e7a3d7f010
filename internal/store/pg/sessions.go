package pg

import (
	"context"
	"database/sql"
	"errors"

	"theinternetcompany.one/internal/auth"
)

type sessions struct {
	db *sql.DB
}

func (s sessions) Create(ctx context.Context, session *auth.Session) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		insert into auth_sessions
			(id, user_id, token_hash, ip_address, user_agent, device_type, os, browser, is_revoked, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, false, $9, $10)
	`, session.ID, session.UserID, session.TokenHash,
		nullIfEmpty(session.IPAddress), nullIfEmpty(session.UserAgent),
		nullIfEmpty(session.DeviceType), nullIfEmpty(session.OS), nullIfEmpty(session.Browser),
		session.ExpiresAt, session.CreatedAt)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

func (s sessions) FindActiveByHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		session auth.Session
		ip, ua  sql.NullString
		device  sql.NullString
		osName  sql.NullString
		browser sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, token_hash, ip_address, user_agent, device_type, os, browser, is_revoked, expires_at, created_at
		from auth_sessions
		where token_hash = $1 and not is_revoked
	`, tokenHash).Scan(&session.ID, &session.UserID, &session.TokenHash,
		&ip, &ua, &device, &osName, &browser,
		&session.IsRevoked, &session.ExpiresAt, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	session.IPAddress = ip.String
	session.UserAgent = ua.String
	session.DeviceType = device.String
	session.OS = osName.String
	session.Browser = browser.String
	return &session, nil
}

// Revoke is the conditional update deciding concurrent rotation races.
// RowsAffected tells whether this call flipped the flag or lost to another.
func (s sessions) Revoke(ctx context.Context, id string) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		update auth_sessions
		set is_revoked = true
		where id = $1 and not is_revoked
	`, id)
	if err != nil {
		return false, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(err)
	}
	return n == 1, nil
}

func (s sessions) RevokeByHash(ctx context.Context, tokenHash string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	// Zero rows is fine: logout is idempotent.
	_, err := s.db.ExecContext(ctx, `
		update auth_sessions
		set is_revoked = true
		where token_hash = $1 and not is_revoked
	`, tokenHash)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

func (s sessions) RevokeAllForUser(ctx context.Context, userID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		update auth_sessions
		set is_revoked = true
		where user_id = $1 and not is_revoked
	`, userID)
	if err != nil {
		return mapErr(err)
	}
	return nil
}
