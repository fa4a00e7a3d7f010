package pg

import (
	"context"
	"database/sql"
	"errors"

	"theinternetcompany.one/internal/auth"
	"theinternetcompany.one/internal/ids"
)

type users struct {
	db *sql.DB
}

func (u users) Create(ctx context.Context, user *auth.User) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if user.ID == "" {
		user.ID = ids.New()
	}
	err := u.db.QueryRowContext(ctx, `
		insert into users (id, email, password_hash, is_active)
		values ($1, $2, $3, $4)
		returning created_at, updated_at
	`, user.ID, user.Email, user.PasswordHash, user.IsActive).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

func (u users) Find(ctx context.Context, id string) (*auth.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return u.scanOne(u.db.QueryRowContext(ctx, `
		select id, email, password_hash, is_active, created_at, updated_at
		from users
		where id = $1
	`, id))
}

func (u users) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return u.scanOne(u.db.QueryRowContext(ctx, `
		select id, email, password_hash, is_active, created_at, updated_at
		from users
		where lower(email) = lower($1)
	`, email))
}

func (u users) Update(ctx context.Context, id string, upd auth.UserUpdate) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	// coalesce keeps untouched columns; nil args reach the query as NULL.
	res, err := u.db.ExecContext(ctx, `
		update users
		set password_hash = coalesce($2, password_hash),
		    is_active     = coalesce($3, is_active),
		    updated_at    = now()
		where id = $1
	`, id, upd.PasswordHash, upd.IsActive)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (u users) scanOne(row *sql.Row) (*auth.User, error) {
	var user auth.User
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return &user, nil
}
