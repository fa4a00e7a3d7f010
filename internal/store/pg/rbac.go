package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"theinternetcompany.one/internal/auth"
)

type roles struct {
	db *sql.DB
}

func (r roles) Find(ctx context.Context, id string) (*auth.Role, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var role auth.Role
	err := r.db.QueryRowContext(ctx, `
		select id, name, created_at
		from roles
		where id = $1 or name = $1
	`, id).Scan(&role.ID, &role.Name, &role.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return &role, nil
}

func (r roles) List(ctx context.Context) ([]auth.Role, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		select id, name, created_at
		from roles
		order by name
	`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []auth.Role
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		result = append(result, role)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return result, nil
}

// Ensure seeds the role set. Role names double as stable ids so seeding is
// a plain upsert.
func (r roles) Ensure(ctx context.Context, names []string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	for _, name := range names {
		if _, err := r.db.ExecContext(ctx, `
			insert into roles (id, name)
			values ($1, $1)
			on conflict (name) do nothing
		`, name); err != nil {
			return fmt.Errorf("ensure role %s: %w", name, mapErr(err))
		}
	}
	return nil
}

func (r roles) NamesForUser(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		select r.name
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapErr(err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return names, nil
}

func (r roles) ReplaceForUser(ctx context.Context, userID string, roleIDs []string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id = $1`, userID); err != nil {
		return mapErr(err)
	}
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles (user_id, role_id)
			values ($1, $2)
			on conflict do nothing
		`, userID, roleID); err != nil {
			return mapErr(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return mapErr(err)
	}
	return nil
}

type permissions struct {
	db *sql.DB
}

func (p permissions) Ensure(ctx context.Context, keys []string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	for _, key := range keys {
		if _, err := p.db.ExecContext(ctx, `
			insert into permissions (key)
			values ($1)
			on conflict (key) do nothing
		`, key); err != nil {
			return fmt.Errorf("ensure permission %s: %w", key, mapErr(err))
		}
	}
	return nil
}

func (p permissions) SetForRole(ctx context.Context, roleID string, keys []string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return mapErr(err)
	}
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_key)
			values ($1, $2)
			on conflict do nothing
		`, roleID, key); err != nil {
			return mapErr(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return mapErr(err)
	}
	return nil
}

func (p permissions) KeysForUser(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
		select distinct rp.permission_key
		from user_roles ur
		join role_permissions rp on rp.role_id = ur.role_id
		where ur.user_id = $1
		order by rp.permission_key
	`, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, mapErr(err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return keys, nil
}
