// Package migrate applies SQL schema migrations and seed files stored on
// disk. Files run in lexicographic order; applied names are recorded in
// bookkeeping tables so reruns are no-ops.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"

	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Runner executes migrations out of a directory pair: schema files named
// NNN_name.up.sql / NNN_name.down.sql and plain .sql seed files.
type Runner struct {
	db        *sql.DB
	schemaDir string
	seedDir   string
}

// New constructs a Runner. seedDir may be empty when the deployment seeds
// through another channel.
func New(db *sql.DB, schemaDir, seedDir string) *Runner {
	return &Runner{db: db, schemaDir: schemaDir, seedDir: seedDir}
}

// Apply runs every pending up migration and returns the names it applied.
func (r *Runner) Apply(ctx context.Context) ([]string, error) {
	if err := r.ensureTables(ctx); err != nil {
		return nil, err
	}
	done, err := r.recorded(ctx, migrationsTable)
	if err != nil {
		return nil, err
	}
	files, err := collect(r.schemaDir, upSuffix)
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, f := range files {
		if done[f.name] {
			continue
		}
		if err := r.runFile(ctx, f.path); err != nil {
			return applied, fmt.Errorf("migrate: apply %s: %w", f.name, err)
		}
		if err := r.record(ctx, migrationsTable, f.name); err != nil {
			return applied, err
		}
		applied = append(applied, f.name)
	}
	return applied, nil
}

// Rollback reverts the most recently applied migration and returns its name.
func (r *Runner) Rollback(ctx context.Context) (string, error) {
	if err := r.ensureTables(ctx); err != nil {
		return "", err
	}
	history, err := r.Applied(ctx)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", errors.New("migrate: nothing to roll back")
	}
	last := history[len(history)-1]
	downPath := filepath.Join(r.schemaDir, strings.TrimSuffix(last, upSuffix)+downSuffix)
	if _, err := os.Stat(downPath); err != nil {
		return "", fmt.Errorf("migrate: no down file for %s", last)
	}
	if err := r.runFile(ctx, downPath); err != nil {
		return "", fmt.Errorf("migrate: rollback %s: %w", last, err)
	}
	if _, err := r.db.ExecContext(ctx, `delete from `+migrationsTable+` where name = $1`, last); err != nil {
		return "", err
	}
	return last, nil
}

// Applied returns migration names in application order.
func (r *Runner) Applied(ctx context.Context) ([]string, error) {
	if err := r.ensureTables(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `select name from `+migrationsTable+` order by applied_at, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Seed runs pending seed files. Seeds themselves are written idempotently,
// but bookkeeping still skips files that already ran.
func (r *Runner) Seed(ctx context.Context) ([]string, error) {
	if r.seedDir == "" {
		return nil, nil
	}
	if err := r.ensureTables(ctx); err != nil {
		return nil, err
	}
	done, err := r.recorded(ctx, seedsTable)
	if err != nil {
		return nil, err
	}
	files, err := collect(r.seedDir, ".sql")
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, f := range files {
		if done[f.name] {
			continue
		}
		if err := r.runFile(ctx, f.path); err != nil {
			return applied, fmt.Errorf("migrate: seed %s: %w", f.name, err)
		}
		if err := r.record(ctx, seedsTable, f.name); err != nil {
			return applied, err
		}
		applied = append(applied, f.name)
	}
	return applied, nil
}

func (r *Runner) ensureTables(ctx context.Context) error {
	for _, table := range []string{migrationsTable, seedsTable} {
		ddl := `create table if not exists ` + table + ` (
			name text primary key,
			applied_at timestamptz not null default now()
		)`
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// runFile executes one file inside a transaction, one statement at a time.
func (r *Runner) runFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Runner) record(ctx context.Context, table, name string) error {
	_, err := r.db.ExecContext(ctx, `insert into `+table+`(name) values ($1)`, name)
	return err
}

func (r *Runner) recorded(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `select name from `+table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seen := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		seen[name] = true
	}
	return seen, rows.Err()
}

type sqlFile struct {
	name string
	path string
}

func collect(dir, suffix string) ([]sqlFile, error) {
	var files []sqlFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		files = append(files, sqlFile{name: d.Name(), path: path})
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

// splitStatements splits on semicolons outside single-quoted strings. Enough
// for the DDL these migrations carry; no dollar-quoted function bodies here.
func splitStatements(sql string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
	)
	for _, r := range sql {
		switch r {
		case '\'':
			inString = !inString
			current.WriteRune(r)
		case ';':
			current.WriteRune(r)
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
