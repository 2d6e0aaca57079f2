package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/hpungsan/memomind/internal/errors"
)

// Artifact is a registered local reference to a materialized PDF.
// Process and PID identify the registering process; its refs are reclaimed
// once that process is gone.
type Artifact struct {
	ID         string
	Owner      string
	Process    string
	PID        int
	Path       string
	Filename   string
	SizeBytes  int64
	CreatedAt  int64
	ReleasedAt *int64
}

// GetValue reads a key from the key-value table.
// found is false when the key is absent.
func GetValue(ctx context.Context, db *sql.DB, key string) (value string, found bool, err error) {
	err = db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewInternal(err)
	}
	return value, true, nil
}

// SetValues upserts all pairs in one transaction.
func SetValues(ctx context.Context, db *sql.DB, values map[string]string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().Unix()
	for k, v := range values {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, k, v, now)
		if err != nil {
			return errors.NewInternal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteKeys removes keys in one transaction. Missing keys are ignored.
func DeleteKeys(ctx context.Context, db *sql.DB, keys ...string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, k); err != nil {
			return errors.NewInternal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// InsertArtifact registers a new artifact.
func InsertArtifact(ctx context.Context, db *sql.DB, a *Artifact) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO artifacts (id, owner, process, pid, path, filename, size_bytes, created_at, released_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`, a.ID, a.Owner, a.Process, a.PID, a.Path, a.Filename, a.SizeBytes, a.CreatedAt)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetArtifact retrieves an artifact by ID.
// If includeReleased is false, released artifacts are reported as not found.
func GetArtifact(ctx context.Context, db *sql.DB, id string, includeReleased bool) (*Artifact, error) {
	query := `
		SELECT id, owner, process, pid, path, filename, size_bytes, created_at, released_at
		FROM artifacts
		WHERE id = ?
	`
	if !includeReleased {
		query += " AND released_at IS NULL"
	}
	a, err := scanArtifact(db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return a, nil
}

// MarkReleased stamps released_at on an artifact.
// Returns false if it was already released or does not exist.
func MarkReleased(ctx context.Context, db *sql.DB, id string) (bool, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE artifacts SET released_at = ? WHERE id = ? AND released_at IS NULL
	`, time.Now().Unix(), id)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n > 0, nil
}

// ArtifactFilter narrows ListUnreleased. Empty fields match everything.
type ArtifactFilter struct {
	Owner   string
	Process string
}

// ListUnreleased returns unreleased artifacts, oldest first.
func ListUnreleased(ctx context.Context, db *sql.DB, f ArtifactFilter) ([]Artifact, error) {
	query := `
		SELECT id, owner, process, pid, path, filename, size_bytes, created_at, released_at
		FROM artifacts
		WHERE released_at IS NULL
	`
	args := []any{}
	if f.Owner != "" {
		query += " AND owner = ?"
		args = append(args, f.Owner)
	}
	if f.Process != "" {
		query += " AND process = ?"
		args = append(args, f.Process)
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (*Artifact, error) {
	var a Artifact
	var released sql.NullInt64
	if err := row.Scan(&a.ID, &a.Owner, &a.Process, &a.PID, &a.Path, &a.Filename, &a.SizeBytes, &a.CreatedAt, &released); err != nil {
		return nil, err
	}
	if released.Valid {
		v := released.Int64
		a.ReleasedAt = &v
	}
	return &a, nil
}
