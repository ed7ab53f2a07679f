package asset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"docqa/internal/rag"
)

// uniqueViolation is the Postgres error code for a broken unique constraint.
const uniqueViolation = "23505"

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, a *Asset) error {
	query := `INSERT INTO assets (id, project_id, name, size, length, content_hash, blob_key, content) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query, a.ID, a.ProjectID, a.Name, a.Size, a.Length, a.ContentHash, a.BlobKey, a.Text).Scan(&a.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: file already uploaded to project %s", rag.ErrDuplicate, a.ProjectID)
	}
	return err
}

func (r *PostgresRepo) ExistsByHash(ctx context.Context, projectID, hash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM assets WHERE project_id = $1 AND content_hash = $2)`
	if err := r.db.QueryRowContext(ctx, query, projectID, hash).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PostgresRepo) Get(ctx context.Context, projectID, id string) (*Asset, error) {
	a := &Asset{}
	query := `SELECT id, project_id, name, size, length, content_hash, blob_key, content, created_at FROM assets WHERE project_id = $1 AND id = $2`
	err := r.db.QueryRowContext(ctx, query, projectID, id).
		Scan(&a.ID, &a.ProjectID, &a.Name, &a.Size, &a.Length, &a.ContentHash, &a.BlobKey, &a.Text, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: asset %s in project %s", rag.ErrNotFound, id, projectID)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *PostgresRepo) List(ctx context.Context, projectID string) ([]Asset, error) {
	query := `SELECT id, project_id, name, size, length, content_hash, blob_key, created_at FROM assets WHERE project_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assets := []Asset{}
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Size, &a.Length, &a.ContentHash, &a.BlobKey, &a.CreatedAt); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// ListContents returns every asset of the project with its text, oldest first.
func (r *PostgresRepo) ListContents(ctx context.Context, projectID string) ([]Asset, error) {
	query := `SELECT id, project_id, name, content FROM assets WHERE project_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assets := []Asset{}
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Text); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (r *PostgresRepo) Delete(ctx context.Context, projectID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE project_id = $1 AND id = $2`, projectID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: asset %s in project %s", rag.ErrNotFound, id, projectID)
	}
	return nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets`).Scan(&count)
	return count, err
}

func (r *PostgresRepo) CountByProject(ctx context.Context, projectID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets WHERE project_id = $1`, projectID).Scan(&count)
	return count, err
}
