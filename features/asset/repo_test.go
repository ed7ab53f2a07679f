package asset_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/features/asset"
	"docqa/internal/rag"
)

var assetColumns = []string{"id", "project_id", "name", "size", "length", "content_hash", "blob_key", "content", "created_at"}

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := asset.NewPostgresRepo(db)

	query := regexp.QuoteMeta(`INSERT INTO assets (id, project_id, name, size, length, content_hash, blob_key, content) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`)
	a := &asset.Asset{ID: "a1", ProjectID: "proj1", Name: "doc.txt", Size: 5, Length: 5, ContentHash: "h", BlobKey: "proj1/a1.txt", Text: "hello"}

	t.Run("Success", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(query).
			WithArgs("a1", "proj1", "doc.txt", int64(5), 5, "h", "proj1/a1.txt", "hello").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

		require.NoError(t, repo.Save(context.Background(), a))
		assert.Equal(t, now, a.CreatedAt)
	})

	t.Run("Duplicate Hash", func(t *testing.T) {
		mock.ExpectQuery(query).WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Save(context.Background(), a)
		assert.ErrorIs(t, err, rag.ErrDuplicate)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ExistsByHash(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := asset.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM assets WHERE project_id = $1 AND content_hash = $2)`)).
		WithArgs("proj1", "hash123").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByHash(context.Background(), "proj1", "hash123")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := asset.NewPostgresRepo(db)

	query := regexp.QuoteMeta(`SELECT id, project_id, name, size, length, content_hash, blob_key, content, created_at FROM assets WHERE project_id = $1 AND id = $2`)

	t.Run("Found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("proj1", "a1").
			WillReturnRows(sqlmock.NewRows(assetColumns).AddRow("a1", "proj1", "doc.txt", 5, 5, "h", "proj1/a1.txt", "hello", time.Now()))

		a, err := repo.Get(context.Background(), "proj1", "a1")
		require.NoError(t, err)
		assert.Equal(t, "hello", a.Text)
		assert.Equal(t, "proj1/a1.txt", a.BlobKey)
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("proj1", "missing").WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(context.Background(), "proj1", "missing")
		assert.ErrorIs(t, err, rag.ErrNotFound)
	})
}

func TestPostgresRepo_ListContents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := asset.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, project_id, name, content FROM assets WHERE project_id = $1 ORDER BY created_at, id`)).
		WithArgs("proj1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "name", "content"}).
			AddRow("a1", "proj1", "one.txt", "first").
			AddRow("a2", "proj1", "two.txt", "second"))

	assets, err := repo.ListContents(context.Background(), "proj1")
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "second", assets[1].Text)
}

func TestPostgresRepo_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := asset.NewPostgresRepo(db)

	query := regexp.QuoteMeta(`DELETE FROM assets WHERE project_id = $1 AND id = $2`)

	mock.ExpectExec(query).WithArgs("proj1", "a1").WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.Delete(context.Background(), "proj1", "a1"))

	mock.ExpectExec(query).WithArgs("proj1", "a2").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), "proj1", "a2"), rag.ErrNotFound)
}

func TestPostgresRepo_Counts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := asset.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM assets`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM assets WHERE project_id = $1`)).
		WithArgs("proj1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	total, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, total)

	n, err := repo.CountByProject(context.Background(), "proj1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
