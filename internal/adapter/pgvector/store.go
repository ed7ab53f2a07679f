// Package pgvector implements the vector index on Postgres with the pgvector
// extension. All projects share one records table keyed by collection name.
package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"docqa/internal/provider"
	"docqa/internal/rag"
)

const providerName = "pgvector"

const ddl = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS vector_collections (
  name       text PRIMARY KEY,
  dimension  integer NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS vector_records (
  collection text NOT NULL REFERENCES vector_collections(name) ON DELETE CASCADE,
  id         text NOT NULL,
  asset_id   text NOT NULL,
  project_id text NOT NULL,
  ordinal    integer NOT NULL,
  content    text NOT NULL,
  embedding  vector NOT NULL,
  updated_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS vector_records_asset_idx ON vector_records (collection, asset_id, ordinal);
`

const upsertRecord = `
INSERT INTO vector_records (collection, id, asset_id, project_id, ordinal, content, embedding, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (collection, id) DO UPDATE SET
  asset_id = EXCLUDED.asset_id,
  project_id = EXCLUDED.project_id,
  ordinal = EXCLUDED.ordinal,
  content = EXCLUDED.content,
  embedding = EXCLUDED.embedding,
  updated_at = now()`

const searchRecords = `
SELECT id, content, asset_id, project_id, ordinal, 1 - (embedding <=> $2) AS score
FROM vector_records
WHERE collection = $1 AND 1 - (embedding <=> $2) >= $3
ORDER BY embedding <=> $2, id
LIMIT $4`

type Store struct {
	db     *sql.DB
	policy provider.RetryPolicy
}

// NewStore reuses db and creates the extension and tables when missing.
func NewStore(ctx context.Context, db *sql.DB, policy provider.RetryPolicy) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create vector tables: %w", err)
	}
	return &Store{db: db, policy: policy}, nil
}

func (s *Store) dimension(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, projectID string) (int, error) {
	var dim int
	err := q.QueryRowContext(ctx, `SELECT dimension FROM vector_collections WHERE name = $1`, rag.CollectionName(projectID)).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, rag.MissingCollection(projectID)
	}
	return dim, err
}

func (s *Store) EnsureCollection(ctx context.Context, projectID string, dimension int) error {
	return s.policy.Do(ctx, providerName, "ensure_collection", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO vector_collections (name, dimension) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
			rag.CollectionName(projectID), dimension)
		if err != nil {
			return err
		}
		have, err := s.dimension(ctx, s.db, projectID)
		if err != nil {
			return err
		}
		if have != dimension {
			return rag.DimensionMismatch(projectID, have, dimension)
		}
		return nil
	})
}

// Upsert writes all records in one transaction.
func (s *Store) Upsert(ctx context.Context, projectID string, records []rag.VectorRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	name := rag.CollectionName(projectID)
	err := s.policy.Do(ctx, providerName, "upsert", func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		dim, err := s.dimension(ctx, tx, projectID)
		if err != nil {
			return err
		}
		for _, r := range records {
			if len(r.Vector) != dim {
				return rag.DimensionMismatch(projectID, dim, len(r.Vector))
			}
			if _, err := tx.ExecContext(ctx, upsertRecord,
				name, r.ID, r.Payload.AssetID, r.Payload.ProjectID, r.Payload.Ordinal, r.Payload.Content,
				pgvector.NewVector(r.Vector),
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *Store) Search(ctx context.Context, projectID string, vector []float32, topK int, threshold float32) ([]rag.RetrievedChunk, error) {
	var results []rag.RetrievedChunk
	err := s.policy.Do(ctx, providerName, "search", func(ctx context.Context) error {
		dim, err := s.dimension(ctx, s.db, projectID)
		if err != nil {
			return err
		}
		if dim != len(vector) {
			return rag.DimensionMismatch(projectID, dim, len(vector))
		}

		rows, err := s.db.QueryContext(ctx, searchRecords, rag.CollectionName(projectID), pgvector.NewVector(vector), threshold, topK)
		if err != nil {
			return err
		}
		defer rows.Close()

		results = results[:0]
		for rows.Next() {
			var r rag.RetrievedChunk
			if err := rows.Scan(&r.ID, &r.Content, &r.AssetID, &r.ProjectID, &r.Ordinal, &r.Score); err != nil {
				return err
			}
			results = append(results, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return rag.Rank(results, topK, threshold), nil
}

func (s *Store) CollectionInfo(ctx context.Context, projectID string) (rag.CollectionInfo, error) {
	var info rag.CollectionInfo
	err := s.policy.Do(ctx, providerName, "collection_info", func(ctx context.Context) error {
		err := s.db.QueryRowContext(ctx, `
SELECT c.dimension, (SELECT COUNT(*) FROM vector_records r WHERE r.collection = c.name)
FROM vector_collections c WHERE c.name = $1`, rag.CollectionName(projectID)).Scan(&info.Dimension, &info.VectorCount)
		if errors.Is(err, sql.ErrNoRows) {
			return rag.MissingCollection(projectID)
		}
		return err
	})
	return info, err
}

func (s *Store) DeleteAssetChunks(ctx context.Context, projectID, assetID string, fromOrdinal int) error {
	return s.policy.Do(ctx, providerName, "delete_asset", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM vector_records WHERE collection = $1 AND asset_id = $2 AND ordinal >= $3`,
			rag.CollectionName(projectID), assetID, fromOrdinal)
		return err
	})
}

func (s *Store) DeleteAssetOrdinals(ctx context.Context, projectID, assetID string, ordinals []int) error {
	if len(ordinals) == 0 {
		return nil
	}
	ords := make([]int64, len(ordinals))
	for i, o := range ordinals {
		ords[i] = int64(o)
	}
	return s.policy.Do(ctx, providerName, "delete_ordinals", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM vector_records WHERE collection = $1 AND asset_id = $2 AND ordinal = ANY($3)`,
			rag.CollectionName(projectID), assetID, pq.Array(ords))
		return err
	})
}

// DeleteCollection drops the collection row; its records cascade.
func (s *Store) DeleteCollection(ctx context.Context, projectID string) error {
	return s.policy.Do(ctx, providerName, "delete_collection", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM vector_collections WHERE name = $1`, rag.CollectionName(projectID))
		return err
	})
}
