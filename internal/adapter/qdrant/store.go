// Package qdrant implements the vector index over the Qdrant REST API. Each
// project maps to its own collection with cosine distance.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"docqa/internal/provider"
	"docqa/internal/rag"
)

const (
	providerName = "qdrant"
	upsertBatch  = 50
)

type Config struct {
	URL    string
	APIKey string
	Policy provider.RetryPolicy
}

type Store struct {
	baseURL string
	apiKey  string
	policy  provider.RetryPolicy
	http    *http.Client
}

func NewStore(cfg Config) *Store {
	return &Store{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		policy:  cfg.Policy,
		http:    &http.Client{},
	}
}

type point struct {
	ID      string      `json:"id"`
	Vector  []float32   `json:"vector"`
	Payload rag.Payload `json:"payload"`
}

type collectionResponse struct {
	Result struct {
		PointsCount *int `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

type countResponse struct {
	Result struct {
		Count int `json:"count"`
	} `json:"result"`
}

type searchResponse struct {
	Result []struct {
		ID      string      `json:"id"`
		Score   float32     `json:"score"`
		Payload rag.Payload `json:"payload"`
	} `json:"result"`
}

func (s *Store) collectionURL(projectID string, parts ...string) string {
	u := s.baseURL + "/collections/" + url.PathEscape(rag.CollectionName(projectID))
	for _, p := range parts {
		u += "/" + p
	}
	return u
}

func (s *Store) call(ctx context.Context, method, url string, in, out interface{}) error {
	headers := map[string]string{}
	if s.apiKey != "" {
		headers["api-key"] = s.apiKey
	}
	return provider.DoJSON(ctx, s.http, method, url, headers, in, out)
}

func isNotFound(err error) bool {
	var se *provider.StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

func (s *Store) EnsureCollection(ctx context.Context, projectID string, dimension int) error {
	return s.policy.Do(ctx, providerName, "ensure_collection", func(ctx context.Context) error {
		var existing collectionResponse
		err := s.call(ctx, http.MethodGet, s.collectionURL(projectID), nil, &existing)
		if err == nil {
			if have := existing.Result.Config.Params.Vectors.Size; have != dimension {
				return rag.DimensionMismatch(projectID, have, dimension)
			}
			return nil
		}
		if !isNotFound(err) {
			return err
		}

		body := map[string]interface{}{
			"vectors": map[string]interface{}{
				"size":     dimension,
				"distance": "Cosine",
			},
		}
		return s.call(ctx, http.MethodPut, s.collectionURL(projectID), body, nil)
	})
}

func (s *Store) Upsert(ctx context.Context, projectID string, records []rag.VectorRecord) (int, error) {
	for start := 0; start < len(records); start += upsertBatch {
		end := min(start+upsertBatch, len(records))
		points := make([]point, 0, end-start)
		for _, r := range records[start:end] {
			points = append(points, point{ID: r.ID, Vector: r.Vector, Payload: r.Payload})
		}

		err := s.policy.Do(ctx, providerName, "upsert", func(ctx context.Context) error {
			err := s.call(ctx, http.MethodPut, s.collectionURL(projectID, "points")+"?wait=true",
				map[string]interface{}{"points": points}, nil)
			if isNotFound(err) {
				return rag.MissingCollection(projectID)
			}
			return err
		})
		if err != nil {
			return start, err
		}
	}
	return len(records), nil
}

func (s *Store) Search(ctx context.Context, projectID string, vector []float32, topK int, threshold float32) ([]rag.RetrievedChunk, error) {
	req := map[string]interface{}{
		"vector":          vector,
		"limit":           rag.CandidateLimit(topK),
		"with_payload":    true,
		"score_threshold": threshold,
	}
	var resp searchResponse
	err := s.policy.Do(ctx, providerName, "search", func(ctx context.Context) error {
		err := s.call(ctx, http.MethodPost, s.collectionURL(projectID, "points", "search"), req, &resp)
		if isNotFound(err) {
			return rag.MissingCollection(projectID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	results := make([]rag.RetrievedChunk, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, rag.RetrievedChunk{ID: r.ID, Payload: r.Payload, Score: r.Score})
	}
	return rag.Rank(results, topK, threshold), nil
}

func (s *Store) CollectionInfo(ctx context.Context, projectID string) (rag.CollectionInfo, error) {
	var info rag.CollectionInfo
	err := s.policy.Do(ctx, providerName, "collection_info", func(ctx context.Context) error {
		var coll collectionResponse
		if err := s.call(ctx, http.MethodGet, s.collectionURL(projectID), nil, &coll); err != nil {
			if isNotFound(err) {
				return rag.MissingCollection(projectID)
			}
			return err
		}
		// points_count is approximate while the optimizer runs, so count exactly.
		var count countResponse
		if err := s.call(ctx, http.MethodPost, s.collectionURL(projectID, "points", "count"),
			map[string]interface{}{"exact": true}, &count); err != nil {
			return err
		}
		info = rag.CollectionInfo{VectorCount: count.Result.Count, Dimension: coll.Result.Config.Params.Vectors.Size}
		return nil
	})
	return info, err
}

func (s *Store) DeleteAssetChunks(ctx context.Context, projectID, assetID string, fromOrdinal int) error {
	body := map[string]interface{}{
		"filter": map[string]interface{}{
			"must": []interface{}{
				map[string]interface{}{"key": "asset_id", "match": map[string]interface{}{"value": assetID}},
				map[string]interface{}{"key": "ordinal", "range": map[string]interface{}{"gte": fromOrdinal}},
			},
		},
	}
	return s.policy.Do(ctx, providerName, "delete_asset", func(ctx context.Context) error {
		err := s.call(ctx, http.MethodPost, s.collectionURL(projectID, "points", "delete")+"?wait=true", body, nil)
		if isNotFound(err) {
			return nil
		}
		return err
	})
}

func (s *Store) DeleteAssetOrdinals(ctx context.Context, projectID, assetID string, ordinals []int) error {
	if len(ordinals) == 0 {
		return nil
	}
	body := map[string]interface{}{
		"filter": map[string]interface{}{
			"must": []interface{}{
				map[string]interface{}{"key": "asset_id", "match": map[string]interface{}{"value": assetID}},
				map[string]interface{}{"key": "ordinal", "match": map[string]interface{}{"any": ordinals}},
			},
		},
	}
	return s.policy.Do(ctx, providerName, "delete_ordinals", func(ctx context.Context) error {
		err := s.call(ctx, http.MethodPost, s.collectionURL(projectID, "points", "delete")+"?wait=true", body, nil)
		if isNotFound(err) {
			return nil
		}
		return err
	})
}

func (s *Store) DeleteCollection(ctx context.Context, projectID string) error {
	return s.policy.Do(ctx, providerName, "delete_collection", func(ctx context.Context) error {
		err := s.call(ctx, http.MethodDelete, s.collectionURL(projectID), nil, nil)
		if isNotFound(err) {
			return nil
		}
		return err
	})
}

// Ping checks the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.call(ctx, http.MethodGet, s.baseURL+"/readyz", nil, nil); err != nil {
		return fmt.Errorf("qdrant not ready: %w", err)
	}
	return nil
}
