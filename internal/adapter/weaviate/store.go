// Package weaviate implements the vector index over Weaviate, one class per
// project collection.
package weaviate

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"docqa/internal/provider"
	"docqa/internal/rag"
	"docqa/internal/vector"
)

const providerName = "weaviate"

type Store struct {
	client *weaviate.Client
	schema vector.SchemaClient
	policy provider.RetryPolicy
}

func NewStore(client *weaviate.Client, policy provider.RetryPolicy) *Store {
	return &Store{client: client, schema: vector.NewWeaviateClientAdapter(client), policy: policy}
}

func (s *Store) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return s.policy.Do(ctx, providerName, op, func(ctx context.Context) error {
		return classify(fn(ctx))
	})
}

func (s *Store) EnsureCollection(ctx context.Context, projectID string, dimension int) error {
	return s.do(ctx, "ensure_collection", func(ctx context.Context) error {
		return vector.EnsureClass(ctx, s.schema, projectID, dimension)
	})
}

func (s *Store) requireClass(ctx context.Context, projectID string) (*models.Class, error) {
	className := vector.ClassName(projectID)
	exists, err := s.schema.ClassExists(ctx, className)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, rag.MissingCollection(projectID)
	}
	return s.schema.GetClass(ctx, className)
}

func (s *Store) Upsert(ctx context.Context, projectID string, records []rag.VectorRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	className := vector.ClassName(projectID)
	objects := make([]*models.Object, len(records))
	for i, r := range records {
		objects[i] = &models.Object{
			Class: className,
			ID:    strfmt.UUID(r.ID),
			Properties: map[string]interface{}{
				"content":   r.Payload.Content,
				"assetId":   r.Payload.AssetID,
				"projectId": r.Payload.ProjectID,
				"ordinal":   r.Payload.Ordinal,
			},
			Vector: r.Vector,
		}
	}

	err := s.do(ctx, "upsert", func(ctx context.Context) error {
		res, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
		if err != nil {
			return err
		}
		for _, o := range res {
			if o.Result != nil && o.Result.Errors != nil && len(o.Result.Errors.Error) > 0 {
				return fmt.Errorf("object %s: %s", o.ID, o.Result.Errors.Error[0].Message)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *Store) Search(ctx context.Context, projectID string, vec []float32, topK int, threshold float32) ([]rag.RetrievedChunk, error) {
	className := vector.ClassName(projectID)
	var results []rag.RetrievedChunk

	err := s.do(ctx, "search", func(ctx context.Context) error {
		if _, err := s.requireClass(ctx, projectID); err != nil {
			return err
		}

		// Cosine distance is 1 - similarity.
		nearVector := s.client.GraphQL().NearVectorArgBuilder().
			WithVector(vec).
			WithDistance(1 - threshold)

		fields := []graphql.Field{
			{Name: "content"},
			{Name: "assetId"},
			{Name: "projectId"},
			{Name: "ordinal"},
			{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
		}

		res, err := s.client.GraphQL().Get().
			WithClassName(className).
			WithNearVector(nearVector).
			WithLimit(rag.CandidateLimit(topK)).
			WithFields(fields...).
			Do(ctx)
		if err != nil {
			return err
		}
		if len(res.Errors) > 0 {
			return fmt.Errorf("graphql error: %s", res.Errors[0].Message)
		}

		results = parseGet(res.Data, className)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rag.Rank(results, topK, threshold), nil
}

func parseGet(data map[string]models.JSONObject, className string) []rag.RetrievedChunk {
	results := []rag.RetrievedChunk{}
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return results
	}
	items, ok := get[className].([]interface{})
	if !ok {
		return results
	}

	for _, item := range items {
		props, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		var r rag.RetrievedChunk
		r.Content, _ = props["content"].(string)
		r.AssetID, _ = props["assetId"].(string)
		r.ProjectID, _ = props["projectId"].(string)
		if ordinal, ok := props["ordinal"].(float64); ok {
			r.Ordinal = int(ordinal)
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			r.ID, _ = additional["id"].(string)
			if d, ok := additional["distance"].(float64); ok {
				r.Score = float32(1 - d)
			}
		}
		results = append(results, r)
	}
	return results
}

func (s *Store) CollectionInfo(ctx context.Context, projectID string) (rag.CollectionInfo, error) {
	className := vector.ClassName(projectID)
	var info rag.CollectionInfo

	err := s.do(ctx, "collection_info", func(ctx context.Context) error {
		class, err := s.requireClass(ctx, projectID)
		if err != nil {
			return err
		}
		info.Dimension, _ = vector.ClassDimension(class)

		res, err := s.client.GraphQL().Aggregate().
			WithClassName(className).
			WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
			Do(ctx)
		if err != nil {
			return err
		}
		if len(res.Errors) > 0 {
			return fmt.Errorf("graphql error: %s", res.Errors[0].Message)
		}
		info.VectorCount = parseCount(res.Data, className)
		return nil
	})
	return info, err
}

func parseCount(data map[string]models.JSONObject, className string) int {
	agg, ok := data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0
	}
	groups, ok := agg[className].([]interface{})
	if !ok || len(groups) == 0 {
		return 0
	}
	group, ok := groups[0].(map[string]interface{})
	if !ok {
		return 0
	}
	meta, ok := group["meta"].(map[string]interface{})
	if !ok {
		return 0
	}
	count, _ := meta["count"].(float64)
	return int(count)
}

func (s *Store) DeleteAssetChunks(ctx context.Context, projectID, assetID string, fromOrdinal int) error {
	className := vector.ClassName(projectID)
	return s.do(ctx, "delete_asset", func(ctx context.Context) error {
		exists, err := s.schema.ClassExists(ctx, className)
		if err != nil || !exists {
			return err
		}
		_, err = s.client.Batch().ObjectsBatchDeleter().
			WithClassName(className).
			WithOutput("minimal").
			WithWhere(filters.Where().
				WithOperator(filters.And).
				WithOperands([]*filters.WhereBuilder{
					filters.Where().
						WithPath([]string{"assetId"}).
						WithOperator(filters.Equal).
						WithValueString(assetID),
					filters.Where().
						WithPath([]string{"ordinal"}).
						WithOperator(filters.GreaterThanEqual).
						WithValueInt(int64(fromOrdinal)),
				})).
			Do(ctx)
		return err
	})
}

func (s *Store) DeleteAssetOrdinals(ctx context.Context, projectID, assetID string, ordinals []int) error {
	if len(ordinals) == 0 {
		return nil
	}
	className := vector.ClassName(projectID)
	anyOrdinal := make([]*filters.WhereBuilder, len(ordinals))
	for i, o := range ordinals {
		anyOrdinal[i] = filters.Where().
			WithPath([]string{"ordinal"}).
			WithOperator(filters.Equal).
			WithValueInt(int64(o))
	}
	return s.do(ctx, "delete_ordinals", func(ctx context.Context) error {
		exists, err := s.schema.ClassExists(ctx, className)
		if err != nil || !exists {
			return err
		}
		_, err = s.client.Batch().ObjectsBatchDeleter().
			WithClassName(className).
			WithOutput("minimal").
			WithWhere(filters.Where().
				WithOperator(filters.And).
				WithOperands([]*filters.WhereBuilder{
					filters.Where().
						WithPath([]string{"assetId"}).
						WithOperator(filters.Equal).
						WithValueString(assetID),
					filters.Where().
						WithOperator(filters.Or).
						WithOperands(anyOrdinal),
				})).
			Do(ctx)
		return err
	})
}

func (s *Store) DeleteCollection(ctx context.Context, projectID string) error {
	className := vector.ClassName(projectID)
	return s.do(ctx, "delete_collection", func(ctx context.Context) error {
		exists, err := s.schema.ClassExists(ctx, className)
		if err != nil || !exists {
			return err
		}
		return s.schema.DeleteClass(ctx, className)
	})
}

// Ping reports whether the server answers; used by bootstrap.
func (s *Store) Ping(ctx context.Context) error {
	ready, err := s.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return err
	}
	if !ready {
		return errors.New("weaviate is not ready")
	}
	return nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var we *fault.WeaviateClientError
	if errors.As(err, &we) && we.StatusCode > 0 {
		return &provider.StatusError{Code: we.StatusCode, Body: we.Msg}
	}
	return err
}
