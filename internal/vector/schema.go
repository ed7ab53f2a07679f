package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/weaviate/weaviate/entities/models"

	"docqa/internal/rag"
)

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
	DeleteClass(ctx context.Context, className string) error
}

const dimensionPrefix = "dimension="

// ClassName maps a project collection to a Weaviate class. Class names must
// start with an upper-case letter.
func ClassName(projectID string) string {
	name := rag.CollectionName(projectID)
	return strings.ToUpper(name[:1]) + name[1:]
}

func chunkProperties() []*models.Property {
	return []*models.Property{
		{
			Name:     "content",
			DataType: []string{"text"},
		},
		{
			Name:     "assetId",
			DataType: []string{"string"}, // exact match for deletes
		},
		{
			Name:     "projectId",
			DataType: []string{"string"},
		},
		{
			Name:     "ordinal",
			DataType: []string{"int"},
		},
	}
}

// ClassDimension reads the vector dimension recorded on a class.
func ClassDimension(class *models.Class) (int, bool) {
	if class == nil || !strings.HasPrefix(class.Description, dimensionPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(class.Description, dimensionPrefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

// EnsureClass creates the class for a project collection or verifies the
// existing one. Weaviate does not expose the dimension of an empty index, so
// it is recorded in the class description.
func EnsureClass(ctx context.Context, client SchemaClient, projectID string, dimension int) error {
	className := ClassName(projectID)
	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return err
	}

	properties := chunkProperties()

	if !exists {
		class := &models.Class{
			Class:             className,
			Description:       fmt.Sprintf("%s%d", dimensionPrefix, dimension),
			Vectorizer:        "none",
			VectorIndexConfig: map[string]interface{}{"distance": "cosine"},
			Properties:        properties,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, className)
	if err != nil {
		return err
	}
	if have, ok := ClassDimension(class); ok && have != dimension {
		return rag.DimensionMismatch(projectID, have, dimension)
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, className, p); err != nil {
				return err
			}
		}
	}

	return nil
}
