// Package blob stores the original bytes of uploaded assets.
package blob

import (
	"context"
	"fmt"
	"path"
	"strings"

	"docqa/internal/rag"
)

// Store keeps asset bytes under opaque keys. Get and Delete of a missing key
// report rag.ErrNotFound.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// AssetKey is the storage key of an asset: <project>/<asset><ext>.
func AssetKey(projectID, assetID, filename string) string {
	return projectID + "/" + assetID + strings.ToLower(path.Ext(filename))
}

func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return rag.NewFieldError("key", fmt.Sprintf("invalid object key %q", key))
	}
	return nil
}
