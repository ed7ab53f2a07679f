package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/config"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "test-host", cfg.DBHost)
	assert.Equal(t, 100, cfg.ChunkSize)
	assert.Equal(t, 20, cfg.ChunkOverlap)
	assert.Equal(t, 5, cfg.SearchTopK)
	assert.Equal(t, []string{".txt", ".md", ".pdf", ".xlsx", ".docx", ".odt", ".rtf"}, cfg.AllowedExtensions)
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	content := []byte("DB_HOST=loaded-from-file\nVECTOR_PROVIDER=qdrant")
	require.NoError(t, os.WriteFile(".env", content, 0o644))
	defer os.Remove(".env")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "loaded-from-file", cfg.DBHost)
	assert.Equal(t, config.VectorQdrant, cfg.VectorProvider)
}

func TestLoadConfig_InvalidChunking(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "10")
	t.Setenv("CHUNK_OVERLAP", "10")

	_, err := config.Load()
	assert.Error(t, err)
	assert.ErrorContains(t, err, "CHUNK_SIZE")
}

func TestLoadConfig_Toggles(t *testing.T) {
	t.Setenv("ENABLE_INGEST_WORKER", "false")
	t.Setenv("INGESTION_CONCURRENCY", "10")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.False(t, cfg.EnableIngestWorker)
	assert.Equal(t, 10, cfg.IngestionConcurrency)
}
