package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 0.7, cfg.RAG.MatchThreshold, 1e-9)
	assert.Equal(t, 3, cfg.RAG.MatchCount)
	assert.Equal(t, 3800, cfg.RAG.MaxPromptTokens)
	assert.Equal(t, "sqlite", cfg.RAG.VectorBackend)
	assert.Equal(t, "sqlite", cfg.Cache.Backend)
	assert.Equal(t, 30, cfg.Cache.PruneDays)
	assert.Contains(t, cfg.Search.IncludeDomains, "oref.org.il")
	assert.Equal(t, 3, cfg.LLM.IngestRetryAttempts)
	assert.Empty(t, cfg.Server.AdminToken)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := chdirTemp(t)
	yaml := []byte("rag:\n  matchCount: 5\nllm:\n  model: gpt-4o\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))
	t.Setenv("EILAM_LLM_APIKEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.RAG.MatchCount)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestValidateRejectsUnknownBackends(t *testing.T) {
	cfg := Config{
		RAG:   RAGConfig{VectorBackend: "faiss", MatchThreshold: 0.7},
		Cache: CacheConfig{Backend: "sqlite"},
	}
	require.Error(t, cfg.Validate())

	cfg.RAG.VectorBackend = "pgvector"
	require.Error(t, cfg.Validate(), "pgvector without a DSN")

	cfg.Postgres.DSN = "postgres://localhost/eilam"
	require.NoError(t, cfg.Validate())

	cfg.Cache.Backend = "memcached"
	require.Error(t, cfg.Validate())
}
