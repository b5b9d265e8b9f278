package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ServerListenAddr, s.ListenAddr)
	assert.Equal(t, MaxRetries, s.Pipeline.MaxRetries)
	assert.Equal(t, RetryBaseDelay, s.Pipeline.RetryBaseDelay)
	assert.Equal(t, ChunkSize, s.Embedding.ChunkSize)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.toml")
	content := `
listen_addr = ":8080"

[storage]
kv_backend = "badger"
badger_path = "/tmp/badger"

[pipeline]
max_documents = 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("KV_BACKEND", "memory")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", s.ListenAddr)
	assert.Equal(t, "memory", s.Storage.KVBackend)
	assert.Equal(t, "/tmp/badger", s.Storage.BadgerPath)
	assert.Equal(t, 5, s.Pipeline.MaxDocuments)
	assert.Equal(t, 15*time.Minute, s.Pipeline.StageTimeout)
}

func TestLoad_InvalidToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr = "), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
