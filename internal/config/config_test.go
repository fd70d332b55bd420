package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gogotex/docflow/internal/document/workflow"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("DOCFLOW_MONGODB_URI", "mongodb://localhost:27017/testdb")
	t.Setenv("DOCFLOW_MONGODB_DATABASE", "docflow_test")
	t.Setenv("DOCFLOW_REDIS_HOST", "localhost")
	t.Setenv("DOCFLOW_AUTH_JWT_SECRET", "testsecret123456789012345678901234")
	t.Setenv("DOCFLOW_RATE_LIMIT_ENABLED", "true")
	t.Setenv("DOCFLOW_WORKFLOW_SNAPSHOT_POLICY", "block_publish")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, "mongodb://localhost:27017/testdb", cfg.MongoDB.URI)
	require.Equal(t, "docflow_test", cfg.MongoDB.Database)
	require.Equal(t, 10*time.Second, cfg.MongoDB.Timeout)
	require.True(t, cfg.Redis.Enabled())
	require.Equal(t, "localhost:6379", cfg.Redis.Addr())
	require.Equal(t, "docflow:events", cfg.Redis.EventPrefix)
	require.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
	require.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	require.True(t, cfg.RateLimit.Enabled)
	require.Equal(t, 10.0, cfg.RateLimit.RPS)
	require.Equal(t, workflow.SnapshotBlockPublish, cfg.Workflow.SnapshotPolicy)
	require.Equal(t, "0.0.0.0:5010", cfg.Server.Addr())
	require.False(t, cfg.MinIO.Enabled())
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DOCFLOW_SERVER_PORT=6000\nDOCFLOW_MINIO_ENDPOINT=localhost:9000\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("DOCFLOW_SERVER_PORT")
		os.Unsetenv("DOCFLOW_MINIO_ENDPOINT")
	})

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "6000", cfg.Server.Port)
	require.True(t, cfg.MinIO.Enabled())
	require.Equal(t, "docflow", cfg.MinIO.Bucket)
	require.Equal(t, workflow.SnapshotWarn, cfg.Workflow.SnapshotPolicy)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("DOCFLOW_WORKFLOW_SNAPSHOT_POLICY", "sometimes")
	_, err := LoadConfig(filepath.Join(t.TempDir(), "none.env"))
	require.Error(t, err)

	t.Setenv("DOCFLOW_WORKFLOW_SNAPSHOT_POLICY", "warn")
	t.Setenv("DOCFLOW_AUTH_OIDC_ISSUER", "https://id.example.test")
	_, err = LoadConfig(filepath.Join(t.TempDir(), "none.env"))
	require.Error(t, err)
}
