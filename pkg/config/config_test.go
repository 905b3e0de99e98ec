package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ctos", cfg.InstanceName)
	assert.Equal(t, "http", cfg.Health.Type)
	assert.Equal(t, 60*time.Second, cfg.Health.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Health.PollInterval)
	assert.Equal(t, 1, cfg.MaxRollbackAttempts)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctos.yaml")
	content := `
instance_name: web
data_dir: /tmp/ctos-test
health:
  type: tcp
  target: 127.0.0.1:9000
  timeout: 30s
  poll_interval: 500ms
max_rollback_attempts: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "web", cfg.InstanceName)
	assert.Equal(t, "tcp", cfg.Health.Type)
	assert.Equal(t, "127.0.0.1:9000", cfg.Health.Target)
	assert.Equal(t, 30*time.Second, cfg.Health.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Health.PollInterval)
	assert.Equal(t, 2, cfg.MaxRollbackAttempts)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctos.yaml")
	require.NoError(t, os.WriteFile(path, []byte("instance_name: from-file\n"), 0600))

	t.Setenv("CTOS_INSTANCE", "from-env")
	t.Setenv("CTOS_HEALTH_TIMEOUT", "90s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.InstanceName)
	assert.Equal(t, 90*time.Second, cfg.Health.Timeout)
}

func TestInvalidHealthType(t *testing.T) {
	t.Setenv("CTOS_HEALTH_TYPE", "carrier-pigeon")

	_, err := Load("")
	assert.Error(t, err)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
