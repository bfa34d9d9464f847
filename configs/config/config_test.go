package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"hockeysdk-go/internal/cstmerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "https://sdk.hockeyapp.net/", cfg.ServerURL)
	assert.True(t, cfg.Update.CachingEnabled)
	assert.True(t, cfg.Update.DialogRequired)
	assert.Equal(t, "https://gate.hockeyapp.net/v2/track", cfg.Telemetry.EndpointURL)
	assert.Equal(t, 100, cfg.Telemetry.MaxBatchCount)
	assert.Equal(t, 15*time.Second, cfg.Telemetry.MaxBatchInterval)
	assert.Equal(t, 20*time.Second, cfg.Telemetry.SessionInterval)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 5432, cfg.Store.Database.Port)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
app_identifier = "14b3e7126cb873e4df58ebf8a81ec903"
server_url = "http://localhost:9000"
version_code = 7

[update]
caching_enabled = false
expiry_date = "2030-01-02T15:04:05Z"

[telemetry]
endpoint_url = "http://localhost:9000/v2/track"
max_batch_count = 5
user_id = "Test Man"

[store]
backend = "leveldb"
path = "/tmp/hockey"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "14b3e7126cb873e4df58ebf8a81ec903", cfg.AppIdentifier)
	assert.Equal(t, "http://localhost:9000/", cfg.ServerURL, "server URL gets a trailing slash")
	assert.Equal(t, 7, cfg.VersionCode)
	assert.False(t, cfg.Update.CachingEnabled)
	assert.Equal(t, 5, cfg.Telemetry.MaxBatchCount)
	assert.Equal(t, "Test Man", cfg.Telemetry.UserID)
	assert.Equal(t, "leveldb", cfg.Store.Backend)

	expiry, err := cfg.ExpiryDate()
	require.NoError(t, err)
	assert.Equal(t, 2030, expiry.Year())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HOCKEY_APP_IDENTIFIER", "fromenv")
	t.Setenv("HOCKEY_TELEMETRY_MAX_BATCH_COUNT", "3")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.AppIdentifier)
	assert.Equal(t, 3, cfg.Telemetry.MaxBatchCount)
}

func TestLoadRejectsBadExpiry(t *testing.T) {
	path := writeConfig(t, `
[update]
expiry_date = "tomorrow"
`)
	_, err := Load(path)
	require.Error(t, err)
	var cfgErr *cstmerr.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeConfig(t, "this is = = not toml")
	_, err := Load(path)
	require.Error(t, err)
	var ioErr *cstmerr.FileIOError
	assert.ErrorAs(t, err, &ioErr)
}

func TestGetCurrentVersion(t *testing.T) {
	dir := t.TempDir()

	cfg := &Config{VersionCode: 12}
	v, err := GetCurrentVersion(cfg)
	require.NoError(t, err)
	assert.Equal(t, 12, v)

	cfg = &Config{VersionFile: filepath.Join(dir, "absent")}
	v, err = GetCurrentVersion(cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	versionFile := filepath.Join(dir, "version.txt")
	require.NoError(t, os.WriteFile(versionFile, []byte(" 42\n"), 0644))
	cfg = &Config{VersionFile: versionFile}
	v, err = GetCurrentVersion(cfg)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	require.NoError(t, os.WriteFile(versionFile, []byte("abc"), 0644))
	_, err = GetCurrentVersion(cfg)
	assert.Error(t, err)
}
