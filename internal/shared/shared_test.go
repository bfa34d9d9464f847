package shared

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCodeAcceptsNumberAndString(t *testing.T) {
	var releases Releases
	err := json.Unmarshal([]byte(`[{"version":"12","shortversion":"1.2"},{"version":13},{"version":null}]`), &releases)
	require.NoError(t, err)
	require.Len(t, releases, 3)
	assert.Equal(t, VersionCode(12), releases[0].Version)
	assert.Equal(t, VersionCode(13), releases[1].Version)
	assert.Equal(t, VersionCode(0), releases[2].Version)

	err = json.Unmarshal([]byte(`[{"version":"twelve"}]`), &releases)
	assert.Error(t, err)
}

func TestReleasesLatest(t *testing.T) {
	_, ok := Releases{}.Latest()
	assert.False(t, ok)

	rs := Releases{{Version: 3}, {Version: 9, ShortVersion: "2.0"}, {Version: 5}}
	latest, ok := rs.Latest()
	require.True(t, ok)
	assert.Equal(t, "2.0", latest.ShortVersion)
}

func TestConvertAppIdentifierToIkey(t *testing.T) {
	assert.Equal(t, "14b3e712-6cb8-73e4-df58-ebf8a81ec903",
		ConvertAppIdentifierToIkey(" 14b3e7126cb873e4df58ebf8a81ec903 "))
	assert.Equal(t, "short", ConvertAppIdentifierToIkey("short"))
}

func TestCheckAndCreateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, CheckAndCreateDir(dir))
	require.NoError(t, CheckAndCreateDir(dir))
	assert.DirExists(t, dir)
}

func TestCalculateStringMD5(t *testing.T) {
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", CalculateStringMD5("hello"))
}
