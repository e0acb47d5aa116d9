package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "ws://127.0.0.1:8080", c.Servers.WS.Address)
	assert.Equal(t, 3*time.Second, c.Servers.WS.APITimeout)
	assert.Equal(t, []string{"all"}, c.Essence.EnableGroups)
	assert.Equal(t, 5, c.Essence.RandomLimit)
	assert.Equal(t, 12*time.Hour, c.Essence.RandomWindow)
	assert.Equal(t, 100, c.Essence.SearchMaxLength)
	assert.Contains(t, c.Database, "sqlite3")
	require.NotNil(t, c.Output.LogColorful)
	assert.True(t, *c.Output.LogColorful)
}

func TestParseExpandsEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ESSENCE_TEST_TOKEN=from-dotenv\n"), 0o644))
	p := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(p, []byte(`
servers:
  ws:
    access-token: ${ESSENCE_TEST_TOKEN}
essence:
  enable-groups: [123456, 654321]
  search-max-length: 30
`), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("ESSENCE_TEST_TOKEN") })

	c, err := Parse(p)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", c.Servers.WS.AccessToken)
	assert.Equal(t, []string{"123456", "654321"}, c.Essence.EnableGroups)
	assert.Equal(t, 30, c.Essence.SearchMaxLength)
}

func TestGenerate(t *testing.T) {
	p := filepath.Join(t.TempDir(), "conf", "config.yml")
	require.NoError(t, Generate(p))
	c, err := Parse(p)
	require.NoError(t, err)
	assert.Equal(t, Default().Essence, c.Essence)

	_, err = Parse(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
