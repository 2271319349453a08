package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withConfig(t *testing.T, c *Configuration) {
	t.Helper()
	original := Config
	Config = c
	t.Cleanup(func() { Config = original })
}

func TestValidate_Defaults(t *testing.T) {
	withConfig(t, DefaultConfiguration())

	assert.NoError(t, Validate())
}

func TestValidate_InvalidPort(t *testing.T) {
	c := DefaultConfiguration()
	c.Server.Port = 70000
	withConfig(t, c)

	assert.Error(t, Validate())
}

func TestValidate_InvalidServerPath(t *testing.T) {
	c := DefaultConfiguration()
	c.Server.Path = "websocket"
	withConfig(t, c)

	assert.Error(t, Validate())
}

func TestValidate_StoreBackend(t *testing.T) {
	c := DefaultConfiguration()
	c.Store.Backend = "mongo"
	withConfig(t, c)
	assert.Error(t, Validate())

	c.Store.Backend = BackendPebble
	c.Store.Path = ""
	assert.Error(t, Validate(), "pebble needs a path")

	c.Store.Backend = BackendMemory
	assert.NoError(t, Validate(), "memory needs no path")
}

func TestValidate_Publications(t *testing.T) {
	c := DefaultConfiguration()
	c.Publications = []PublicationConfiguration{{Name: "open-orders"}}
	withConfig(t, c)
	assert.Error(t, Validate(), "collection is required")

	c.Publications = []PublicationConfiguration{
		{Collection: "orders"},
		{Name: "orders", Collection: "archive"},
	}
	assert.Error(t, Validate(), "name defaults to collection and must be unique")

	c.Publications = []PublicationConfiguration{
		{Collection: "orders"},
		{Name: "open-orders", Collection: "orders"},
	}
	assert.NoError(t, Validate())
}

func TestLoad_DecodesPublications(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
node_id = 42
data_dir = "`+filepath.ToSlash(filepath.Join(dir, "data"))+`"

[store]
backend = "memory"

[[publications]]
name = "open-orders"
collection = "orders"
dynamic_filters = "owner"

[publications.filters]
status = "open"

[[publications]]
collection = "users"
filters = "not-an-object"
`), 0644))

	withConfig(t, DefaultConfiguration())
	require.NoError(t, Load(path))

	assert.Equal(t, uint64(42), Config.NodeID)
	assert.Equal(t, BackendMemory, Config.Store.Backend)
	require.Len(t, Config.Publications, 2)

	first := Config.Publications[0]
	assert.Equal(t, "open-orders", first.Name)
	assert.Equal(t, map[string]any{"status": "open"}, first.Filters)
	assert.Equal(t, "owner", first.DynamicFilters)

	// Shape checks happen at registration, not while decoding
	assert.Equal(t, "not-an-object", Config.Publications[1].Filters)

	_, err := os.Stat(filepath.Join(dir, "data"))
	assert.NoError(t, err, "data directory should be created")
}

func TestLoad_NonExistentFile(t *testing.T) {
	c := DefaultConfiguration()
	c.NodeID = 7
	c.DataDir = filepath.Join(t.TempDir(), "data")
	withConfig(t, c)

	require.NoError(t, Load("non-existent-file.toml"))
	assert.Equal(t, uint64(7), Config.NodeID)
	assert.Equal(t, 3000, Config.Server.Port)
}

func TestStorePath(t *testing.T) {
	c := DefaultConfiguration()
	c.DataDir = "/var/lib/pagination"
	withConfig(t, c)

	assert.Equal(t, filepath.Join("/var/lib/pagination", "documents.db"), StorePath())

	c.Store.Path = "/mnt/docs.db"
	assert.Equal(t, "/mnt/docs.db", StorePath())
}

func TestGenerateNodeID(t *testing.T) {
	id1, err := generateNodeID()
	if err != nil {
		t.Skipf("machine id unavailable: %v", err)
	}
	assert.NotZero(t, id1)

	id2, err := generateNodeID()
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "node ID should be deterministic for the same process")
}
