package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/ajitpratap0/mongosplit/pkg/errors"
)

func validConfig() *SourceConfig {
	cfg := NewSourceConfig("test")
	cfg.URI = "mongodb://localhost:27017"
	cfg.Database = "test"
	cfg.Collection = "emailsvc"
	cfg.Partitions = 2
	return cfg
}

func TestSourceConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *SourceConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *SourceConfig) {}},
		{name: "zero partitions", mutate: func(c *SourceConfig) { c.Partitions = 0 }, wantErr: true},
		{name: "negative partitions", mutate: func(c *SourceConfig) { c.Partitions = -3 }, wantErr: true},
		{name: "missing uri", mutate: func(c *SourceConfig) { c.URI = "" }, wantErr: true},
		{name: "missing database", mutate: func(c *SourceConfig) { c.Database = "" }, wantErr: true},
		{name: "missing collection", mutate: func(c *SourceConfig) { c.Collection = "" }, wantErr: true},
		{name: "negative batch size", mutate: func(c *SourceConfig) { c.BatchSize = -1 }, wantErr: true},
		{name: "bad filter", mutate: func(c *SourceConfig) { c.Filter = `{"value": ` }, wantErr: true},
		{name: "bad sort", mutate: func(c *SourceConfig) { c.Sort = `{not json` }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsConfig(err), "expected config error, got %v", err)
		})
	}
}

func TestSourceConfig_ParseFilter(t *testing.T) {
	cfg := validConfig()

	filter, err := cfg.ParseFilter()
	require.NoError(t, err)
	assert.Equal(t, bson.D{}, filter)

	cfg.Filter = `{"value": {"$gte": 10}}`
	filter, err = cfg.ParseFilter()
	require.NoError(t, err)
	require.Len(t, filter, 1)
	assert.Equal(t, "value", filter[0].Key)

	sort, err := cfg.ParseSort()
	require.NoError(t, err)
	assert.Nil(t, sort)
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_MONGO_URI", "mongodb://db:27017")

	path := filepath.Join(t.TempDir(), "source.yaml")
	content := `
name: emails
uri: ${TEST_MONGO_URI}
database: test
collection: emailsvc
filter: '{"value": {"$mod": [2, 0]}}'
partitions: 7
timeouts:
  count: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := NewSourceConfig("")
	require.NoError(t, Load(path, cfg))

	assert.Equal(t, "emails", cfg.Name)
	assert.Equal(t, "mongodb://db:27017", cfg.URI)
	assert.Equal(t, `{"value": {"$mod": [2, 0]}}`, cfg.Filter)
	assert.Equal(t, 7, cfg.Partitions)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Count)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Connection, "defaults survive")
	require.NoError(t, cfg.Validate())
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("MONGOSPLIT_PARTITIONS", "4")
	t.Setenv("MONGOSPLIT_COLLECTION", "from-env")
	t.Setenv("MONGOSPLIT_TIMEOUTS_REQUEST", "3s")
	t.Setenv("MONGOSPLIT_OBSERVABILITY_ENABLE_METRICS", "true")

	cfg := validConfig()
	require.NoError(t, LoadEnv(EnvPrefix, cfg))

	assert.Equal(t, 4, cfg.Partitions)
	assert.Equal(t, "from-env", cfg.Collection)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Request)
	assert.True(t, cfg.Observability.EnableMetrics)
	assert.Equal(t, "test", cfg.Database, "unset keys are untouched")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := validConfig()
	cfg.Sort = `{"_id": 1}`
	require.NoError(t, Save(path, cfg))

	loaded := NewSourceConfig("")
	require.NoError(t, Load(path, loaded))
	assert.Equal(t, cfg, loaded)
}
