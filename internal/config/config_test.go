package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/ftaudit/internal/types"
)

func writeConfig(t *testing.T, root, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, DirName), 0755))
	require.NoError(t, os.WriteFile(Path(root), []byte(content), 0644))
}

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFilePartialKeepsDefaults(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
records: tree.json
exclusions:
  backend: sqlite
  path: .ftaudit/ftaudit.db
matcher:
  threshold: 75
  progress_every: 250ms
filter:
  surname: smith
  birth: {from: 1800}
`)

	cfg, err := LoadFile(root)
	require.NoError(t, err)
	assert.Equal(t, "tree.json", cfg.Records)
	assert.Equal(t, BackendSQLite, cfg.Exclusions.Backend)
	assert.Equal(t, 5, cfg.Exclusions.Retry.MaxRetries, "retry section absent keeps defaults")
	assert.Equal(t, 75, cfg.Matcher.Threshold)
	assert.Equal(t, 250*time.Millisecond, cfg.Matcher.ProgressEvery)
	assert.Equal(t, 4, cfg.Matcher.Workers)
	assert.True(t, cfg.Matcher.Blocking)
	assert.Equal(t, "smith", cfg.Filter.Surname)
	require.NotNil(t, cfg.Filter.Birth)
	assert.Equal(t, 1800, cfg.Filter.Birth.From)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileRejectsBadYAML(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "matcher: [not, a, map]\n")
	_, err := LoadFile(root)
	assert.Error(t, err)
}

func TestExampleFileParses(t *testing.T) {
	cfg := Default()
	require.NoError(t, yaml.Unmarshal([]byte(ExampleFile()), cfg))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []types.Relation{types.RelationDirect, types.RelationBlood}, cfg.Filter.Relations)
	assert.Equal(t, 200*time.Millisecond, cfg.Exclusions.Retry.InitialBackoff)
}

func TestLoadAppliesEnv(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "matcher:\n  threshold: 75\n")
	t.Setenv("FTAUDIT_RECORDS", "other.yaml")
	t.Setenv("FTAUDIT_EXCLUSIONS_BACKEND", "sqlite")
	t.Setenv("FTAUDIT_MATCH_THRESHOLD", "82")

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "other.yaml", cfg.Records)
	assert.Equal(t, BackendSQLite, cfg.Exclusions.Backend)
	assert.Equal(t, 82, cfg.Matcher.Threshold, "environment wins over the file")
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		errMsg  string
	}{
		{"bad backend", "exclusions:\n  backend: mongodb\n", nil, "exclusions.backend"},
		{"bad postgres", "exclusions:\n  backend: postgres\n  postgres:\n    sslmode: sometimes\n", nil, "exclusions.postgres"},
		{"bad postgres port", "", map[string]string{"FTAUDIT_PG_PORT": "lots"}, "FTAUDIT_PG_PORT"},
		{"bad retry", "exclusions:\n  retry:\n    backoff_multiplier: 0.5\n", nil, "exclusions.retry"},
		{"bad matcher", "matcher:\n  workers: 0\n", nil, "workers"},
		{"bad filter", "filter:\n  relations: [cousin]\n", nil, "filter"},
		{"bad buffer", "event_buffer: 1\n", nil, "event_buffer"},
		{"bad env", "", map[string]string{"FTAUDIT_MATCH_THRESHOLD": "high"}, "FTAUDIT_MATCH_THRESHOLD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeConfig(t, root, tt.content)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(root)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Records = "people.json"
	cfg.Matcher.ShowIgnored = true
	cfg.Filter.Places = []string{"Wales"}

	require.NoError(t, Save(root, cfg))
	loaded, err := LoadFile(root)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadPostgresFromEnv(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "exclusions:\n  backend: postgres\n  path: \"\"\n")
	t.Setenv("FTAUDIT_PG_HOST", "db.internal")
	t.Setenv("FTAUDIT_PG_PORT", "6432")
	t.Setenv("FTAUDIT_PG_PASSWORD", "secret")

	cfg, err := Load(root)
	require.NoError(t, err, "postgres does not need a path")
	pg := cfg.Exclusions.Postgres
	assert.Equal(t, "db.internal", pg.Host)
	assert.Equal(t, 6432, pg.Port)
	assert.Equal(t, "secret", pg.Password)
	assert.Equal(t, "ftaudit", pg.Database, "unset keys keep defaults")
}

func TestResolve(t *testing.T) {
	assert.Equal(t, filepath.Join("/proj", "a.yaml"), Resolve("/proj", "a.yaml"))
	assert.Equal(t, "/abs/a.yaml", Resolve("/proj", "/abs/a.yaml"))
}

func TestOpenExclusionsBackends(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		backend Backend
		path    string
	}{
		{BackendYAML, ".ftaudit/exclusions.yaml"},
		{BackendSQLite, ".ftaudit/ftaudit.db"},
	} {
		t.Run(string(tc.backend), func(t *testing.T) {
			root := t.TempDir()
			cfg := Default()
			cfg.Exclusions.Backend = tc.backend
			cfg.Exclusions.Path = tc.path

			store, closer, err := OpenExclusions(ctx, root, cfg)
			require.NoError(t, err)
			require.NoError(t, store.Add(ctx, types.MustPair("I2", "I1")))
			require.NoError(t, store.Close(ctx))
			require.NoError(t, closer.Close())

			_, err = os.Stat(filepath.Join(root, tc.path))
			require.NoError(t, err)

			store, closer, err = OpenExclusions(ctx, root, cfg)
			require.NoError(t, err)
			defer func() { _ = closer.Close() }()
			assert.Equal(t, []types.Pair{types.MustPair("I1", "I2")}, store.Pairs())
		})
	}
}
