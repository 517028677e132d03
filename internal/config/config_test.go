package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archivist/internal/infrastructure/storage"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, EnvLocal, cfg.Env)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, storage.TypeGit, cfg.Recorder.Snapshots.Type)
	assert.Equal(t, "./data/snapshots", cfg.Recorder.Snapshots.Git.Path)
	assert.Equal(t, "./data/versions", cfg.Recorder.Versions.Git.Path)
	assert.Equal(t, "Archivist Bot", cfg.Recorder.Versions.Git.Author.Name)
	assert.NotEmpty(t, cfg.Recorder.Versions.Git.PrefixMessageToSnapshotID)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archivist.yaml")
	content := `
env: prod
server:
  address: ":9090"
recorder:
  snapshots:
    type: document-database
    document:
      connection_uri: postgres://archivist@localhost:5432/archivist
      collection: snapshots
  versions:
    git:
      path: /var/lib/archivist/versions
      publish: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("ARCHIVIST_SERVER_ADDRESS", ":7070")
	t.Setenv("ARCHIVIST_RECORDER_VERSIONS_GIT_AUTHOR_NAME", "Release Bot")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, EnvProd, cfg.Env)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, storage.TypeDocumentDatabase, cfg.Recorder.Snapshots.Type)
	assert.Equal(t, "postgres://archivist@localhost:5432/archivist", cfg.Recorder.Snapshots.Document.ConnectionURI)
	assert.Equal(t, "/var/lib/archivist/versions", cfg.Recorder.Versions.Git.Path)
	assert.True(t, cfg.Recorder.Versions.Git.Publish)
	assert.Equal(t, "Release Bot", cfg.Recorder.Versions.Git.Author.Name)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		c := Config{Env: EnvDev}
		c.Recorder.Snapshots = storage.Config{Type: storage.TypeGit, Git: storage.GitConfig{Path: "snapshots"}}
		c.Recorder.Versions = storage.Config{Type: storage.TypeGit, Git: storage.GitConfig{Path: "versions"}}
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown env", mutate: func(c *Config) { c.Env = "staging" }, wantErr: true},
		{name: "unknown storage type", mutate: func(c *Config) { c.Recorder.Versions.Type = "mongodb" }, wantErr: true},
		{name: "missing git path", mutate: func(c *Config) { c.Recorder.Snapshots.Git.Path = "" }, wantErr: true},
		{name: "shared git path", mutate: func(c *Config) { c.Recorder.Versions.Git.Path = "snapshots" }, wantErr: true},
		{
			name: "document database without uri",
			mutate: func(c *Config) {
				c.Recorder.Versions = storage.Config{
					Type:     storage.TypeDocumentDatabase,
					Document: storage.DocumentConfig{Collection: "versions"},
				}
			},
			wantErr: true,
		},
		{
			name: "document databases sharing a collection",
			mutate: func(c *Config) {
				doc := storage.Config{
					Type:     storage.TypeDocumentDatabase,
					Document: storage.DocumentConfig{ConnectionURI: "postgres://localhost/archivist", Collection: "records"},
				}
				c.Recorder.Snapshots = doc
				c.Recorder.Versions = doc
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)

			err := c.Validate()

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}
