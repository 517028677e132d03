package storage

import (
	"fmt"

	"golang.org/x/exp/slog"

	"archivist/internal/domain/record"
	"archivist/internal/infrastructure/storage/git"
	"archivist/internal/infrastructure/storage/postgres"
)

const (
	TypeGit              = "git"
	TypeDocumentDatabase = "document-database"
)

// Config selects and configures one repository backend.
type Config struct {
	Type     string         `mapstructure:"type"`
	Git      GitConfig      `mapstructure:"git"`
	Document DocumentConfig `mapstructure:"document"`
}

type GitConfig struct {
	Path                      string `mapstructure:"path"`
	Publish                   bool   `mapstructure:"publish"`
	PrefixMessageToSnapshotID string `mapstructure:"prefix_message_to_snapshot_id"`
	Author                    struct {
		Name  string `mapstructure:"name"`
		Email string `mapstructure:"email"`
	} `mapstructure:"author"`
}

type DocumentConfig struct {
	ConnectionURI string `mapstructure:"connection_uri"`
	Database      string `mapstructure:"database"`
	Collection    string `mapstructure:"collection"`
}

// New returns an uninitialized repository for cfg.
func New(cfg Config, log *slog.Logger) (record.Repository, error) {
	switch cfg.Type {
	case TypeGit:
		return git.NewRepository(git.Config{
			Path: cfg.Git.Path,
			Author: git.Author{
				Name:  cfg.Git.Author.Name,
				Email: cfg.Git.Author.Email,
			},
			Publish:                   cfg.Git.Publish,
			PrefixMessageToSnapshotID: cfg.Git.PrefixMessageToSnapshotID,
		}, log), nil
	case TypeDocumentDatabase:
		return postgres.NewRepository(postgres.Config{
			ConnectionURI: cfg.Document.ConnectionURI,
			Database:      cfg.Document.Database,
			Collection:    cfg.Document.Collection,
		}, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", record.ErrUnknownStorageType, cfg.Type)
	}
}

// NewRecorder builds a recorder from the snapshots and versions configurations.
func NewRecorder(snapshots, versions Config, log *slog.Logger, opts ...record.Option) (*record.Recorder, error) {
	snapshotsRepo, err := New(snapshots, log)
	if err != nil {
		return nil, fmt.Errorf("snapshots storage: %w", err)
	}
	versionsRepo, err := New(versions, log)
	if err != nil {
		return nil, fmt.Errorf("versions storage: %w", err)
	}
	return record.NewRecorder(snapshotsRepo, versionsRepo, log, opts...), nil
}
