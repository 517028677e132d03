// Package postgres stores records as JSONB documents in PostgreSQL, one collection per repository.
package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/exp/slog"

	"archivist/internal/domain/record"
	"archivist/internal/infrastructure/migration"
)

const (
	selectColumns         = `id::text, service_id, document_type, fetch_date, body, content`
	selectColumnsDeferred = `id::text, service_id, document_type, fetch_date, body, NULL::bytea`
)

// Repository implements record.Repository on a PostgreSQL document collection.
type Repository struct {
	cfg    Config
	mapper *Mapper
	engine migration.MigrationEngine
	log    *slog.Logger

	mu   sync.RWMutex
	pool *pgxpool.Pool
}

var _ record.Repository = (*Repository)(nil)

type Option func(*Repository)

// WithMigrationEngine заменяет движок миграций (для тестов)
func WithMigrationEngine(engine migration.MigrationEngine) Option {
	return func(r *Repository) {
		r.engine = engine
	}
}

func NewRepository(cfg Config, log *slog.Logger, opts ...Option) *Repository {
	r := &Repository{
		cfg:    cfg,
		mapper: NewMapper(cfg.Collection),
		engine: migration.DefaultEngine,
		log:    log.With("component", "postgres_repository", "collection", cfg.Collection),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pool != nil {
		return nil
	}

	pool, err := Connect(ctx, r.cfg.URI(), r.engine)
	if err != nil {
		r.log.Error("failed to connect", "error", err)
		return err
	}
	r.pool = pool
	return nil
}

func (r *Repository) Finalize(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pool != nil {
		r.pool.Close()
		r.pool = nil
	}
	return nil
}

func (r *Repository) db() (*pgxpool.Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.pool == nil {
		return nil, &record.ConnectionError{Backend: "postgres", Err: errors.New("repository is not initialized")}
	}
	return r.pool, nil
}

func (r *Repository) Save(ctx context.Context, rec *record.Record) (record.Outcome, error) {
	pool, err := r.db()
	if err != nil {
		return record.Outcome{}, err
	}

	digest := Digest(rec.Content)

	const latestQuery = `
		SELECT id::text, content_digest
		FROM documents
		WHERE collection = $1 AND service_id = $2 AND document_type = $3
		ORDER BY fetch_date DESC, seq DESC
		LIMIT 1`

	var latestID string
	var latestDigest []byte
	err = pool.QueryRow(ctx, latestQuery, r.cfg.Collection, rec.ServiceID, rec.DocumentType).
		Scan(&latestID, &latestDigest)
	isFirstRecord := errors.Is(err, pgx.ErrNoRows)
	if err != nil && !isFirstRecord {
		return record.Outcome{}, r.persistenceError(rec, fmt.Errorf("find latest document: %w", err))
	}

	if !isFirstRecord && bytes.Equal(latestDigest, digest) {
		var latestContent []byte
		const contentQuery = `SELECT content FROM documents WHERE id = $1::uuid`
		if err := pool.QueryRow(ctx, contentQuery, latestID).Scan(&latestContent); err != nil {
			return record.Outcome{}, r.persistenceError(rec, fmt.Errorf("read latest content: %w", err))
		}
		if bytes.Equal(latestContent, rec.Content) {
			return record.Outcome{}, nil
		}
	}

	rec.IsFirstRecord = isFirstRecord
	doc := r.mapper.ToPersistence(rec)

	const insertQuery = `
		INSERT INTO documents (collection, service_id, document_type, fetch_date, body, content, content_digest)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text`

	var id string
	err = pool.QueryRow(ctx, insertQuery,
		doc.Collection, doc.ServiceID, doc.DocumentType, doc.FetchDate, doc.Body, doc.Content, doc.ContentDigest,
	).Scan(&id)
	if err != nil {
		r.log.Error("failed to insert document",
			"service_id", rec.ServiceID, "document_type", rec.DocumentType, "error", err)
		return record.Outcome{}, r.persistenceError(rec, fmt.Errorf("insert document: %w", err))
	}

	rec.ID = id
	return record.Outcome{ID: id, IsFirstRecord: isFirstRecord}, nil
}

func (r *Repository) persistenceError(rec *record.Record, err error) error {
	return &record.PersistenceError{
		Path:    r.cfg.Collection + "/" + rec.ServiceID + "/" + rec.DocumentType,
		Message: "insert " + rec.Kind().String(),
		Err:     err,
	}
}

func (r *Repository) FindLatest(ctx context.Context, serviceID, documentType string) (*record.Record, error) {
	pool, err := r.db()
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + selectColumns + `
		FROM documents
		WHERE collection = $1 AND service_id = $2 AND document_type = $3
		ORDER BY fetch_date DESC, seq DESC
		LIMIT 1`

	rec, err := r.scanRecord(pool.QueryRow(ctx, query, r.cfg.Collection, serviceID, documentType), false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find latest document: %w", err)
	}
	return rec, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (*record.Record, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}

	pool, err := r.db()
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + selectColumns + ` FROM documents WHERE collection = $1 AND id = $2::uuid`

	rec, err := r.scanRecord(pool.QueryRow(ctx, query, r.cfg.Collection, parsed.String()), false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find document %s: %w", id, err)
	}
	return rec, nil
}

func (r *Repository) FindAll(ctx context.Context, opts record.FindOptions) ([]*record.Record, error) {
	var records []*record.Record
	for rec, err := range r.Iterate(ctx, opts) {
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Iterate streams rows in ascending fetch date order. Breaking out of the loop closes the rows.
func (r *Repository) Iterate(ctx context.Context, opts record.FindOptions) iter.Seq2[*record.Record, error] {
	return func(yield func(*record.Record, error) bool) {
		pool, err := r.db()
		if err != nil {
			yield(nil, err)
			return
		}

		columns := selectColumns
		if opts.DeferContentLoading {
			columns = selectColumnsDeferred
		}
		query := `SELECT ` + columns + `
			FROM documents
			WHERE collection = $1
			ORDER BY fetch_date ASC, seq ASC`

		rows, err := pool.Query(ctx, query, r.cfg.Collection)
		if err != nil {
			yield(nil, fmt.Errorf("list documents: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := r.scanRecord(rows, opts.DeferContentLoading)
			if err != nil {
				yield(nil, fmt.Errorf("scan document: %w", err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("list documents: %w", err))
		}
	}
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	pool, err := r.db()
	if err != nil {
		return 0, err
	}

	var count int
	const query = `SELECT count(*) FROM documents WHERE collection = $1`
	if err := pool.QueryRow(ctx, query, r.cfg.Collection).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// RemoveAll deletes every document of the collection.
func (r *Repository) RemoveAll(ctx context.Context) error {
	if err := r.Initialize(ctx); err != nil {
		return err
	}
	pool, err := r.db()
	if err != nil {
		return err
	}

	const query = `DELETE FROM documents WHERE collection = $1`
	tag, err := pool.Exec(ctx, query, r.cfg.Collection)
	if err != nil {
		return fmt.Errorf("remove documents: %w", err)
	}
	r.log.Info("collection cleared", "removed", tag.RowsAffected())
	return nil
}

func (r *Repository) LoadRecordContent(ctx context.Context, rec *record.Record) error {
	pool, err := r.db()
	if err != nil {
		return err
	}

	var content []byte
	const query = `SELECT content FROM documents WHERE collection = $1 AND id = $2::uuid`
	if err := pool.QueryRow(ctx, query, r.cfg.Collection, rec.ID).Scan(&content); err != nil {
		return fmt.Errorf("load content of %s: %w", rec.ID, err)
	}
	if content == nil {
		content = []byte{}
	}
	rec.Content = content
	return nil
}

func (r *Repository) scanRecord(row pgx.Row, deferContent bool) (*record.Record, error) {
	var doc Document
	if err := row.Scan(&doc.ID, &doc.ServiceID, &doc.DocumentType, &doc.FetchDate, &doc.Body, &doc.Content); err != nil {
		return nil, err
	}
	doc.Collection = r.cfg.Collection
	return r.mapper.ToDomain(doc, deferContent), nil
}
