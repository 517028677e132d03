// Package git stores records as commits of a local git repository, one file per partition.
package git

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/moby/sys/atomicwriter"
	"golang.org/x/exp/slog"

	"archivist/internal/domain/record"
)

const pdfMimeType = "application/pdf"

var commitID = regexp.MustCompile(`^[0-9a-f]{4,40}$`)

// Config describes one git-backed repository.
type Config struct {
	Path                      string
	Author                    Author
	Publish                   bool
	PrefixMessageToSnapshotID string
}

// Repository implements record.Repository on top of the git executable.
// Writes and working-tree reads are serialized by a repository-wide lock.
type Repository struct {
	cfg    Config
	git    *Git
	mapper *Mapper
	mu     sync.Mutex
	log    *slog.Logger
}

var _ record.Repository = (*Repository)(nil)

func NewRepository(cfg Config, log *slog.Logger) *Repository {
	return &Repository{
		cfg:    cfg,
		git:    New(cfg.Path, cfg.Author),
		mapper: NewMapper(cfg.PrefixMessageToSnapshotID),
		log:    log.With("component", "git_repository", "path", cfg.Path),
	}
}

func (r *Repository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.git.Initialize(ctx); err != nil {
		return &record.ConnectionError{Backend: "git", Err: err}
	}
	return nil
}

// Finalize publishes local commits when the repository is configured to.
func (r *Repository) Finalize(ctx context.Context) error {
	if !r.cfg.Publish {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.git.Push(ctx); err != nil {
		r.log.Warn("failed to push records", "error", err)
		return fmt.Errorf("%w: %w", record.ErrPublish, err)
	}
	r.log.Info("records published")
	return nil
}

func (r *Repository) Save(ctx context.Context, rec *record.Record) (record.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	relPath := FilePath(rec.ServiceID, rec.DocumentType, ExtensionFor(rec.MimeType))
	absPath, err := r.absPath(relPath)
	if err != nil {
		return record.Outcome{}, &record.PersistenceError{Path: relPath, Message: r.mapper.Message(rec), Err: err}
	}

	isFirstRecord, err := r.isFirstRecord(ctx, rec.ServiceID, rec.DocumentType)
	if err != nil {
		return record.Outcome{}, fmt.Errorf("check partition history: %w", err)
	}
	rec.IsFirstRecord = isFirstRecord
	message, content, _ := r.mapper.ToPersistence(rec)

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return record.Outcome{}, &record.PersistenceError{Path: relPath, Message: message, Err: err}
	}
	if err := atomicwriter.WriteFile(absPath, content, 0o644); err != nil {
		return record.Outcome{}, &record.PersistenceError{Path: relPath, Message: message, Err: err}
	}

	if err := r.git.Add(ctx, relPath); err != nil {
		return record.Outcome{}, r.rollback(ctx, relPath, message, isFirstRecord, err)
	}

	changed, err := r.git.HasStagedChanges(ctx, relPath)
	if err != nil {
		return record.Outcome{}, r.rollback(ctx, relPath, message, isFirstRecord, err)
	}
	if !changed {
		return record.Outcome{}, nil
	}

	id, err := r.git.Commit(ctx, message, rec.FetchDate)
	if err != nil {
		if stderrContains(err, "nothing to commit", "no changes added to commit") {
			return record.Outcome{}, nil
		}
		return record.Outcome{}, r.rollback(ctx, relPath, message, isFirstRecord, err)
	}

	rec.ID = id
	return record.Outcome{ID: id, IsFirstRecord: isFirstRecord}, nil
}

// rollback leaves the index and working tree as they were before a failed save.
func (r *Repository) rollback(ctx context.Context, relPath, message string, isFirstRecord bool, cause error) error {
	if err := r.git.Unstage(ctx, relPath, !isFirstRecord); err != nil {
		r.log.Error("failed to roll back index", "file", relPath, "error", err)
	}
	if isFirstRecord {
		if absPath, err := r.absPath(relPath); err == nil {
			_ = os.Remove(absPath)
		}
	}
	return &record.PersistenceError{Path: relPath, Message: message, Err: cause}
}

func (r *Repository) isFirstRecord(ctx context.Context, serviceID, documentType string) (bool, error) {
	files, err := r.partitionFiles(ctx, serviceID, documentType)
	if err != nil {
		return false, err
	}
	return len(files) == 0, nil
}

// partitionFiles returns the tracked files of one partition. There is more than one
// when the mime type, and so the extension, changed over time.
func (r *Repository) partitionFiles(ctx context.Context, serviceID, documentType string) ([]string, error) {
	tracked, err := r.git.ListFiles(ctx, LiteralPathspec(serviceID+"/"))
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(tracked, func(file string) bool {
		return !InPartition(file, serviceID, documentType)
	}), nil
}

func (r *Repository) absPath(relPath string) (string, error) {
	abs := filepath.Join(r.git.Path(), filepath.FromSlash(relPath))
	rel, err := filepath.Rel(r.git.Path(), abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q escapes the repository", relPath)
	}
	return abs, nil
}

func (r *Repository) FindLatest(ctx context.Context, serviceID, documentType string) (*record.Record, error) {
	hasCommits, err := r.git.HasCommits(ctx)
	if err != nil || !hasCommits {
		return nil, err
	}

	files, err := r.partitionFiles(ctx, serviceID, documentType)
	if err != nil {
		return nil, fmt.Errorf("list partition files: %w", err)
	}
	if len(files) == 0 {
		return nil, nil
	}

	args := []string{"-1", "--extended-regexp", "--grep=" + recordMessagePattern, "--"}
	for _, file := range files {
		args = append(args, LiteralPathspec(file))
	}
	commits, err := r.git.Log(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("read partition history: %w", err)
	}
	if len(commits) == 0 {
		return nil, nil
	}

	rec, err := r.mapper.ToDomain(commits[0])
	if err != nil {
		return nil, nil
	}
	return r.hydrate(ctx, rec, record.FindOptions{})
}

func (r *Repository) FindByID(ctx context.Context, id string) (*record.Record, error) {
	if !commitID.MatchString(id) {
		return nil, nil
	}

	hasCommits, err := r.git.HasCommits(ctx)
	if err != nil || !hasCommits {
		return nil, err
	}

	commits, err := r.git.Log(ctx, "-1", id)
	if err != nil {
		if stderrContains(err, "bad object", "unknown revision", "ambiguous argument", "bad revision") {
			return nil, nil
		}
		return nil, fmt.Errorf("read commit %s: %w", id, err)
	}
	if len(commits) == 0 {
		return nil, nil
	}

	rec, err := r.mapper.ToDomain(commits[0])
	if err != nil {
		// не запись: README, ручные правки и т.п.
		return nil, nil
	}
	return r.hydrate(ctx, rec, record.FindOptions{})
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

// Iterate reads record metadata once, sorts it by fetch date and hydrates records one at a time.
func (r *Repository) Iterate(ctx context.Context, opts record.FindOptions) iter.Seq2[*record.Record, error] {
	return func(yield func(*record.Record, error) bool) {
		records, err := r.records(ctx)
		if err != nil {
			yield(nil, err)
			return
		}

		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			hydrated, err := r.hydrate(ctx, rec, opts)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(hydrated, nil) {
				return
			}
		}
	}
}

// records returns the metadata of every record in ascending fetch date order.
// Commits that are not records are skipped; records sharing a fetch date keep their history order.
func (r *Repository) records(ctx context.Context) ([]*record.Record, error) {
	hasCommits, err := r.git.HasCommits(ctx)
	if err != nil || !hasCommits {
		return nil, err
	}

	commits, err := r.git.Log(ctx, "--extended-regexp", "--grep="+recordMessagePattern)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	records := make([]*record.Record, 0, len(commits))
	for i := len(commits) - 1; i >= 0; i-- {
		rec, err := r.mapper.ToDomain(commits[i])
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	slices.SortStableFunc(records, func(a, b *record.Record) int {
		return a.FetchDate.Compare(b.FetchDate)
	})
	return records, nil
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	records, err := r.records(ctx)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return len(records), nil
}

// RemoveAll deletes the working tree and its history, then re-creates an empty repository.
func (r *Repository) RemoveAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.git.Path())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("list repository: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(r.git.Path(), entry.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
	}

	if err := r.git.Initialize(ctx); err != nil {
		return &record.ConnectionError{Backend: "git", Err: err}
	}
	return nil
}

func (r *Repository) LoadRecordContent(ctx context.Context, rec *record.Record) error {
	relPath := FilePath(rec.ServiceID, rec.DocumentType, ExtensionFor(rec.MimeType))

	if rec.MimeType != pdfMimeType {
		content, err := r.git.Show(ctx, rec.ID, relPath)
		if err != nil {
			return fmt.Errorf("read %s at %s: %w", relPath, rec.ID, err)
		}
		rec.Content = content
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	content, err := r.readAtRevision(ctx, relPath, rec.ID)
	if err != nil {
		return err
	}
	rec.Content = content
	return nil
}

// readAtRevision checks out relPath at rev, reads it from disk and restores the working tree.
// Callers hold r.mu.
func (r *Repository) readAtRevision(ctx context.Context, relPath, rev string) (content []byte, err error) {
	absPath, err := r.absPath(relPath)
	if err != nil {
		return nil, err
	}

	if err := r.git.Restore(ctx, relPath, rev); err != nil {
		return nil, fmt.Errorf("check out %s at %s: %w", relPath, rev, err)
	}
	defer func() {
		if restoreErr := r.git.Restore(ctx, relPath, "HEAD"); restoreErr != nil && err == nil {
			err = fmt.Errorf("restore %s: %w", relPath, restoreErr)
		}
	}()

	content, err = os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", relPath, err)
	}
	return content, nil
}

func (r *Repository) hydrate(ctx context.Context, rec *record.Record, opts record.FindOptions) (*record.Record, error) {
	if opts.DeferContentLoading {
		return rec, nil
	}
	if err := r.LoadRecordContent(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
