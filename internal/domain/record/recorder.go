package record

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/exp/slog"
)

// MarkdownMimeType is the mime type of filtered versions unless the caller says otherwise.
const MarkdownMimeType = "text/markdown"

// Metrics receives recorder outcomes. Implementations must be safe for concurrent use.
type Metrics interface {
	RecordSaved(kind Kind, isFirstRecord bool)
	RecordUnchanged(kind Kind)
}

type nopMetrics struct{}

func (nopMetrics) RecordSaved(Kind, bool) {}
func (nopMetrics) RecordUnchanged(Kind)   {}

// Recorder validates inputs and delegates persistence to the configured repositories.
// It emits no events: callers react to the returned Outcome.
type Recorder struct {
	snapshots Repository
	versions  Repository
	metrics   Metrics
	log       *slog.Logger
}

type Option func(*Recorder)

// WithMetrics подключает сбор метрик
func WithMetrics(m Metrics) Option {
	return func(r *Recorder) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewRecorder creates a recorder writing snapshots and versions to their own repositories.
func NewRecorder(snapshots, versions Repository, log *slog.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		snapshots: snapshots,
		versions:  versions,
		metrics:   nopMetrics{},
		log:       log.With("component", "recorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshots returns the repository holding snapshots.
func (r *Recorder) Snapshots() Repository {
	return r.snapshots
}

// Versions returns the repository holding versions and refilters.
func (r *Recorder) Versions() Repository {
	return r.versions
}

// Initialize initializes both repositories.
func (r *Recorder) Initialize(ctx context.Context) error {
	if err := r.snapshots.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize snapshots repository: %w", err)
	}
	if err := r.versions.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize versions repository: %w", err)
	}
	return nil
}

// Finalize finalizes both repositories. A failed publication is logged and reported,
// local records stay valid.
func (r *Recorder) Finalize(ctx context.Context) error {
	repos := []struct {
		name string
		repo Repository
	}{
		{"snapshots", r.snapshots},
		{"versions", r.versions},
	}

	var errs []error
	for _, item := range repos {
		name := item.name
		if err := item.repo.Finalize(ctx); err != nil {
			if errors.Is(err, ErrPublish) {
				r.log.Warn("records were saved locally but could not be published", "repository", name, "error", err)
			} else {
				r.log.Error("failed to finalize repository", "repository", name, "error", err)
			}
			errs = append(errs, fmt.Errorf("finalize %s repository: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// RecordSnapshot persists raw fetched content.
func (r *Recorder) RecordSnapshot(ctx context.Context, in SnapshotInput) (Outcome, error) {
	if err := validate(in.ServiceID, in.DocumentType, in.Content, !in.FetchDate.IsZero()); err != nil {
		return Outcome{}, err
	}
	if in.MimeType == "" {
		return Outcome{}, &ValidationError{Field: "mime type"}
	}

	rec := &Record{
		ServiceID:    in.ServiceID,
		DocumentType: in.DocumentType,
		Content:      in.Content,
		MimeType:     in.MimeType,
		FetchDate:    in.FetchDate,
	}

	return r.save(ctx, r.snapshots, KindSnapshot, rec)
}

// RecordVersion persists filtered content produced from freshly fetched snapshots.
func (r *Recorder) RecordVersion(ctx context.Context, in VersionInput) (Outcome, error) {
	return r.recordVersion(ctx, in, false)
}

// RecordRefilter persists filtered content re-derived from already fetched snapshots.
func (r *Recorder) RecordRefilter(ctx context.Context, in VersionInput) (Outcome, error) {
	return r.recordVersion(ctx, in, true)
}

func (r *Recorder) recordVersion(ctx context.Context, in VersionInput, isRefilter bool) (Outcome, error) {
	if err := validate(in.ServiceID, in.DocumentType, in.Content, !in.FetchDate.IsZero()); err != nil {
		return Outcome{}, err
	}
	if len(in.SnapshotIDs) == 0 {
		return Outcome{}, &ValidationError{Field: "snapshot ID"}
	}

	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = MarkdownMimeType
	}

	rec := &Record{
		ServiceID:    in.ServiceID,
		DocumentType: in.DocumentType,
		Content:      in.Content,
		MimeType:     mimeType,
		FetchDate:    in.FetchDate,
		SnapshotIDs:  append([]string(nil), in.SnapshotIDs...),
		IsRefilter:   isRefilter,
	}

	return r.save(ctx, r.versions, KindVersion, rec)
}

// LatestSnapshot returns the latest snapshot of a document, or nil when none was recorded yet.
func (r *Recorder) LatestSnapshot(ctx context.Context, serviceID, documentType string) (*Record, error) {
	rec, err := r.snapshots.FindLatest(ctx, serviceID, documentType)
	if err != nil {
		return nil, fmt.Errorf("find latest snapshot: %w", err)
	}
	return rec, nil
}

// LatestVersion returns the latest version of a document, or nil when none was recorded yet.
func (r *Recorder) LatestVersion(ctx context.Context, serviceID, documentType string) (*Record, error) {
	rec, err := r.versions.FindLatest(ctx, serviceID, documentType)
	if err != nil {
		return nil, fmt.Errorf("find latest version: %w", err)
	}
	return rec, nil
}

func (r *Recorder) save(ctx context.Context, repo Repository, kind Kind, rec *Record) (Outcome, error) {
	outcome, err := repo.Save(ctx, rec)
	if err != nil {
		r.log.Error("failed to save record",
			"kind", kind, "service_id", rec.ServiceID, "document_type", rec.DocumentType, "error", err)
		return Outcome{}, fmt.Errorf("save %s: %w", kind, err)
	}

	if !outcome.Recorded() {
		r.metrics.RecordUnchanged(kind)
		r.log.Debug("content unchanged, nothing recorded",
			"kind", kind, "service_id", rec.ServiceID, "document_type", rec.DocumentType)
		return Outcome{}, nil
	}

	r.metrics.RecordSaved(kind, outcome.IsFirstRecord)
	r.log.Debug("record saved",
		"kind", kind, "id", outcome.ID, "service_id", rec.ServiceID,
		"document_type", rec.DocumentType, "is_first_record", outcome.IsFirstRecord)

	return outcome, nil
}

func validate(serviceID, documentType string, content []byte, hasFetchDate bool) error {
	switch {
	case serviceID == "":
		return &ValidationError{Field: "service ID"}
	case documentType == "":
		return &ValidationError{Field: "document type"}
	case !hasFetchDate:
		return &ValidationError{Field: "fetch date"}
	case len(content) == 0:
		return &ValidationError{Field: "content"}
	}
	return nil
}
