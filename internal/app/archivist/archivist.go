// Package archivist glues fetching, filtering and recording of tracked documents.
package archivist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"

	"archivist/internal/domain/record"
)

const defaultConcurrency = 4

// Document is a freshly fetched document.
type Document struct {
	ServiceID    string
	DocumentType string
	Content      []byte
	MimeType     string
	FetchDate    time.Time
}

func (d Document) Partition() record.Partition {
	return record.Partition{ServiceID: d.ServiceID, DocumentType: d.DocumentType}
}

// Fetcher retrieves the current content of a tracked document.
type Fetcher interface {
	Fetch(ctx context.Context, p record.Partition) (Document, error)
}

// Filter turns a snapshot into the markdown stored as a version.
type Filter interface {
	Filter(ctx context.Context, snapshot *record.Record) ([]byte, error)
}

type Archivist struct {
	recorder    *record.Recorder
	fetcher     Fetcher
	filter      Filter
	locks       *partitionLocks
	concurrency int
	log         *slog.Logger

	mu        sync.RWMutex
	observers []Observer
}

type Option func(*Archivist)

// WithConcurrency limits how many partitions are processed at once.
func WithConcurrency(n int) Option {
	return func(a *Archivist) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

func WithFetcher(f Fetcher) Option {
	return func(a *Archivist) {
		a.fetcher = f
	}
}

func New(recorder *record.Recorder, filter Filter, log *slog.Logger, opts ...Option) *Archivist {
	a := &Archivist{
		recorder:    recorder,
		filter:      filter,
		locks:       newPartitionLocks(),
		concurrency: defaultConcurrency,
		log:         log.With("component", "archivist"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Attach registers an observer for every following event.
func (a *Archivist) Attach(o Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, o)
}

func (a *Archivist) notify(fn func(Observer)) {
	a.mu.RLock()
	observers := append([]Observer(nil), a.observers...)
	a.mu.RUnlock()

	for _, o := range observers {
		fn(o)
	}
}

// RecordDocument records doc as a snapshot and, when it changed, records its filtered version.
func (a *Archivist) RecordDocument(ctx context.Context, doc Document) error {
	unlock := a.locks.lock(doc.Partition())
	defer unlock()

	err := a.recordDocument(ctx, doc)
	if err != nil {
		a.notify(func(o Observer) { o.OnError(err, doc.ServiceID, doc.DocumentType) })
	}
	return err
}

func (a *Archivist) recordDocument(ctx context.Context, doc Document) error {
	snapshot, err := a.recorder.RecordSnapshot(ctx, record.SnapshotInput{
		ServiceID:    doc.ServiceID,
		DocumentType: doc.DocumentType,
		Content:      doc.Content,
		MimeType:     doc.MimeType,
		FetchDate:    doc.FetchDate,
	})
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}

	switch {
	case !snapshot.Recorded():
		a.notify(func(o Observer) { o.OnSnapshotNotChanged(doc.ServiceID, doc.DocumentType) })
		return nil
	case snapshot.IsFirstRecord:
		a.notify(func(o Observer) { o.OnFirstSnapshotRecorded(doc.ServiceID, doc.DocumentType, snapshot.ID) })
	default:
		a.notify(func(o Observer) { o.OnSnapshotRecorded(doc.ServiceID, doc.DocumentType, snapshot.ID) })
	}

	if a.filter == nil {
		return nil
	}

	return a.recordVersion(ctx, &record.Record{
		ID:           snapshot.ID,
		ServiceID:    doc.ServiceID,
		DocumentType: doc.DocumentType,
		Content:      doc.Content,
		MimeType:     doc.MimeType,
		FetchDate:    doc.FetchDate,
	}, false)
}

func (a *Archivist) recordVersion(ctx context.Context, snapshot *record.Record, isRefilter bool) error {
	content, err := a.filter.Filter(ctx, snapshot)
	if err != nil {
		return fmt.Errorf("filter snapshot %s: %w", snapshot.ID, err)
	}

	in := record.VersionInput{
		ServiceID:    snapshot.ServiceID,
		DocumentType: snapshot.DocumentType,
		Content:      content,
		FetchDate:    snapshot.FetchDate,
		SnapshotIDs:  []string{snapshot.ID},
	}

	var version record.Outcome
	if isRefilter {
		version, err = a.recorder.RecordRefilter(ctx, in)
	} else {
		version, err = a.recorder.RecordVersion(ctx, in)
	}
	if err != nil {
		return fmt.Errorf("record version: %w", err)
	}

	switch {
	case !version.Recorded():
		a.notify(func(o Observer) { o.OnVersionNotChanged(snapshot.ServiceID, snapshot.DocumentType) })
	case version.IsFirstRecord:
		a.notify(func(o Observer) { o.OnFirstVersionRecorded(snapshot.ServiceID, snapshot.DocumentType, version.ID) })
	default:
		a.notify(func(o Observer) { o.OnVersionRecorded(snapshot.ServiceID, snapshot.DocumentType, version.ID) })
	}
	return nil
}

// TrackChanges fetches and records every partition. A failing partition does not stop the others.
func (a *Archivist) TrackChanges(ctx context.Context, partitions []record.Partition) error {
	if a.fetcher == nil {
		return errors.New("track changes: no fetcher configured")
	}

	a.log.Info(fmt.Sprintf("Tracking changes of %d documents", len(partitions)))

	err := a.forEach(ctx, partitions, func(ctx context.Context, p record.Partition) error {
		doc, err := a.fetcher.Fetch(ctx, p)
		if err != nil {
			err = fmt.Errorf("fetch: %w", err)
			a.notify(func(o Observer) { o.OnError(err, p.ServiceID, p.DocumentType) })
			return err
		}
		return a.RecordDocument(ctx, doc)
	})

	a.log.Info(fmt.Sprintf("Tracked changes of %d documents", len(partitions)))
	return err
}

// Refilter re-derives versions from the latest snapshot of every partition.
func (a *Archivist) Refilter(ctx context.Context, partitions []record.Partition) error {
	if a.filter == nil {
		return errors.New("refilter: no filter configured")
	}

	a.log.Info(fmt.Sprintf("Refiltering %d documents", len(partitions)))

	err := a.forEach(ctx, partitions, func(ctx context.Context, p record.Partition) error {
		unlock := a.locks.lock(p)
		defer unlock()

		err := a.refilter(ctx, p)
		if err != nil {
			a.notify(func(o Observer) { o.OnError(err, p.ServiceID, p.DocumentType) })
		}
		return err
	})

	a.log.Info(fmt.Sprintf("Examined %d documents for refiltering", len(partitions)))
	return err
}

func (a *Archivist) refilter(ctx context.Context, p record.Partition) error {
	snapshot, err := a.recorder.LatestSnapshot(ctx, p.ServiceID, p.DocumentType)
	if err != nil {
		return err
	}
	if snapshot == nil {
		return nil
	}
	return a.recordVersion(ctx, snapshot, true)
}

// forEach runs fn for every partition with bounded concurrency and joins the failures.
func (a *Archivist) forEach(ctx context.Context, partitions []record.Partition, fn func(context.Context, record.Partition) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	var mu sync.Mutex
	var errs []error

	for _, p := range partitions {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, p); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", p, err))
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}
