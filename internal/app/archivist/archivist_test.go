package archivist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"

	"archivist/internal/domain/record"
)

// memoryRepository keeps records in memory. Its Save reads the latest record and writes
// in two separate critical sections, like the real backends do.
type memoryRepository struct {
	mu      sync.Mutex
	records []*record.Record
}

func (m *memoryRepository) Initialize(context.Context) error { return nil }
func (m *memoryRepository) Finalize(context.Context) error   { return nil }

func (m *memoryRepository) Save(ctx context.Context, rec *record.Record) (record.Outcome, error) {
	latest, _ := m.FindLatest(ctx, rec.ServiceID, rec.DocumentType)
	runtime.Gosched()

	if latest != nil && bytes.Equal(latest.Content, rec.Content) {
		return record.Outcome{}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *rec
	stored.ID = fmt.Sprintf("id-%d", len(m.records)+1)
	stored.IsFirstRecord = latest == nil
	stored.IsRefilter = rec.IsRefilter && latest != nil
	m.records = append(m.records, &stored)

	rec.ID = stored.ID
	rec.IsFirstRecord = stored.IsFirstRecord
	return record.Outcome{ID: stored.ID, IsFirstRecord: stored.IsFirstRecord}, nil
}

func (m *memoryRepository) FindLatest(_ context.Context, serviceID, documentType string) (*record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *record.Record
	for _, rec := range m.records {
		if rec.ServiceID == serviceID && rec.DocumentType == documentType {
			if latest == nil || !rec.FetchDate.Before(latest.FetchDate) {
				latest = rec
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	found := *latest
	return &found, nil
}

func (m *memoryRepository) FindByID(context.Context, string) (*record.Record, error) {
	return nil, nil
}

func (m *memoryRepository) FindAll(context.Context, record.FindOptions) ([]*record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*record.Record(nil), m.records...), nil
}

func (m *memoryRepository) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

func (m *memoryRepository) Iterate(ctx context.Context, opts record.FindOptions) iter.Seq2[*record.Record, error] {
	return func(yield func(*record.Record, error) bool) {
		records, _ := m.FindAll(ctx, opts)
		for _, rec := range records {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (m *memoryRepository) RemoveAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	return nil
}

func (m *memoryRepository) LoadRecordContent(context.Context, *record.Record) error { return nil }

type recordingObserver struct {
	NopObserver
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) add(event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObserver) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

func (o *recordingObserver) OnFirstSnapshotRecorded(_, _, _ string) { o.add("first snapshot") }
func (o *recordingObserver) OnSnapshotRecorded(_, _, _ string)      { o.add("snapshot") }
func (o *recordingObserver) OnSnapshotNotChanged(_, _ string)       { o.add("snapshot not changed") }
func (o *recordingObserver) OnFirstVersionRecorded(_, _, _ string)  { o.add("first version") }
func (o *recordingObserver) OnVersionRecorded(_, _, _ string)       { o.add("version") }
func (o *recordingObserver) OnVersionNotChanged(_, _ string)        { o.add("version not changed") }
func (o *recordingObserver) OnError(error, string, string)          { o.add("error") }

// upperFilter returns the snapshot content upper-cased, with an optional suffix.
type upperFilter struct {
	suffix string
	err    error
}

func (f *upperFilter) Filter(_ context.Context, snapshot *record.Record) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte(strings.ToUpper(string(snapshot.Content)) + f.suffix), nil
}

type mapFetcher map[record.Partition]Document

func (f mapFetcher) Fetch(_ context.Context, p record.Partition) (Document, error) {
	doc, ok := f[p]
	if !ok {
		return Document{}, errors.New("document is inaccessible")
	}
	return doc, nil
}

var fetchDate = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)

func document(serviceID, content string, date time.Time) Document {
	return Document{
		ServiceID:    serviceID,
		DocumentType: "Terms of Service",
		Content:      []byte(content),
		MimeType:     "text/html",
		FetchDate:    date,
	}
}

type fixture struct {
	snapshots *memoryRepository
	versions  *memoryRepository
	filter    *upperFilter
	observer  *recordingObserver
	archivist *Archivist
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		snapshots: &memoryRepository{},
		versions:  &memoryRepository{},
		filter:    &upperFilter{},
		observer:  &recordingObserver{},
	}
	recorder := record.NewRecorder(f.snapshots, f.versions, slog.Default())
	f.archivist = New(recorder, f.filter, slog.Default(), opts...)
	f.archivist.Attach(f.observer)
	return f
}

func TestArchivist_RecordDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.archivist.RecordDocument(ctx, document("service", "<p>a</p>", fetchDate)))
	require.NoError(t, f.archivist.RecordDocument(ctx, document("service", "<p>a</p>", fetchDate.Add(time.Hour))))
	require.NoError(t, f.archivist.RecordDocument(ctx, document("service", "<P>A</P>", fetchDate.Add(2*time.Hour))))
	require.NoError(t, f.archivist.RecordDocument(ctx, document("service", "<p>b</p>", fetchDate.Add(3*time.Hour))))

	assert.Equal(t, []string{
		"first snapshot", "first version",
		"snapshot not changed",
		"snapshot", "version not changed",
		"snapshot", "version",
	}, f.observer.Events())

	versions, err := f.versions.FindAll(ctx, record.FindOptions{})
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, []string{"id-1"}, versions[0].SnapshotIDs)
	assert.Equal(t, record.MarkdownMimeType, versions[0].MimeType)
	assert.False(t, versions[1].IsRefilter)
}

func TestArchivist_RecordDocument_FilterError(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.filter.err = errors.New("no content matches the selectors")

	err := f.archivist.RecordDocument(ctx, document("service", "<p>a</p>", fetchDate))

	require.Error(t, err)
	assert.Equal(t, []string{"first snapshot", "error"}, f.observer.Events())
}

func TestArchivist_RecordDocument_ValidationError(t *testing.T) {
	f := newFixture()

	err := f.archivist.RecordDocument(context.Background(), document("", "<p>a</p>", fetchDate))

	assert.True(t, record.IsValidationError(err))
	assert.Equal(t, []string{"error"}, f.observer.Events())
}

func TestArchivist_RecordDocument_SamePartitionIsSerialized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(WithConcurrency(8))

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			return f.archivist.RecordDocument(ctx, document("service", "<p>a</p>", fetchDate))
		})
	}
	require.NoError(t, g.Wait())

	count, err := f.snapshots.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, f.archivist.locks.len())
}

func TestArchivist_Refilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.archivist.RecordDocument(ctx, document("service", "<p>a</p>", fetchDate)))

	f.filter.suffix = "\n\nfiltered with new rules"
	partitions := []record.Partition{
		{ServiceID: "service", DocumentType: "Terms of Service"},
		{ServiceID: "untracked", DocumentType: "Terms of Service"},
	}
	require.NoError(t, f.archivist.Refilter(ctx, partitions))

	latest, err := f.versions.FindLatest(ctx, "service", "Terms of Service")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.IsRefilter)
	assert.Equal(t, []string{"id-1"}, latest.SnapshotIDs)
	assert.Equal(t, "<P>A</P>\n\nfiltered with new rules", string(latest.Content))

	// Nothing changed since the last refilter.
	require.NoError(t, f.archivist.Refilter(ctx, partitions))
	assert.Equal(t, []string{"first snapshot", "first version", "version", "version not changed"}, f.observer.Events())
}

func TestArchivist_TrackChanges(t *testing.T) {
	ctx := context.Background()
	fetcher := mapFetcher{
		{ServiceID: "a", DocumentType: "Terms of Service"}: document("a", "<p>a</p>", fetchDate),
		{ServiceID: "b", DocumentType: "Terms of Service"}: document("b", "<p>b</p>", fetchDate),
	}
	f := newFixture(WithFetcher(fetcher), WithConcurrency(2))

	err := f.archivist.TrackChanges(ctx, []record.Partition{
		{ServiceID: "a", DocumentType: "Terms of Service"},
		{ServiceID: "missing", DocumentType: "Terms of Service"},
		{ServiceID: "b", DocumentType: "Terms of Service"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing/Terms of Service")
	assert.Contains(t, err.Error(), "document is inaccessible")

	count, err := f.snapshots.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Contains(t, f.observer.Events(), "error")
}

func TestArchivist_TrackChanges_NoFetcher(t *testing.T) {
	f := newFixture()

	err := f.archivist.TrackChanges(context.Background(), nil)

	assert.Error(t, err)
}

func TestArchivist_WithoutFilter(t *testing.T) {
	ctx := context.Background()
	snapshots, versions := &memoryRepository{}, &memoryRepository{}
	a := New(record.NewRecorder(snapshots, versions, slog.Default()), nil, slog.Default())

	require.NoError(t, a.RecordDocument(ctx, document("service", "<p>a</p>", fetchDate)))

	count, err := versions.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Error(t, a.Refilter(ctx, nil))
}
