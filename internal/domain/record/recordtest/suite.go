// Package recordtest holds the behaviour every record.Repository implementation must share.
// Backends embed RepositorySuite in their own tests and provide a factory.
package recordtest

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"archivist/internal/domain/record"
)

const (
	ServiceID    = "test_service"
	DocumentType = "Terms of Service"
	HTMLMimeType = "text/html"
	PDFMimeType  = "application/pdf"
)

var (
	FetchDate        = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	FetchDateLater   = time.Date(2000, 1, 2, 12, 0, 0, 0, time.UTC)
	FetchDateLatest  = time.Date(2000, 1, 3, 12, 0, 0, 0, time.UTC)
	Content          = []byte("<html><h1>ToS fixture data with UTF-8 çhãràčtęrs</h1></html>")
	UpdatedContent   = []byte("<html><h1>ToS fixture data with UTF-8 çhãràčtęrs</h1><h2>Updated!</h2></html>")
	PDFContent       = append([]byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"), []byte{0x00, 0xff, 0x0d, 0x0a, 0x80, 0x1b, 0xc3, 0x28}...)
	VersionContent   = []byte("# ToS fixture data with UTF-8 çhãràčtęrs")
	SourceSnapshotID = "61af86dc5ff5caa74ae926ad"
)

// RepositorySuite runs the repository contract against one backend.
type RepositorySuite struct {
	suite.Suite

	// NewRepository returns a fresh, uninitialized repository for each test.
	NewRepository func(t *testing.T) record.Repository

	Repo record.Repository
	Ctx  context.Context
}

func (s *RepositorySuite) SetupTest() {
	s.Ctx = context.Background()
	s.Repo = s.NewRepository(s.T())
	s.Require().NoError(s.Repo.Initialize(s.Ctx))
}

func (s *RepositorySuite) TearDownTest() {
	s.Require().NoError(s.Repo.RemoveAll(s.Ctx))
	s.Require().NoError(s.Repo.Finalize(s.Ctx))
}

func (s *RepositorySuite) snapshot(serviceID string, content []byte, date time.Time) *record.Record {
	return &record.Record{
		ServiceID:    serviceID,
		DocumentType: DocumentType,
		Content:      content,
		MimeType:     HTMLMimeType,
		FetchDate:    date,
	}
}

func (s *RepositorySuite) save(rec *record.Record) record.Outcome {
	outcome, err := s.Repo.Save(s.Ctx, rec)
	s.Require().NoError(err)
	return outcome
}

func (s *RepositorySuite) TestSave_FirstRecord() {
	rec := s.snapshot(ServiceID, Content, FetchDate)

	outcome := s.save(rec)

	s.NotEmpty(outcome.ID)
	s.True(outcome.IsFirstRecord)
	s.Equal(outcome.ID, rec.ID)
	s.True(rec.IsFirstRecord)

	latest, err := s.Repo.FindLatest(s.Ctx, ServiceID, DocumentType)
	s.Require().NoError(err)
	s.Require().NotNil(latest)
	s.Equal(outcome.ID, latest.ID)
	s.Equal(Content, latest.Content)
	s.Equal(HTMLMimeType, latest.MimeType)
	s.True(latest.FetchDate.Equal(FetchDate))
	s.True(latest.IsFirstRecord)
}

func (s *RepositorySuite) TestSave_NotFirstRecord() {
	s.save(s.snapshot(ServiceID, Content, FetchDate))

	outcome := s.save(s.snapshot(ServiceID, UpdatedContent, FetchDateLater))

	s.NotEmpty(outcome.ID)
	s.False(outcome.IsFirstRecord)

	latest, err := s.Repo.FindLatest(s.Ctx, ServiceID, DocumentType)
	s.Require().NoError(err)
	s.Require().NotNil(latest)
	s.Equal(outcome.ID, latest.ID)
	s.Equal(UpdatedContent, latest.Content)
	s.False(latest.IsFirstRecord)
}

func (s *RepositorySuite) TestSave_UnchangedContent() {
	first := s.save(s.snapshot(ServiceID, Content, FetchDate))

	outcome := s.save(s.snapshot(ServiceID, Content, FetchDateLater))

	s.False(outcome.Recorded())
	s.Equal(record.Outcome{}, outcome)

	latest, err := s.Repo.FindLatest(s.Ctx, ServiceID, DocumentType)
	s.Require().NoError(err)
	s.Require().NotNil(latest)
	s.Equal(first.ID, latest.ID)
	s.True(latest.FetchDate.Equal(FetchDate))

	count, err := s.Repo.Count(s.Ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
}

// X at T1, X at T2, Y at T3.
func (s *RepositorySuite) TestSave_Scenario() {
	first := s.save(s.snapshot("A", []byte("X"), FetchDate))
	s.True(first.IsFirstRecord)
	s.NotEmpty(first.ID)

	second := s.save(s.snapshot("A", []byte("X"), FetchDateLater))
	s.Equal(record.Outcome{}, second)

	third := s.save(s.snapshot("A", []byte("Y"), FetchDateLatest))
	s.False(third.IsFirstRecord)
	s.NotEmpty(third.ID)
	s.NotEqual(first.ID, third.ID)

	latest, err := s.Repo.FindLatest(s.Ctx, "A", DocumentType)
	s.Require().NoError(err)
	s.Require().NotNil(latest)
	s.Equal([]byte("Y"), latest.Content)
}

func (s *RepositorySuite) TestSave_PartitionsAreIndependent() {
	a := s.save(s.snapshot("service_a", Content, FetchDate))
	b := s.save(s.snapshot("service_b", Content, FetchDate))

	s.True(a.IsFirstRecord)
	s.True(b.IsFirstRecord)
	s.NotEqual(a.ID, b.ID)
}

func (s *RepositorySuite) TestSave_VersionFields() {
	rec := &record.Record{
		ServiceID:    ServiceID,
		DocumentType: DocumentType,
		Content:      VersionContent,
		MimeType:     record.MarkdownMimeType,
		FetchDate:    FetchDate,
		SnapshotIDs:  []string{SourceSnapshotID, "61af86dc5ff5caa74ae926ae"},
		IsRefilter:   true,
	}
	outcome := s.save(rec)

	found, err := s.Repo.FindByID(s.Ctx, outcome.ID)
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal(VersionContent, found.Content)
	s.Equal(record.MarkdownMimeType, found.MimeType)
	s.Equal(rec.SnapshotIDs, found.SnapshotIDs)
	s.False(found.IsRefilter, "a first record is never flagged as refilter")
	s.True(found.IsFirstRecord)

	next := &record.Record{
		ServiceID:    ServiceID,
		DocumentType: DocumentType,
		Content:      append(append([]byte{}, VersionContent...), []byte("\n\nUpdated")...),
		MimeType:     record.MarkdownMimeType,
		FetchDate:    FetchDateLater,
		SnapshotIDs:  []string{SourceSnapshotID},
		IsRefilter:   true,
	}
	nextOutcome := s.save(next)

	found, err = s.Repo.FindByID(s.Ctx, nextOutcome.ID)
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.True(found.IsRefilter)
	s.Equal(record.KindVersion, found.Kind())
	s.Equal([]string{SourceSnapshotID}, found.SnapshotIDs)
}

func (s *RepositorySuite) TestFindLatest_EmptyPartition() {
	latest, err := s.Repo.FindLatest(s.Ctx, "unknown_service", DocumentType)
	s.Require().NoError(err)
	s.Nil(latest)
}

// "ToS" и "ToS.v2" - разные документы одного сервиса.
func (s *RepositorySuite) TestFindLatest_SiblingDocumentTypes() {
	sibling := &record.Record{
		ServiceID:    ServiceID,
		DocumentType: "ToS.v2",
		Content:      UpdatedContent,
		MimeType:     HTMLMimeType,
		FetchDate:    FetchDate,
	}
	s.save(sibling)

	latest, err := s.Repo.FindLatest(s.Ctx, ServiceID, "ToS")
	s.Require().NoError(err)
	s.Nil(latest)

	outcome := s.save(&record.Record{
		ServiceID:    ServiceID,
		DocumentType: "ToS",
		Content:      Content,
		MimeType:     HTMLMimeType,
		FetchDate:    FetchDateLater,
	})
	s.True(outcome.IsFirstRecord)

	latest, err = s.Repo.FindLatest(s.Ctx, ServiceID, "ToS")
	s.Require().NoError(err)
	s.Require().NotNil(latest)
	s.Equal(outcome.ID, latest.ID)
	s.Equal("ToS", latest.DocumentType)
	s.Equal(Content, latest.Content)

	latest, err = s.Repo.FindLatest(s.Ctx, ServiceID, "ToS.v2")
	s.Require().NoError(err)
	s.Require().NotNil(latest)
	s.Equal(sibling.ID, latest.ID)
	s.Equal("ToS.v2", latest.DocumentType)
}

func (s *RepositorySuite) TestFindAll_SubSecondFetchDates() {
	late := FetchDate.Add(700 * time.Millisecond)
	early := FetchDate.Add(300 * time.Millisecond)
	s.save(s.snapshot("service_late", Content, late))
	s.save(s.snapshot("service_early", Content, early))

	records, err := s.Repo.FindAll(s.Ctx, record.FindOptions{})
	s.Require().NoError(err)
	s.Require().Len(records, 2)

	s.Equal("service_early", records[0].ServiceID)
	s.True(records[0].FetchDate.Equal(early), records[0].FetchDate)
	s.Equal("service_late", records[1].ServiceID)
	s.True(records[1].FetchDate.Equal(late), records[1].FetchDate)
}

func (s *RepositorySuite) TestFindByID_Unknown() {
	s.save(s.snapshot(ServiceID, Content, FetchDate))

	for _, id := range []string{"", "not an id", "0123456789abcdef0123456789abcdef01234567", "6a1f0c1e-9c4b-4f1a-8e0e-3f2b1c7d9a10"} {
		rec, err := s.Repo.FindByID(s.Ctx, id)
		s.NoError(err, id)
		s.Nil(rec, id)
	}
}

func (s *RepositorySuite) seedOutOfOrder() {
	s.save(s.snapshot("service_b", Content, FetchDateLater))
	s.save(s.snapshot("service_c", Content, FetchDateLatest))
	s.save(s.snapshot("service_a", Content, FetchDate))
}

func (s *RepositorySuite) TestFindAll_AscendingOrder() {
	s.seedOutOfOrder()

	records, err := s.Repo.FindAll(s.Ctx, record.FindOptions{})
	s.Require().NoError(err)
	s.Require().Len(records, 3)

	s.Equal("service_a", records[0].ServiceID)
	s.Equal("service_b", records[1].ServiceID)
	s.Equal("service_c", records[2].ServiceID)
	for _, rec := range records {
		s.Equal(Content, rec.Content)
	}
}

func (s *RepositorySuite) TestFindAll_DeferContentLoading() {
	s.save(s.snapshot(ServiceID, Content, FetchDate))
	s.save(s.snapshot(ServiceID, UpdatedContent, FetchDateLater))

	records, err := s.Repo.FindAll(s.Ctx, record.FindOptions{DeferContentLoading: true})
	s.Require().NoError(err)
	s.Require().Len(records, 2)

	for _, rec := range records {
		s.False(rec.IsContentLoaded())
		s.NotEmpty(rec.ID)
		s.Equal(HTMLMimeType, rec.MimeType)
	}

	s.Require().NoError(s.Repo.LoadRecordContent(s.Ctx, records[0]))
	s.Require().NoError(s.Repo.LoadRecordContent(s.Ctx, records[1]))
	s.Equal(Content, records[0].Content)
	s.Equal(UpdatedContent, records[1].Content)
}

func (s *RepositorySuite) TestIterate() {
	s.seedOutOfOrder()

	collect := func(opts record.FindOptions) []*record.Record {
		var out []*record.Record
		for rec, err := range s.Repo.Iterate(s.Ctx, opts) {
			s.Require().NoError(err)
			out = append(out, rec)
		}
		return out
	}

	first := collect(record.FindOptions{})
	s.Require().Len(first, 3)
	for i := 1; i < len(first); i++ {
		s.False(first[i].FetchDate.Before(first[i-1].FetchDate))
	}
	s.Equal(Content, first[0].Content)

	// Each call starts over.
	second := collect(record.FindOptions{DeferContentLoading: true})
	s.Require().Len(second, 3)
	s.Equal(first[0].ID, second[0].ID)
	s.False(second[0].IsContentLoaded())
}

func (s *RepositorySuite) TestIterate_EarlyBreak() {
	s.seedOutOfOrder()

	seen := 0
	for rec, err := range s.Repo.Iterate(s.Ctx, record.FindOptions{}) {
		s.Require().NoError(err)
		s.Equal("service_a", rec.ServiceID)
		seen++
		break
	}
	s.Equal(1, seen)

	// The repository is still usable after an abandoned iteration.
	outcome := s.save(s.snapshot("service_a", UpdatedContent, FetchDateLatest.Add(time.Hour)))
	s.True(outcome.Recorded())
}

func (s *RepositorySuite) TestCount() {
	count, err := s.Repo.Count(s.Ctx)
	s.Require().NoError(err)
	s.Equal(0, count)

	s.save(s.snapshot(ServiceID, Content, FetchDate))
	s.save(s.snapshot(ServiceID, UpdatedContent, FetchDateLater))
	s.save(s.snapshot(ServiceID, UpdatedContent, FetchDateLatest))

	count, err = s.Repo.Count(s.Ctx)
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *RepositorySuite) TestRemoveAll() {
	s.save(s.snapshot(ServiceID, Content, FetchDate))

	s.Require().NoError(s.Repo.RemoveAll(s.Ctx))

	count, err := s.Repo.Count(s.Ctx)
	s.Require().NoError(err)
	s.Equal(0, count)

	outcome := s.save(s.snapshot(ServiceID, Content, FetchDateLater))
	s.True(outcome.IsFirstRecord)
}

func (s *RepositorySuite) TestBinaryFidelity() {
	rec := &record.Record{
		ServiceID:    ServiceID,
		DocumentType: DocumentType,
		Content:      PDFContent,
		MimeType:     PDFMimeType,
		FetchDate:    FetchDate,
	}
	first := s.save(rec)

	// A second revision makes sure hydration reads the requested revision, not the current file.
	s.save(&record.Record{
		ServiceID:    ServiceID,
		DocumentType: DocumentType,
		Content:      append([]byte("%PDF-1.5\n"), 0x00, 0x01, 0xfe),
		MimeType:     PDFMimeType,
		FetchDate:    FetchDateLater,
	})

	found, err := s.Repo.FindByID(s.Ctx, first.ID)
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal(PDFMimeType, found.MimeType)

	found.Content = nil
	s.Require().NoError(s.Repo.LoadRecordContent(s.Ctx, found))
	s.True(bytes.Equal(PDFContent, found.Content), "pdf bytes differ after round trip")

	latest, err := s.Repo.FindLatest(s.Ctx, ServiceID, DocumentType)
	s.Require().NoError(err)
	s.Require().NotNil(latest)
	s.Equal(append([]byte("%PDF-1.5\n"), 0x00, 0x01, 0xfe), latest.Content)
}

func (s *RepositorySuite) TestSave_ConcurrentPartitions() {
	const partitions = 8

	var g errgroup.Group
	for i := 0; i < partitions; i++ {
		serviceID := fmt.Sprintf("service_%d", i)
		g.Go(func() error {
			outcome, err := s.Repo.Save(s.Ctx, s.snapshot(serviceID, Content, FetchDate))
			if err != nil {
				return err
			}
			if !outcome.IsFirstRecord {
				return fmt.Errorf("%s: expected first record", serviceID)
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	count, err := s.Repo.Count(s.Ctx)
	s.Require().NoError(err)
	s.Equal(partitions, count)
}
