package postgres

import (
	"time"

	"golang.org/x/crypto/blake2b"

	"archivist/internal/domain/record"
)

// Document is one row of the documents table.
type Document struct {
	ID            string
	Collection    string
	ServiceID     string
	DocumentType  string
	FetchDate     time.Time
	Body          Body
	Content       []byte
	ContentDigest []byte
}

// Body is the JSONB part of a document.
type Body struct {
	ServiceID     string    `json:"serviceId"`
	DocumentType  string    `json:"documentType"`
	MimeType      string    `json:"mimeType"`
	FetchDate     time.Time `json:"fetchDate"`
	IsFirstRecord bool      `json:"isFirstRecord,omitempty"`
	SnapshotIDs   []string  `json:"snapshotIds,omitempty"`
	IsRefilter    bool      `json:"isRefilter,omitempty"`
}

// Digest returns the BLAKE2b-256 digest used to compare contents.
func Digest(content []byte) []byte {
	sum := blake2b.Sum256(content)
	return sum[:]
}

type Mapper struct {
	collection string
}

func NewMapper(collection string) *Mapper {
	return &Mapper{collection: collection}
}

// ToPersistence converts rec into a document. IsFirstRecord must already be set.
// A first record is stored as a plain start of tracking, never as a refilter.
func (m *Mapper) ToPersistence(rec *record.Record) Document {
	fetchDate := rec.FetchDate.UTC()
	return Document{
		Collection:   m.collection,
		ServiceID:    rec.ServiceID,
		DocumentType: rec.DocumentType,
		FetchDate:    fetchDate,
		Body: Body{
			ServiceID:     rec.ServiceID,
			DocumentType:  rec.DocumentType,
			MimeType:      rec.MimeType,
			FetchDate:     fetchDate,
			IsFirstRecord: rec.IsFirstRecord,
			SnapshotIDs:   rec.SnapshotIDs,
			IsRefilter:    rec.IsRefilter && !rec.IsFirstRecord,
		},
		Content:       rec.Content,
		ContentDigest: Digest(rec.Content),
	}
}

// ToDomain converts doc into a record. Content stays nil when deferContent is set.
func (m *Mapper) ToDomain(doc Document, deferContent bool) *record.Record {
	rec := &record.Record{
		ID:            doc.ID,
		ServiceID:     doc.ServiceID,
		DocumentType:  doc.DocumentType,
		MimeType:      doc.Body.MimeType,
		FetchDate:     doc.FetchDate.UTC(),
		IsFirstRecord: doc.Body.IsFirstRecord,
		SnapshotIDs:   doc.Body.SnapshotIDs,
		IsRefilter:    doc.Body.IsRefilter,
	}
	if !deferContent {
		rec.Content = doc.Content
		if rec.Content == nil {
			rec.Content = []byte{}
		}
	}
	return rec
}
