package record

import (
	"time"
)

// Kind distinguishes raw fetched snapshots from filtered versions.
// Both kinds share the same storage shape.
type Kind string

const (
	KindSnapshot Kind = "snapshot"
	KindVersion  Kind = "version"
)

// String возвращает строковое представление вида записи.
func (k Kind) String() string {
	return string(k)
}

// Record is the unit of storage. ID is assigned by the repository on save.
type Record struct {
	ID            string    `json:"id,omitempty"`
	ServiceID     string    `json:"service_id"`
	DocumentType  string    `json:"document_type"`
	Content       []byte    `json:"-"`
	MimeType      string    `json:"mime_type,omitempty"`
	FetchDate     time.Time `json:"fetch_date"`
	IsFirstRecord bool      `json:"is_first_record"`
	SnapshotIDs   []string  `json:"snapshot_ids,omitempty"`
	IsRefilter    bool      `json:"is_refilter,omitempty"`
}

// Kind returns KindVersion when the record references source snapshots.
func (r *Record) Kind() Kind {
	if len(r.SnapshotIDs) > 0 {
		return KindVersion
	}
	return KindSnapshot
}

// IsContentLoaded reports whether Content has been hydrated.
func (r *Record) IsContentLoaded() bool {
	return r.Content != nil
}

// Partition returns the (service, document type) pair the record belongs to.
func (r *Record) Partition() Partition {
	return Partition{ServiceID: r.ServiceID, DocumentType: r.DocumentType}
}

// Partition groups every record of one document of one service.
type Partition struct {
	ServiceID    string
	DocumentType string
}

func (p Partition) String() string {
	return p.ServiceID + "/" + p.DocumentType
}

// Outcome is the result of a save. A zero Outcome means the content was unchanged.
type Outcome struct {
	ID            string `json:"id,omitempty"`
	IsFirstRecord bool   `json:"is_first_record,omitempty"`
}

// Recorded reports whether a new record was persisted.
func (o Outcome) Recorded() bool {
	return o.ID != ""
}

// FindOptions controls how much of a record is read.
type FindOptions struct {
	// DeferContentLoading leaves Content nil; hydrate with Repository.LoadRecordContent.
	DeferContentLoading bool
}

// SnapshotInput - входные данные для записи снимка
type SnapshotInput struct {
	ServiceID    string
	DocumentType string
	Content      []byte
	MimeType     string
	FetchDate    time.Time
}

// VersionInput - входные данные для записи версии или перефильтрации
type VersionInput struct {
	ServiceID    string
	DocumentType string
	Content      []byte
	MimeType     string
	FetchDate    time.Time
	SnapshotIDs  []string
}
