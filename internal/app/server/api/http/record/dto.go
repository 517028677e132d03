package record

import (
	"time"

	"archivist/internal/domain/record"
)

const (
	CollectionSnapshots = "snapshots"
	CollectionVersions  = "versions"
)

type listInput struct {
	Collection string `path:"collection" enum:"snapshots,versions" doc:"Коллекция: snapshots или versions"`
	Service    string `query:"service" doc:"Фильтр по сервису"`
	Type       string `query:"type" doc:"Фильтр по типу документа"`
	Limit      int    `query:"limit" minimum:"0" doc:"Максимум записей в ответе, 0 без ограничения"`
}

type listOutput struct {
	Body listResponse
}

type listResponse struct {
	Records []recordResponse `json:"records"`
	Total   int              `json:"total" doc:"Число записей, подходящих под фильтр"`
}

type findInput struct {
	Collection string `path:"collection" enum:"snapshots,versions" doc:"Коллекция: snapshots или versions"`
	ID         string `path:"id" doc:"ID записи"`
}

type findOutput struct {
	Body recordResponse
}

type latestInput struct {
	Collection string `path:"collection" enum:"snapshots,versions" doc:"Коллекция: snapshots или versions"`
	Service    string `query:"service" required:"true" doc:"ID сервиса"`
	Type       string `query:"type" required:"true" doc:"Тип документа"`
}

type contentOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type recordResponse struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind" enum:"snapshot,version"`
	ServiceID     string    `json:"service_id"`
	DocumentType  string    `json:"document_type"`
	MimeType      string    `json:"mime_type"`
	FetchDate     time.Time `json:"fetch_date"`
	IsFirstRecord bool      `json:"is_first_record"`
	SnapshotIDs   []string  `json:"snapshot_ids,omitempty"`
	IsRefilter    bool      `json:"is_refilter,omitempty"`
}

func toResponse(rec *record.Record) recordResponse {
	return recordResponse{
		ID:            rec.ID,
		Kind:          rec.Kind().String(),
		ServiceID:     rec.ServiceID,
		DocumentType:  rec.DocumentType,
		MimeType:      rec.MimeType,
		FetchDate:     rec.FetchDate,
		IsFirstRecord: rec.IsFirstRecord,
		SnapshotIDs:   rec.SnapshotIDs,
		IsRefilter:    rec.IsRefilter,
	}
}
