package archivist

import (
	"fmt"

	"golang.org/x/exp/slog"
)

// Observer is notified of every pipeline outcome. Embed NopObserver to implement a subset.
type Observer interface {
	OnFirstSnapshotRecorded(serviceID, documentType, snapshotID string)
	OnSnapshotRecorded(serviceID, documentType, snapshotID string)
	OnSnapshotNotChanged(serviceID, documentType string)
	OnFirstVersionRecorded(serviceID, documentType, versionID string)
	OnVersionRecorded(serviceID, documentType, versionID string)
	OnVersionNotChanged(serviceID, documentType string)
	OnError(err error, serviceID, documentType string)
}

type NopObserver struct{}

func (NopObserver) OnFirstSnapshotRecorded(string, string, string) {}
func (NopObserver) OnSnapshotRecorded(string, string, string)      {}
func (NopObserver) OnSnapshotNotChanged(string, string)            {}
func (NopObserver) OnFirstVersionRecorded(string, string, string)  {}
func (NopObserver) OnVersionRecorded(string, string, string)       {}
func (NopObserver) OnVersionNotChanged(string, string)             {}
func (NopObserver) OnError(error, string, string)                  {}

// LogObserver пишет каждое событие в лог
type LogObserver struct {
	log *slog.Logger
}

var _ Observer = (*LogObserver)(nil)

func NewLogObserver(log *slog.Logger) *LogObserver {
	return &LogObserver{log: log.With("component", "archivist")}
}

func (o *LogObserver) OnFirstSnapshotRecorded(serviceID, documentType, snapshotID string) {
	o.log.Info(fmt.Sprintf("Recorded first snapshot with id %s", snapshotID),
		"service_id", serviceID, "document_type", documentType)
}

func (o *LogObserver) OnSnapshotRecorded(serviceID, documentType, snapshotID string) {
	o.log.Info(fmt.Sprintf("Recorded snapshot with id %s", snapshotID),
		"service_id", serviceID, "document_type", documentType)
}

func (o *LogObserver) OnSnapshotNotChanged(serviceID, documentType string) {
	o.log.Info("No changes, did not record snapshot",
		"service_id", serviceID, "document_type", documentType)
}

func (o *LogObserver) OnFirstVersionRecorded(serviceID, documentType, versionID string) {
	o.log.Info(fmt.Sprintf("Recorded first version with id %s", versionID),
		"service_id", serviceID, "document_type", documentType)
}

func (o *LogObserver) OnVersionRecorded(serviceID, documentType, versionID string) {
	o.log.Info(fmt.Sprintf("Recorded version with id %s", versionID),
		"service_id", serviceID, "document_type", documentType)
}

func (o *LogObserver) OnVersionNotChanged(serviceID, documentType string) {
	o.log.Info("No changes after filtering, did not record version",
		"service_id", serviceID, "document_type", documentType)
}

func (o *LogObserver) OnError(err error, serviceID, documentType string) {
	o.log.Error(err.Error(), "service_id", serviceID, "document_type", documentType)
}
