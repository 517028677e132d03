package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"archivist/internal/domain/record"
)

// Metrics counts recorder outcomes per record kind.
type Metrics struct {
	RecordsSaved     *prometheus.CounterVec
	RecordsUnchanged *prometheus.CounterVec
}

var _ record.Metrics = (*Metrics)(nil)

// New registers the recorder metrics on reg. A nil reg means the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RecordsSaved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "archivist_records_saved_total",
			Help: "Total number of records persisted",
		}, []string{"kind", "first"}),
		RecordsUnchanged: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "archivist_records_unchanged_total",
			Help: "Total number of saves skipped because content did not change",
		}, []string{"kind"}),
	}
}

// RecordSaved records a persisted record.
func (m *Metrics) RecordSaved(kind record.Kind, isFirstRecord bool) {
	m.RecordsSaved.WithLabelValues(kind.String(), strconv.FormatBool(isFirstRecord)).Inc()
}

// RecordUnchanged records a save that matched the latest content.
func (m *Metrics) RecordUnchanged(kind record.Kind) {
	m.RecordsUnchanged.WithLabelValues(kind.String()).Inc()
}
