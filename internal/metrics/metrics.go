package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RowsMigrated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sayu_rows_migrated_total", Help: "Rows handled by migrate, by outcome"},
		[]string{"table", "outcome"},
	)
	Probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sayu_probes_total", Help: "Cloudinary candidate URLs probed"},
		[]string{"result"},
	)
	MetObjects = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sayu_met_objects_total", Help: "Met Museum objects processed"},
		[]string{"outcome"},
	)
	AuditFindings = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sayu_audit_findings_total", Help: "Rows flagged by audit checks"},
		[]string{"check", "severity"},
	)
	ExhibitionsImported = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sayu_exhibitions_imported_total", Help: "Exhibition records processed by import"},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(RowsMigrated, Probes, MetObjects, AuditFindings, ExhibitionsImported)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
