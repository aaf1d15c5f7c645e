package services

import "github.com/prometheus/client_golang/prometheus"

var (
	parsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibliography_parses_total",
			Help: "Total number of BibTeX parse attempts by result.",
		},
		[]string{"result"},
	)
	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibliography_uploads_total",
			Help: "Total number of bibliography uploads by status.",
		},
		[]string{"status"},
	)
	publicationsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "publications_loaded",
			Help: "Number of publications in the currently served set.",
		},
	)
)

func init() {
	prometheus.MustRegister(parsesTotal, uploadsTotal, publicationsLoaded)
}
