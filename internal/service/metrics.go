package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolution kinds, sources, and outcomes used as metric label values.
const (
	resolutionKindProduct = "product"
	resolutionKindVariant = "variant"
	resolutionKindPrice   = "price"

	resolutionSourceRemote = "remote"
	resolutionSourceLocal  = "local"
	resolutionSourceNone   = "none"

	resolutionOutcomeOK          = "ok"
	resolutionOutcomeUnavailable = "unavailable"
)

var resolutionTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "selection_resolution_total",
		Help: "Resolution attempts by kind, serving source, and outcome",
	},
	[]string{"kind", "source", "outcome"},
)

func recordResolution(kind, source, outcome string) {
	resolutionTotal.WithLabelValues(kind, source, outcome).Inc()
}
