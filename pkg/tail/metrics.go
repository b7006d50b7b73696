package tail

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// linesTotal counts log lines consumed by the tailer.
	linesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dnsguard_tail_lines_total",
		Help: "Total number of query log lines read by the tailer",
	})

	// candidatesTotal counts lines that passed the pre-filter gate.
	candidatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dnsguard_tail_candidates_total",
		Help: "Total number of query names flagged worth scoring by the pre-filter",
	})

	// errorsTotal counts transient poll errors, labeled by kind so
	// failures are observable instead of swallowed.
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dnsguard_tail_errors_total",
		Help: "Total number of tailer errors by kind",
	}, []string{"kind"})

	// pollsTotal counts completed poll cycles.
	pollsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dnsguard_tail_polls_total",
		Help: "Total number of tailer poll cycles",
	})
)
