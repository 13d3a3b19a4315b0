package download

import "github.com/prometheus/client_golang/prometheus"

var (
	transfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "manyllmd",
			Subsystem: "download",
			Name:      "transfers_total",
			Help:      "Finished transfers by result",
		},
		[]string{"result"},
	)

	transferRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "manyllmd",
			Subsystem: "download",
			Name:      "retries_total",
			Help:      "Transient retries across all transfers",
		},
	)

	transferBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "manyllmd",
			Subsystem: "download",
			Name:      "bytes_total",
			Help:      "Bytes received across all transfers",
		},
	)
)

func init() {
	prometheus.MustRegister(transfersTotal, transferRetriesTotal, transferBytesTotal)
}
