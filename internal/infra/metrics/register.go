package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	collectors []prometheus.Collector
)

func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// MustRegister registers all pipeline collectors with the default registry
// (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(collectors...)
	})
}
