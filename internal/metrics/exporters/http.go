// Package exporters exposes collected metrics over HTTP and the event bus.
package exporters

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPHandler returns the Prometheus metrics HTTP handler.
// It serves every promauto-registered metric.
func HTTPHandler() http.Handler {
	return promhttp.Handler()
}
