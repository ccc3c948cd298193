package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"memberpay/internal/engine/reconcile"
)

type MetricsHandler struct {
	stats *reconcile.Stats
}

func NewMetricsHandler(stats *reconcile.Stats) *MetricsHandler {
	return &MetricsHandler{stats: stats}
}

// Export writes the counters in the Prometheus text format.
func (h *MetricsHandler) Export(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP memberpay_up Is the server up\n")
	fmt.Fprintf(w, "# TYPE memberpay_up gauge\n")
	fmt.Fprintf(w, "memberpay_up 1\n")

	for _, c := range h.stats.Snapshot() {
		name := "memberpay_" + strings.ReplaceAll(c.Name, ".", "_") + "_total"
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s %d\n", name, c.Value)
	}
}
