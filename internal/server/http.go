package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maruel/docstore/internal/storage"
	"github.com/maruel/docstore/internal/utils"
)

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	storage.Stats
}

// NewHTTPHandler returns the observability endpoints: /metrics and /healthz.
func NewHTTPHandler(s *Server, reg *storage.Registry, m *Metrics) http.Handler {
	mux := http.NewServeMux()
	if m != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry}))
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok", Stats: reg.Stats()}
		if s != nil {
			resp.Connections = s.ActiveConnections()
		}
		utils.RespondJSON(w, r, http.StatusOK, resp)
	})
	return mux
}
