package wsrelay

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// HandleLive handles WebSocket connections for a live session
func (r *Relay) HandleLive(w http.ResponseWriter, req *http.Request) {
	sessionID := req.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	clientID := req.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = "anonymous"
	}

	// The upgrader has already written an HTTP error response on failure.
	if err := r.Upgrade(w, req, sessionID, clientID); err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Str("client_id", clientID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleStats returns statistics about active connections
func (r *Relay) HandleStats(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(r.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to encode relay stats")
	}
}

// RegisterRoutes registers the relay routes with an HTTP mux
func (r *Relay) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/live", r.HandleLive)
	mux.HandleFunc("/ws/stats", r.HandleStats)
}

// NewHandler builds the relay's HTTP surface: WebSocket and stats routes, /health,
// and /metrics from gatherer when it is non-nil. Everything is wrapped in CORS.
func NewHandler(r *Relay, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	r.RegisterRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}
