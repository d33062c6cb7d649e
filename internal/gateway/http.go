package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewMux routes the gateway's HTTP surface:
//
//	/ws        websocket feed
//	/presence  JSON list of present users
//	/history   JSON snapshot of retained messages
//	/metrics   prometheus
func NewMux(h *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWs)
	mux.Handle("/presence", CORSMiddleware(http.HandlerFunc(h.servePresence)))
	mux.Handle("/history", CORSMiddleware(http.HandlerFunc(h.serveHistory)))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Hub) servePresence(w http.ResponseWriter, r *http.Request) {
	users, err := h.presence.Members(r.Context())
	if err != nil {
		h.log.Warn("failed to fetch presence", zap.Error(err))
		http.Error(w, "Failed to fetch presence", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}

func (h *Hub) serveHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.history.snapshot())
}
