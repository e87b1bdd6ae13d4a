package handler

import (
	"net/http"

	"github.com/chatcore/internal/ws"
)

// StatsHandler отдаёт снимок состояния хаба.
type StatsHandler struct {
	hub *ws.Hub
}

func NewStatsHandler(hub *ws.Hub) *StatsHandler {
	return &StatsHandler{hub: hub}
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Stats())
}

func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
