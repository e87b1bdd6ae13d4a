package handler

import (
	"net/http"

	"github.com/chatcore/internal/config"
)

// ConfigHandler отдаёт публичные параметры конфигурации для клиента.
type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

type callConfigResponse struct {
	ICEServers config.IceServers `json:"ice_servers"`
}

// GetCallConfig возвращает ICE-серверы для WebRTC (без авторизации).
func (h *ConfigHandler) GetCallConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, callConfigResponse{ICEServers: h.cfg.CallICEServers})
}
