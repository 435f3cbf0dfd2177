package http

import (
	"net/http"

	"callhub/internal/infrastructure/middleware"
	"callhub/pkg/config"

	"github.com/gin-gonic/gin"
)

// ICEHandler serves the static STUN/TURN list clients pass to
// RTCPeerConnection. Servers that carry credentials are only handed to
// authenticated callers; the route runs behind OptionalAuthMiddleware.
type ICEHandler struct {
	servers []config.ICEServer
}

func NewICEHandler(servers []config.ICEServer) *ICEHandler {
	return &ICEHandler{servers: servers}
}

func (h *ICEHandler) SetupRoutes(api *gin.RouterGroup) {
	api.GET("/ice-servers", h.GetICEServers)
}

func (h *ICEHandler) GetICEServers(c *gin.Context) {
	_, authenticated := middleware.CallerID(c)

	servers := make([]config.ICEServer, 0, len(h.servers))
	for _, s := range h.servers {
		if authenticated || (s.Username == "" && s.Credential == "") {
			servers = append(servers, s)
		}
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.JSON(http.StatusOK, gin.H{"ice_servers": servers})
}
