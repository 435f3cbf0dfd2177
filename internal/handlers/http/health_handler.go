package http

import (
	"net/http"
	"time"

	"callhub/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	checker *monitoring.HealthChecker
	rooms   RoomInspector
}

func NewHealthHandler(checker *monitoring.HealthChecker, rooms RoomInspector) *HealthHandler {
	return &HealthHandler{checker: checker, rooms: rooms}
}

func (h *HealthHandler) SetupRoutes(router gin.IRoutes) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

// Health is liveness only; it never touches dependencies.
func (h *HealthHandler) Health(c *gin.Context) {
	stats := h.rooms.Stats(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"status":      monitoring.StatusHealthy,
		"timestamp":   time.Now().Unix(),
		"connections": stats.Connections,
		"rooms":       stats.Rooms,
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	status := h.checker.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != monitoring.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
