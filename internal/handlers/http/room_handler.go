package http

import (
	"context"
	"net/http"

	"callhub/internal/core/domain"
	"callhub/internal/core/services"

	"github.com/gin-gonic/gin"
)

// RoomInspector is the read-only side of the signaling router.
type RoomInspector interface {
	Snapshot(ctx context.Context, roomID domain.RoomID) (domain.RoomSnapshot, error)
	Stats(ctx context.Context) domain.HubStats
}

type RoomHandler struct {
	rooms RoomInspector
}

func NewRoomHandler(rooms RoomInspector) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

func (h *RoomHandler) SetupRoutes(api *gin.RouterGroup) {
	api.GET("/rooms/:id", h.GetRoom)
	api.GET("/stats", h.GetStats)
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	snapshot, err := h.rooms.Snapshot(c.Request.Context(), domain.RoomID(c.Param("id")))
	if err != nil {
		c.Error(services.ToAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": snapshot})
}

func (h *RoomHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.rooms.Stats(c.Request.Context()))
}
