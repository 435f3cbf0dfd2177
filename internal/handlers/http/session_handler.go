package http

import (
	"errors"
	"net/http"
	"time"

	"callhub/internal/core/domain"
	"callhub/internal/core/ports"
	"callhub/internal/core/services"
	"callhub/internal/infrastructure/middleware"
	apperrors "callhub/pkg/errors"
	"callhub/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// SessionInvalidator drops cached session metadata after a write.
type SessionInvalidator interface {
	Invalidate(id domain.SessionID)
}

// SessionHandler feeds the scheduled-session snapshot store.
type SessionHandler struct {
	repo        ports.SessionRepository
	invalidator SessionInvalidator
	logger      *zap.SugaredLogger
}

func NewSessionHandler(repo ports.SessionRepository, invalidator SessionInvalidator, logger *zap.SugaredLogger) *SessionHandler {
	return &SessionHandler{
		repo:        repo,
		invalidator: invalidator,
		logger:      logger,
	}
}

func (h *SessionHandler) SetupRoutes(api *gin.RouterGroup) {
	api.PUT("/sessions/:id", h.PutSession)
	api.GET("/sessions/:id", h.GetSession)
	api.DELETE("/sessions/:id", h.DeleteSession)
}

type PutSessionRequest struct {
	HostID             domain.UserID        `json:"host_id" binding:"required"`
	Password           string               `json:"password,omitempty"`
	MaxParticipants    int                  `json:"max_participants"`
	WaitingRoomEnabled bool                 `json:"waiting_room_enabled"`
	AllowGuests        bool                 `json:"allow_guests"`
	Status             domain.SessionStatus `json:"status,omitempty"`
}

// SessionResponse never carries the password hash.
type SessionResponse struct {
	ID                 domain.SessionID     `json:"id"`
	HostID             domain.UserID        `json:"host_id"`
	RequiresPassword   bool                 `json:"requires_password"`
	MaxParticipants    int                  `json:"max_participants"`
	WaitingRoomEnabled bool                 `json:"waiting_room_enabled"`
	AllowGuests        bool                 `json:"allow_guests"`
	Status             domain.SessionStatus `json:"status"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

func newSessionResponse(s *domain.ScheduledSession) SessionResponse {
	return SessionResponse{
		ID:                 s.ID,
		HostID:             s.HostID,
		RequiresPassword:   s.RequiresPassword,
		MaxParticipants:    s.MaxParticipants,
		WaitingRoomEnabled: s.WaitingRoomEnabled,
		AllowGuests:        s.AllowGuests,
		Status:             s.Status,
		UpdatedAt:          s.UpdatedAt,
	}
}

// PutSession creates or replaces a session snapshot. Only the host may write
// it, and an existing session keeps its host unless the host rewrites it.
func (h *SessionHandler) PutSession(c *gin.Context) {
	id := c.Param("id")
	if err := validation.ValidateSessionID(id); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	var req PutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := h.validatePut(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	caller, _ := middleware.CallerID(c)
	if caller != req.HostID {
		c.Error(apperrors.NewForbiddenError("only the host may publish a session"))
		return
	}

	ctx := c.Request.Context()
	existing, err := h.repo.Get(ctx, domain.SessionID(id))
	switch {
	case err == nil && existing.HostID != caller:
		c.Error(apperrors.NewForbiddenError("session belongs to another host"))
		return
	case err != nil && !errors.Is(err, domain.ErrSessionNotFound):
		c.Error(services.ToAppError(err))
		return
	}

	session := &domain.ScheduledSession{
		ID:                 domain.SessionID(id),
		HostID:             req.HostID,
		MaxParticipants:    req.MaxParticipants,
		WaitingRoomEnabled: req.WaitingRoomEnabled,
		AllowGuests:        req.AllowGuests,
		Status:             req.Status,
		UpdatedAt:          time.Now().UTC(),
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to hash password", http.StatusInternalServerError))
			return
		}
		session.RequiresPassword = true
		session.PasswordHash = string(hash)
	}

	if err := h.repo.Put(ctx, session); err != nil {
		c.Error(services.ToAppError(err))
		return
	}
	if h.invalidator != nil {
		h.invalidator.Invalidate(session.ID)
	}

	h.logger.Infow("session published",
		"session_id", session.ID,
		"host_id", session.HostID,
		"status", session.Status,
		"waiting_room", session.WaitingRoomEnabled,
	)

	status := http.StatusOK
	if existing == nil {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"session": newSessionResponse(session)})
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	session, err := h.repo.Get(c.Request.Context(), domain.SessionID(c.Param("id")))
	if err != nil {
		c.Error(services.ToAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": newSessionResponse(session)})
}

// DeleteSession turns the room back into an ad-hoc room for new joins.
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	id := domain.SessionID(c.Param("id"))
	ctx := c.Request.Context()

	session, err := h.repo.Get(ctx, id)
	if err != nil {
		c.Error(services.ToAppError(err))
		return
	}
	if caller, _ := middleware.CallerID(c); caller != session.HostID {
		c.Error(apperrors.NewForbiddenError("session belongs to another host"))
		return
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		c.Error(services.ToAppError(err))
		return
	}
	if h.invalidator != nil {
		h.invalidator.Invalidate(id)
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) validatePut(req *PutSessionRequest) error {
	if err := validation.ValidateUserID(string(req.HostID)); err != nil {
		return err
	}
	if req.HostID == domain.GuestUserID {
		return errors.New("a guest cannot host a session")
	}
	if err := validation.ValidateMaxParticipants(req.MaxParticipants); err != nil {
		return err
	}
	if req.Password != "" {
		if err := validation.ValidatePassword(req.Password); err != nil {
			return err
		}
	}
	if req.Status == "" {
		req.Status = domain.SessionScheduled
	}
	if !req.Status.Valid() {
		return errors.New("status must be scheduled, live or ended")
	}
	return nil
}
