package services

import (
	"errors"
	"net/http"

	"callhub/internal/core/domain"
	apperrors "callhub/pkg/errors"
)

// ToAppError maps domain sentinels onto wire codes. Messages are generic so
// that nothing about other participants leaks to the caller.
func ToAppError(err error) *apperrors.AppError {
	if err == nil {
		return nil
	}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return apperrors.NewSignalError(apperrors.CodeUnauthorized, "not allowed")
	case errors.Is(err, domain.ErrRoomFull):
		return apperrors.NewSignalError(apperrors.CodeRoomFull, "room is full")
	case errors.Is(err, domain.ErrInvalidEnvelope):
		return apperrors.NewSignalError(apperrors.CodeInvalidEnvelope, "malformed signaling message")
	case errors.Is(err, domain.ErrStaleTarget):
		return apperrors.NewSignalError(apperrors.CodeStaleTarget, "target is not in the room")
	case errors.Is(err, domain.ErrSessionEnded):
		return apperrors.NewSignalError(apperrors.CodeSessionEnded, "session has ended")
	case errors.Is(err, domain.ErrNotInRoom):
		return apperrors.NewSignalError(apperrors.CodeNotInRoom, "not in a room")
	case errors.Is(err, domain.ErrNotPending):
		return apperrors.NewSignalError(apperrors.CodeNotPending, "no pending join request")
	case errors.Is(err, domain.ErrSessionUnavailable):
		return apperrors.NewSignalError(apperrors.CodeUnavailable, "session metadata unavailable")
	case errors.Is(err, domain.ErrSessionNotFound):
		return apperrors.NewNotFoundError("session")
	case errors.Is(err, domain.ErrRoomNotFound):
		return apperrors.NewNotFoundError("room")
	default:
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "internal error", http.StatusInternalServerError)
	}
}
