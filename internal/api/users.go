package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tgpanel/core/internal/audit"
	"github.com/tgpanel/core/internal/user"
)

type createUserRequest struct {
	TelegramID       int64  `json:"telegram_id"`
	Name             string `json:"name"`
	SubscriptionType string `json:"subscription_type"`
}

// handleCreateUser registers the caller's own Telegram account.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if claims := claimsFrom(r.Context()); claims == nil || claims.TelegramID != req.TelegramID {
		writeForbidden(w, "can only register your own account")
		return
	}

	u := &user.User{
		TelegramID:       req.TelegramID,
		Name:             req.Name,
		SubscriptionType: req.SubscriptionType,
	}
	if err := s.users.Create(r.Context(), u); err != nil {
		switch {
		case errors.Is(err, user.ErrInvalidUser):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		case errors.Is(err, user.ErrUserExists):
			writeError(w, http.StatusConflict, ErrCodeConflict, "user already exists")
		default:
			s.logger.Error("creating user", "error", err)
			writeInternalError(w, "failed to create user")
		}
		return
	}

	s.record(r, audit.AuditLog{
		Action:     audit.ActionCreate,
		EntityType: audit.EntityUser,
		EntityID:   u.ID,
		UserID:     u.ID,
	})
	writeJSON(w, http.StatusCreated, u)
}

// handleGetUser returns the caller's account by Telegram ID.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	telegramID, err := strconv.ParseInt(chi.URLParam(r, "telegram_id"), 10, 64)
	if err != nil || telegramID <= 0 {
		writeBadRequest(w, "telegram_id must be a positive integer")
		return
	}
	if claims := claimsFrom(r.Context()); claims == nil || claims.TelegramID != telegramID {
		writeForbidden(w, "can only read your own account")
		return
	}

	u, err := s.users.GetByTelegramID(r.Context(), telegramID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to get user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleDeleteUser removes the caller's account together with the devices
// it owns and every share involving it.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.selfOnly(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	owned, err := s.devices.ListByOwner(ctx, userID)
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("deleting user", "user_id", userID, "error", err)
		writeInternalError(w, "failed to delete user")
		return
	}
	// Owned devices went with the user row.
	for _, dev := range owned {
		s.devices.Invalidate(dev.ID, dev.SerialNumber)
	}

	s.record(r, audit.AuditLog{
		Action:     audit.ActionDelete,
		EntityType: audit.EntityUser,
		EntityID:   userID,
		UserID:     userID,
		Details:    map[string]any{"devices_removed": len(owned)},
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleListUserDevices returns the devices the caller owns.
func (s *Server) handleListUserDevices(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.selfOnly(w, r)
	if !ok {
		return
	}
	devices, err := s.devices.ListByOwner(r.Context(), userID)
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleListSharedWithUser returns the devices other users shared with the caller.
func (s *Server) handleListSharedWithUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.selfOnly(w, r)
	if !ok {
		return
	}
	shared, err := s.shares.ListForUser(r.Context(), userID)
	if err != nil {
		writeInternalError(w, "failed to list shared devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": shared, "count": len(shared)})
}

// selfOnly reads {user_id} and rejects requests about anyone but the caller.
func (s *Server) selfOnly(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := chi.URLParam(r, "user_id")
	if userID == "" || userID != callerID(r) {
		writeForbidden(w, "can only access your own account")
		return "", false
	}
	return userID, true
}
