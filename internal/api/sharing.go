package api

import (
	"errors"
	"net/http"

	"github.com/tgpanel/core/internal/audit"
	"github.com/tgpanel/core/internal/device"
	"github.com/tgpanel/core/internal/user"
)

type shareRequest struct {
	DeviceID    string           `json:"device_id"`
	UserID      string           `json:"user_id"`
	TelegramID  int64            `json:"telegram_id"`
	AccessLevel user.AccessLevel `json:"access_level"`
}

type revokeRequest struct {
	DeviceID string `json:"device_id"`
	UserID   string `json:"user_id"`
}

// handleShareDevice grants another user access to one of the caller's
// devices. The recipient is named by user_id or telegram_id.
func (s *Server) handleShareDevice(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	ctx := r.Context()

	recipient := req.UserID
	if recipient == "" && req.TelegramID > 0 {
		u, err := s.users.GetByTelegramID(ctx, req.TelegramID)
		if err != nil {
			if errors.Is(err, user.ErrUserNotFound) {
				writeNotFound(w, "recipient has not opened the app yet")
				return
			}
			writeInternalError(w, "failed to look up recipient")
			return
		}
		recipient = u.ID
	}

	share := &user.Share{
		OwnerID:     callerID(r),
		UserID:      recipient,
		DeviceID:    req.DeviceID,
		AccessLevel: req.AccessLevel,
	}
	if err := s.shares.Share(ctx, share); err != nil {
		switch {
		case errors.Is(err, user.ErrNotOwner):
			writeForbidden(w, "only the owner can share a device")
		case errors.Is(err, user.ErrInvalidShare):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			s.logger.Error("sharing device", "device_id", req.DeviceID, "error", err)
			writeInternalError(w, "failed to share device")
		}
		return
	}

	s.record(r, audit.AuditLog{
		Action:     audit.ActionShare,
		EntityType: audit.EntityDevice,
		EntityID:   share.DeviceID,
		UserID:     share.OwnerID,
		Details:    map[string]any{"recipient": share.UserID, "access_level": share.AccessLevel},
	})
	writeJSON(w, http.StatusCreated, share)
}

// handleRevokeShare withdraws a share from one of the caller's devices.
func (s *Server) handleRevokeShare(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "device_id and user_id are required")
		return
	}
	if _, ok := s.ownDevice(w, r, req.DeviceID); !ok {
		return
	}

	if err := s.shares.Revoke(r.Context(), req.UserID, req.DeviceID); err != nil {
		if errors.Is(err, user.ErrShareNotFound) {
			writeNotFound(w, "share not found")
			return
		}
		writeInternalError(w, "failed to revoke share")
		return
	}

	s.record(r, audit.AuditLog{
		Action:     audit.ActionRevoke,
		EntityType: audit.EntityDevice,
		EntityID:   req.DeviceID,
		UserID:     callerID(r),
		Details:    map[string]any{"recipient": req.UserID},
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "revoked"})
}

// handleListDeviceShares lists who a device is shared with.
//
// Query parameters:
//   - device_id: the device, which the caller must own (required)
func (s *Server) handleListDeviceShares(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeBadRequest(w, "device_id is required")
		return
	}
	if _, ok := s.ownDevice(w, r, deviceID); !ok {
		return
	}

	shares, err := s.shares.ListForDevice(r.Context(), deviceID)
	if err != nil {
		writeInternalError(w, "failed to list shares")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shares": shares, "count": len(shares)})
}

// ownDevice resolves a device the caller must own.
func (s *Server) ownDevice(w http.ResponseWriter, r *http.Request, id string) (*device.Device, bool) {
	dev, err := s.devices.LookupByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return nil, false
		}
		writeInternalError(w, "failed to look up device")
		return nil, false
	}
	if dev.OwnerID != callerID(r) {
		writeForbidden(w, "only the owner can manage sharing")
		return nil, false
	}
	return dev, true
}
