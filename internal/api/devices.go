package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tgpanel/core/internal/audit"
	"github.com/tgpanel/core/internal/command"
	"github.com/tgpanel/core/internal/device"
	"github.com/tgpanel/core/internal/firmware"
	"github.com/tgpanel/core/internal/user"
)

// maxStatusTimeout caps the timeout_ms a client may ask for on /status.
const maxStatusTimeout = 30 * time.Second

type pairRequest struct {
	SerialNumber string `json:"serial_number"`
	Name         string `json:"name"`
}

type renameRequest struct {
	Name string `json:"name"`
}

type startRequest struct {
	Speed int `json:"speed"`
}

type valueRequest struct {
	Value any `json:"value"`
}

type updateRequest struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

// commandAccepted is the body of a fire-and-forget command response.
type commandAccepted struct {
	DeviceID  string `json:"device_id"`
	Operation string `json:"operation"`
	Outcome   string `json:"outcome"`
}

// handlePairDevice pairs a device to the caller. It blocks until the
// device accepts or refuses, or the pair timeout passes.
func (s *Server) handlePairDevice(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.commands.Pair(r.Context(), req.SerialNumber, req.Name, callerID(r))
	entry := audit.AuditLog{
		Action:     audit.ActionPair,
		EntityType: audit.EntityDevice,
		UserID:     callerID(r),
		Details:    map[string]any{"serial_number": req.SerialNumber},
	}
	if res != nil {
		entry.EntityID = res.Device.ID
	}
	s.recordCommand(r, entry, err)

	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleUnpairDevice tells the device to forget its pairing and deletes
// the record. The record is kept when the device could not be told, so
// the call can be retried.
func (s *Server) handleUnpairDevice(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial_number")
	ctx := r.Context()

	dev, err := s.devices.LookupBySerial(ctx, serial)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) || errors.Is(err, device.ErrInvalidSerial) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to look up device")
		return
	}
	if dev.OwnerID != callerID(r) {
		writeForbidden(w, "only the owner can unpair a device")
		return
	}

	_, err = s.commands.Unpair(ctx, serial)
	s.recordCommand(r, audit.AuditLog{
		Action:     audit.ActionUnpair,
		EntityType: audit.EntityDevice,
		EntityID:   dev.ID,
		UserID:     callerID(r),
		Details:    map[string]any{"serial_number": serial},
	}, err)
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}

	if err := s.devices.RemoveBySerial(ctx, serial); err != nil && !errors.Is(err, device.ErrDeviceNotFound) {
		s.logger.Error("removing unpaired device", "serial", serial, "error", err)
		writeInternalError(w, "device unpaired but record not removed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device": dev, "outcome": command.OutcomeSuccess})
}

// handleRenameDevice changes a device's display name. Owner only; nothing
// is sent to the device.
func (s *Server) handleRenameDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, err := s.devices.LookupByID(ctx, id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to look up device")
		return
	}
	if dev.OwnerID != callerID(r) {
		writeForbidden(w, "only the owner can rename a device")
		return
	}

	renamed, err := s.devices.Rename(ctx, id, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrInvalidName):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		case errors.Is(err, device.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		default:
			writeInternalError(w, "failed to rename device")
		}
		return
	}

	s.record(r, audit.AuditLog{
		Action:     audit.ActionRename,
		EntityType: audit.EntityDevice,
		EntityID:   id,
		UserID:     callerID(r),
		Details:    map[string]any{"from": dev.Name, "to": renamed.Name},
	})
	writeJSON(w, http.StatusOK, renamed)
}

// handleStart starts a device in {mode}.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.authorize(w, r, user.AccessControl)
	if !ok {
		return
	}
	var req startRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	mode := chi.URLParam(r, "mode")
	err := s.commands.Start(r.Context(), dev.ID, mode, req.Speed)
	s.finishCommand(w, r, dev, "start/"+mode, map[string]any{"speed": req.Speed}, err)
}

// handleStop stops a device.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.authorize(w, r, user.AccessControl)
	if !ok {
		return
	}
	err := s.commands.Stop(r.Context(), dev.ID)
	s.finishCommand(w, r, dev, "stop", nil, err)
}

// handleSetSetting writes one device setting.
func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.authorize(w, r, user.AccessControl)
	if !ok {
		return
	}
	var req valueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	setting := chi.URLParam(r, "setting")
	err := s.commands.SetSetting(r.Context(), dev.ID, setting, req.Value)
	s.finishCommand(w, r, dev, "set/"+setting, map[string]any{"value": req.Value}, err)
}

// handleSendCommand sends a directional command.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.authorize(w, r, user.AccessControl)
	if !ok {
		return
	}
	var req valueRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	direction := chi.URLParam(r, "direction")
	err := s.commands.SendCommand(r.Context(), dev.ID, direction, req.Value)
	s.finishCommand(w, r, dev, "cmd/"+direction, nil, err)
}

// handleRequestUpdate tells a device to install firmware. Without a body
// the latest known release is sent.
func (s *Server) handleRequestUpdate(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.authorize(w, r, user.AccessControl)
	if !ok {
		return
	}
	var req updateRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	img := command.UpdateImage{Version: req.Version, URL: req.URL}
	if img.Version == "" && img.URL == "" {
		if s.firmware == nil {
			writeError(w, http.StatusServiceUnavailable, ErrCodeNotConfigured, "firmware tracking is not configured")
			return
		}
		rel, err := s.firmware.Latest()
		if err != nil {
			if errors.Is(err, firmware.ErrNoRelease) {
				writeNotFound(w, "no firmware release available")
				return
			}
			writeInternalError(w, "failed to read latest firmware")
			return
		}
		img = command.UpdateImage{Version: rel.Version, URL: rel.DownloadURL}
	}

	err := s.commands.RequestUpdate(r.Context(), dev.ID, img)
	s.recordCommand(r, audit.AuditLog{
		Action:     audit.ActionUpdate,
		EntityType: audit.EntityDevice,
		EntityID:   dev.ID,
		UserID:     callerID(r),
		Details:    map[string]any{"version": img.Version},
	}, err)
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"device_id": dev.ID,
		"operation": "cmd/update",
		"outcome":   command.OutcomeSuccess,
		"version":   img.Version,
	})
}

// handleQueryStatus asks a device for its state.
//
// Query parameters:
//   - timeout_ms: how long to wait for the device (default from config, max 30s)
func (s *Server) handleQueryStatus(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.authorize(w, r, user.AccessView)
	if !ok {
		return
	}

	var timeout time.Duration
	if v := r.URL.Query().Get("timeout_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			writeBadRequest(w, "timeout_ms must be a positive integer")
			return
		}
		timeout = min(time.Duration(ms)*time.Millisecond, maxStatusTimeout)
	}

	report, err := s.commands.QueryStatus(r.Context(), dev.ID, timeout)
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// authorize resolves {id} and checks the caller may act on it at level want.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, want user.AccessLevel) (*device.Device, bool) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	dev, err := s.devices.LookupByID(ctx, id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return nil, false
		}
		writeInternalError(w, "failed to look up device")
		return nil, false
	}

	caller := callerID(r)
	if dev.OwnerID == caller {
		return dev, true
	}
	allowed, err := s.shares.HasAccess(ctx, caller, dev.ID, want)
	if err != nil {
		writeInternalError(w, "failed to check access")
		return nil, false
	}
	if !allowed {
		writeForbidden(w, "no "+string(want)+" access to this device")
		return nil, false
	}
	return dev, true
}

// finishCommand audits a fire-and-forget command and writes its response.
func (s *Server) finishCommand(w http.ResponseWriter, r *http.Request, dev *device.Device, op string, details map[string]any, err error) {
	if details == nil {
		details = map[string]any{}
	}
	details["operation"] = op
	s.recordCommand(r, audit.AuditLog{
		Action:     audit.ActionCommand,
		EntityType: audit.EntityDevice,
		EntityID:   dev.ID,
		UserID:     callerID(r),
		Details:    details,
	}, err)

	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, commandAccepted{
		DeviceID:  dev.ID,
		Operation: op,
		Outcome:   string(command.OutcomeSuccess),
	})
}
