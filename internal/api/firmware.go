package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/tgpanel/core/internal/firmware"
)

// handleFirmwareWebhook receives pipeline notifications. It is not behind
// authMiddleware; the body signature authenticates it.
func (s *Server) handleFirmwareWebhook(w http.ResponseWriter, r *http.Request) {
	if s.firmware == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotConfigured, "firmware tracking is not configured")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read body")
		return
	}

	res, err := s.firmware.HandleWebhook(r.Context(), body, r.Header.Get(firmware.SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, firmware.ErrSignatureMissing), errors.Is(err, firmware.ErrSignatureInvalid):
			s.logger.Warn("firmware webhook rejected", "error", err, "remote", r.RemoteAddr)
			writeUnauthorized(w, "invalid signature")
		case errors.Is(err, firmware.ErrInvalidPayload):
			writeBadRequest(w, "invalid webhook payload")
		case errors.Is(err, firmware.ErrNoRelease):
			writeNotFound(w, "no firmware release available")
		default:
			writeError(w, http.StatusBadGateway, ErrCodeInternal, "failed to refresh firmware")
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleLatestFirmware returns the latest known firmware release.
func (s *Server) handleLatestFirmware(w http.ResponseWriter, _ *http.Request) {
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
	writeJSON(w, http.StatusOK, rel)
}
