package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tgpanel/core/internal/webapp"
)

// healthCheckTimeout bounds each component check on /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Mini App front end
	r.Handle("/app/*", http.StripPrefix("/app", webapp.Handler(s.webAppDir)))
	r.Handle("/app", http.RedirectHandler("/app/", http.StatusMovedPermanently))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/telegram", s.handleTelegramLogin)
		r.Post("/firmware/webhook", s.handleFirmwareWebhook)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/users", func(r chi.Router) {
				r.Post("/", s.handleCreateUser)
				r.Get("/{telegram_id}", s.handleGetUser)
				r.Delete("/{user_id}", s.handleDeleteUser)
				r.Get("/{user_id}/devices", s.handleListUserDevices)
				r.Get("/{user_id}/shared", s.handleListSharedWithUser)
			})

			r.Route("/devices", func(r chi.Router) {
				r.Post("/", s.handlePairDevice)
				r.Post("/share", s.handleShareDevice)
				r.Post("/revoke", s.handleRevokeShare)
				r.Get("/shared", s.handleListDeviceShares)
				r.Delete("/{serial_number}", s.handleUnpairDevice)
				r.Patch("/{id}", s.handleRenameDevice)

				r.Post("/{id}/start/{mode}", s.handleStart)
				r.Post("/{id}/stop", s.handleStop)
				r.Post("/{id}/set/{setting}", s.handleSetSetting)
				r.Post("/{id}/cmd/{direction}", s.handleSendCommand)
				r.Post("/{id}/update", s.handleRequestUpdate)
				r.Get("/{id}/status", s.handleQueryStatus)
			})

			r.Get("/audit", s.handleListAuditLogs)
			r.Get("/firmware/latest", s.handleLatestFirmware)
		})
	})

	return r
}

// handleHealth reports the server version and the state of each checked
// component. Any failing component makes the response 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(s.health))
	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.health[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	body := map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	}
	if s.requests != nil {
		st := s.requests.Stats()
		body["requests"] = map[string]any{
			"pending":    st.Pending,
			"completed":  st.Completed,
			"timed_out":  st.TimedOut,
			"superseded": st.Superseded,
			"cancelled":  st.Cancelled,
			"malformed":  st.Malformed,
		}
	}
	writeJSON(w, code, body)
}
