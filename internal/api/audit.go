package api

import (
	"net/http"
	"strconv"

	"github.com/tgpanel/core/internal/audit"
	"github.com/tgpanel/core/internal/command"
)

// record writes an audit entry if auditing is configured.
func (s *Server) record(r *http.Request, entry audit.AuditLog) {
	if s.audit == nil {
		return
	}
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	if id, ok := r.Context().Value(ctxKeyRequestID).(string); ok {
		entry.Details["request_id"] = id
	}
	s.audit.Record(r.Context(), entry)
}

// recordCommand writes an audit entry carrying a command's outcome.
func (s *Server) recordCommand(r *http.Request, entry audit.AuditLog, err error) {
	entry.Outcome = string(command.OutcomeOf(err))
	if err != nil {
		if entry.Details == nil {
			entry.Details = map[string]any{}
		}
		entry.Details["error"] = err.Error()
	}
	s.record(r, entry)
}

// handleListAuditLogs returns the caller's audit entries, newest first.
//
// Query parameters:
//   - action: filter by action (pair, unpair, command, update, share, ...)
//   - entity_type: filter by entity type (device, user)
//   - entity_id: filter by specific entity ID
//   - outcome: filter by command outcome (success, timeout, ...)
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotConfigured, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Outcome:    q.Get("outcome"),
		UserID:     callerID(r),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
