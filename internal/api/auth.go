package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/tgpanel/core/internal/audit"
	"github.com/tgpanel/core/internal/auth"
	"github.com/tgpanel/core/internal/user"
)

// defaultTokenTTL is used when security.jwt.access_token_ttl is unset (minutes).
const defaultTokenTTL = 60

// telegramLoginRequest is the request body for POST /auth/telegram.
type telegramLoginRequest struct {
	InitData string `json:"init_data"`
}

// loginResponse is the response body for POST /auth/telegram.
type loginResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	ExpiresIn   int        `json:"expires_in"`
	User        *user.User `json:"user"`
}

// handleTelegramLogin verifies Mini App initData, registers the Telegram
// account on first sight and returns a session token.
func (s *Server) handleTelegramLogin(w http.ResponseWriter, r *http.Request) {
	var req telegramLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	data, err := auth.ValidateInitData(req.InitData, s.secCfg.Telegram.BotToken, s.secCfg.Telegram.InitDataMaxAge)
	if err != nil {
		if errors.Is(err, auth.ErrMissingBotToken) {
			s.logger.Error("telegram login attempted without a bot token configured")
			writeInternalError(w, "telegram login not configured")
			return
		}
		writeUnauthorized(w, "invalid init data")
		return
	}

	u, created, err := s.ensureUser(r.Context(), data.User)
	if err != nil {
		s.logger.Error("resolving telegram user", "telegram_id", data.User.ID, "error", err)
		writeInternalError(w, "failed to resolve user")
		return
	}

	ttl := s.secCfg.JWT.AccessTokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	token, err := auth.GenerateAccessToken(u.ID, u.TelegramID, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		writeInternalError(w, "failed to generate token")
		return
	}

	s.record(r, audit.AuditLog{
		Action:     audit.ActionLogin,
		EntityType: audit.EntityUser,
		EntityID:   u.ID,
		UserID:     u.ID,
		Details:    map[string]any{"registered": created},
	})

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   ttl * 60,
		User:        u,
	})
}

// ensureUser returns the user for a Telegram account, creating it if needed.
func (s *Server) ensureUser(ctx context.Context, tg auth.TelegramUser) (*user.User, bool, error) {
	u, err := s.users.GetByTelegramID(ctx, tg.ID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, user.ErrUserNotFound) {
		return nil, false, err
	}

	u = &user.User{TelegramID: tg.ID, Name: tg.DisplayName()}
	if err := s.users.Create(ctx, u); err != nil {
		// Lost a race with a concurrent first login.
		if errors.Is(err, user.ErrUserExists) {
			u, err = s.users.GetByTelegramID(ctx, tg.ID)
			return u, false, err
		}
		return nil, false, err
	}
	return u, true, nil
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
