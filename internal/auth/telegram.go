package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	initdata "github.com/telegram-mini-apps/init-data-golang"
)

// TelegramUser is the user object Telegram embeds in initData.
type TelegramUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
}

// DisplayName is the name shown for a user in the panel.
func (u TelegramUser) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	if name == "" {
		name = "user " + strconv.FormatInt(u.ID, 10)
	}
	return name
}

// InitData is a verified WebApp launch payload.
type InitData struct {
	User       TelegramUser
	AuthDate   time.Time
	QueryID    string
	StartParam string
}

// ValidateInitData verifies a raw initData query string signed for
// botToken. A positive maxAge rejects payloads whose auth_date is older.
func ValidateInitData(raw, botToken string, maxAge time.Duration) (*InitData, error) {
	if botToken == "" {
		return nil, ErrMissingBotToken
	}
	if strings.TrimSpace(raw) == "" {
		return nil, ErrInitDataMissing
	}

	if err := initdata.Validate(raw, botToken, maxAge); err != nil {
		switch {
		case errors.Is(err, initdata.ErrExpired):
			return nil, fmt.Errorf("%w: %w", ErrInitDataExpired, err)
		case errors.Is(err, initdata.ErrSignInvalid):
			return nil, ErrInitDataHash
		default:
			return nil, fmt.Errorf("%w: %w", ErrInitDataInvalid, err)
		}
	}

	data, err := initdata.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitDataInvalid, err)
	}
	if data.User.ID <= 0 {
		return nil, ErrInitDataNoUser
	}

	return &InitData{
		User: TelegramUser{
			ID:           data.User.ID,
			FirstName:    data.User.FirstName,
			LastName:     data.User.LastName,
			Username:     data.User.Username,
			LanguageCode: data.User.LanguageCode,
			IsPremium:    data.User.IsPremium,
		},
		AuthDate:   data.AuthDate().UTC(),
		QueryID:    data.QueryID,
		StartParam: data.StartParam,
	}, nil
}

// SignInitData builds a signed initData string. Used by tests and local
// tooling that stands in for Telegram. A missing auth_date is set to now.
func SignInitData(values url.Values, botToken string) string {
	authDate := time.Now()
	if unix, err := strconv.ParseInt(values.Get("auth_date"), 10, 64); err == nil {
		authDate = time.Unix(unix, 0)
	}

	payload := make(map[string]string, len(values))
	out := url.Values{}
	for k := range values {
		if k == "hash" || k == "auth_date" {
			continue
		}
		payload[k] = values.Get(k)
		out.Set(k, values.Get(k))
	}
	out.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	out.Set("hash", initdata.Sign(payload, botToken, authDate))
	return out.Encode()
}
