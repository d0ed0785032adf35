package auth

import "errors"

var (
	// ErrInitDataMissing means the login request carried no initData.
	ErrInitDataMissing = errors.New("auth: init data is empty")

	// ErrInitDataInvalid means initData could not be parsed, or lacked its
	// hash or auth_date.
	ErrInitDataInvalid = errors.New("auth: init data is malformed")

	// ErrInitDataHash means initData was not signed for this bot.
	ErrInitDataHash = errors.New("auth: init data hash mismatch")

	// ErrInitDataExpired means auth_date is older than the allowed age.
	ErrInitDataExpired = errors.New("auth: init data is too old")

	// ErrInitDataNoUser means initData is valid but names no user.
	ErrInitDataNoUser = errors.New("auth: init data carries no user")

	// ErrTokenInvalid covers any session token that fails to parse or verify.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrMissingSecret means no JWT signing secret is configured.
	ErrMissingSecret = errors.New("auth: signing secret is empty")

	// ErrMissingBotToken means no bot token is configured to check initData.
	ErrMissingBotToken = errors.New("auth: bot token is empty")
)
