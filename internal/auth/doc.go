// Package auth authenticates Mini App users.
//
// A user proves who they are by presenting the initData string Telegram
// hands to the WebApp. ValidateInitData checks its HMAC against the bot
// token and its age, then the API issues a short-lived HS256 session
// token (GenerateAccessToken) whose subject is the internal user ID.
// Session tokens are validated by signature only; there is no server-side
// session store.
package auth
