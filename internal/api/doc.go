// Package api implements the HTTP API behind the Telegram Mini App.
//
// This package provides:
//   - Telegram initData login that issues a session JWT
//   - user, device and sharing endpoints
//   - device commands, relayed to devices over MQTT by the command service
//   - the firmware webhook and latest-release lookup
//   - middleware (request ID, logging, recovery, CORS, body limit, auth)
//
// # Command results
//
// Device commands map their outcome onto the HTTP status: a device refusal
// is 400 with the device's message, no answer in time is 504, a broker
// outage is 503, a request replaced by a newer one is 409 and a client that
// hung up is 499. Timeouts and broker outages are worth retrying; the
// others are not.
//
// # Access
//
// Every route except health, login and the firmware webhook requires a
// Bearer token. A user may act on devices they own, and on devices shared
// with them at the required access level.
package api
