// Package user stores panel users and the devices shared between them.
//
// Users are Telegram accounts: the internal ID (usr-xxxxxxxx) is what the
// rest of the system references, the Telegram ID is how a user is found
// when they open the Mini App. A device owner may share a device with
// another user at view or control level; owners always have full access.
package user
