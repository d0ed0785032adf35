// Package firmware tracks the newest device firmware published to the
// Bitbucket downloads area of the device repository.
//
// The build pipeline calls the webhook when it finishes. A successful run
// triggers a fetch of the downloads list; the newest file becomes the
// cached latest release, which the API hands to devices through
// command.Service.RequestUpdate. Webhook bodies are authenticated with an
// X-Hub-Signature HMAC.
package firmware
