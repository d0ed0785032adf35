package firmware

import "errors"

var (
	// ErrDisabled means firmware tracking is switched off in configuration.
	ErrDisabled = errors.New("firmware: disabled in configuration")

	// ErrNoRelease means no firmware has been published or fetched yet.
	ErrNoRelease = errors.New("firmware: no release available")

	// ErrFetchFailed wraps any failure reading the downloads listing.
	ErrFetchFailed = errors.New("firmware: fetching downloads failed")

	// ErrSignatureMissing means the webhook carried no X-Hub-Signature.
	ErrSignatureMissing = errors.New("firmware: signature header missing")

	// ErrSignatureInvalid means the webhook signature does not match the secret.
	ErrSignatureInvalid = errors.New("firmware: signature mismatch")

	// ErrInvalidPayload means the webhook body is not a build status event.
	ErrInvalidPayload = errors.New("firmware: invalid webhook payload")
)
