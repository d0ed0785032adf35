// Package webapp serves the Telegram Mini App front end.
//
// The build is embedded with go:embed so the binary has no runtime file
// dependency. A directory on disk can be served instead while iterating on
// the front end. Unknown paths fall back to index.html so that client-side
// routes survive a reload inside the Telegram WebView.
package webapp
