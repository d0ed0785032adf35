// Package mqtt is tgpanel's transport adapter over the MQTT broker.
//
// Devices own a topic namespace rooted at their serial number. The core
// publishes requests to {serial}/{operation}/req and devices answer on
// {serial}/{operation}/res.
//
// The adapter:
//   - installs a single dispatch point as paho's default publish handler
//     and fans each message out to every handler whose pattern matches
//   - counts handlers per pattern, subscribing at the broker on the first
//     and unsubscribing when the last one leaves
//   - reconnects with exponential backoff and restores subscriptions
//   - publishes online/offline state and an LWT on tgpanel/system/status
//   - fails publishes fast with ErrNotConnected while offline
//
// Handlers run on paho goroutines with ordering disabled, so they may
// block on broker acknowledgements and may unsubscribe themselves.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sub, err := client.Subscribe(mqtt.Topics{}.Response(serial, mqtt.OpStatus), 1, handler)
package mqtt
