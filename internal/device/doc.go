// Package device stores paired devices and resolves them for the command
// layer.
//
// A device is known by two identifiers. ID is the internal key used by the
// API and never sent to the device. SerialNumber is the root of the
// device's MQTT topic namespace and cannot change once paired.
//
// Directory fronts the SQLite repository with LRU caches keyed by both
// identifiers and is what the command service uses for lookups and to
// persist successful pairings.
package device
