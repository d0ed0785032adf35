package mqtt

import "strings"

// TopicPrefixSystem is the base for tgpanel's own topics.
const TopicPrefixSystem = "tgpanel/system"

// Device topics are rooted at the device serial:
//
//	{serial}/{operation...}/req   core -> device
//	{serial}/{operation...}/res   device -> core
const (
	requestSuffix  = "req"
	responseSuffix = "res"
)

// Device operations. Parameterised operations (start, set, cmd) take an
// extra level built with Operation.
const (
	OpPair   = "pair"
	OpUnpair = "unpair"
	OpStart  = "start"
	OpStop   = "stop"
	OpSet    = "set"
	OpCmd    = "cmd"
	OpStatus = "status"
	OpUpdate = "cmd/update"
)

// Topics builds tgpanel MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Request("ABC123", mqtt.OpPair)   // "ABC123/pair/req"
//	topics.Response("ABC123", mqtt.OpPair)  // "ABC123/pair/res"
type Topics struct{}

// SystemStatus is where the core publishes online/offline state and its LWT.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// Request returns the request topic for operation op on device serial.
func (Topics) Request(serial, op string) string {
	return serial + "/" + op + "/" + requestSuffix
}

// Response returns the response topic for operation op on device serial.
func (Topics) Response(serial, op string) string {
	return serial + "/" + op + "/" + responseSuffix
}

// AllResponses matches every response a device can send.
func (Topics) AllResponses(serial string) string {
	return serial + "/+/" + responseSuffix
}

// DeviceAll matches every topic under a device.
func (Topics) DeviceAll(serial string) string {
	return serial + "/" + multiLevel
}

// Operation joins an operation with its parameters: Operation("start", "eco")
// is "start/eco".
func Operation(op string, params ...string) string {
	if len(params) == 0 {
		return op
	}
	return op + "/" + strings.Join(params, "/")
}
