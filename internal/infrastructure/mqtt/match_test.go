package mqtt

import (
	"errors"
	"strings"
	"testing"
)

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		topic   string
		pattern string
		want    bool
	}{
		// exact
		{"ABC123/pair/res", "ABC123/pair/res", true},
		{"ABC123/pair/res", "ABC123/pair/req", false},
		{"abc123/pair/res", "ABC123/pair/res", false},

		// single level
		{"ABC123/pair/res", "+/pair/res", true},
		{"ABC123/pair/res", "ABC123/+/res", true},
		{"ABC123/start/eco/req", "ABC123/+/req", false},
		{"ABC123/start/eco/req", "ABC123/+/+/req", true},
		{"a//c", "a/+/c", true},
		{"a/b", "a/+/+", false},
		{"/x", "+/x", true},

		// multi level
		{"ABC123/pair/res", "ABC123/#", true},
		{"ABC123/start/eco/req", "ABC123/#", true},
		{"ABC123", "ABC123/#", true},
		{"ABC1234/pair/res", "ABC123/#", false},
		{"anything/at/all", "#", true},
		{"a/b/c", "a/+/#", true},
		{"a", "a/+/#", false},

		// length mismatch
		{"a/b/c", "a/b", false},
		{"a/b", "a/b/c", false},

		// reserved topics
		{"$SYS/broker/uptime", "#", false},
		{"$SYS/broker/uptime", "+/broker/uptime", false},
		{"$SYS/broker/uptime", "$SYS/#", true},

		// degenerate
		{"", "#", false},
		{"a", "", false},
	}

	for _, tt := range tests {
		if got := MatchTopic(tt.topic, tt.pattern); got != tt.want {
			t.Errorf("MatchTopic(%q, %q) = %v, want %v", tt.topic, tt.pattern, got, tt.want)
		}
	}
}

func TestValidatePattern(t *testing.T) {
	valid := []string{"a/b", "+/pair/res", "ABC123/#", "#", "+", "a/+/c/#", "a//b"}
	for _, p := range valid {
		if err := ValidatePattern(p); err != nil {
			t.Errorf("ValidatePattern(%q) = %v, want nil", p, err)
		}
	}

	invalid := []string{"a/#/b", "a/b#", "a+/b", "a/+b", "#/a", "a/\x00"}
	for _, p := range invalid {
		if err := ValidatePattern(p); !errors.Is(err, ErrInvalidPattern) {
			t.Errorf("ValidatePattern(%q) = %v, want ErrInvalidPattern", p, err)
		}
	}

	if err := ValidatePattern(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("ValidatePattern(\"\") = %v, want ErrInvalidTopic", err)
	}
}

func TestValidateTopicName(t *testing.T) {
	if err := ValidateTopicName("ABC123/pair/req"); err != nil {
		t.Errorf("valid topic rejected: %v", err)
	}
	for _, topic := range []string{"a/+/b", "a/#", "a\x00"} {
		if err := ValidateTopicName(topic); !errors.Is(err, ErrInvalidTopicName) {
			t.Errorf("ValidateTopicName(%q) = %v, want ErrInvalidTopicName", topic, err)
		}
	}
	if err := ValidateTopicName(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("ValidateTopicName(\"\") = %v, want ErrInvalidTopic", err)
	}
}

func TestValidateSerial(t *testing.T) {
	for _, s := range []string{"ABC123", "dev-01", "x.y_z"} {
		if err := ValidateSerial(s); err != nil {
			t.Errorf("ValidateSerial(%q) = %v", s, err)
		}
	}
	for _, s := range []string{"", "a/b", "+", "#", "AB#1", "a\x00"} {
		if err := ValidateSerial(s); !errors.Is(err, ErrInvalidSerial) {
			t.Errorf("ValidateSerial(%q) = %v, want ErrInvalidSerial", s, err)
		}
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"SystemStatus", topics.SystemStatus(), "tgpanel/system/status"},
		{"Request pair", topics.Request("ABC123", OpPair), "ABC123/pair/req"},
		{"Response pair", topics.Response("ABC123", OpPair), "ABC123/pair/res"},
		{"Request start", topics.Request("ABC123", Operation(OpStart, "eco")), "ABC123/start/eco/req"},
		{"Request update", topics.Request("ABC123", OpUpdate), "ABC123/cmd/update/req"},
		{"AllResponses", topics.AllResponses("ABC123"), "ABC123/+/res"},
		{"DeviceAll", topics.DeviceAll("ABC123"), "ABC123/#"},
		{"Operation bare", Operation(OpStop), "stop"},
		{"Operation multi", Operation(OpSet, "speed", "max"), "set/speed/max"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}

	if !MatchTopic(topics.Response("ABC123", OpStatus), topics.AllResponses("ABC123")) {
		t.Error("AllResponses does not match a response topic")
	}
}

func TestAssurance(t *testing.T) {
	if AtMostOnce.QoS() != 0 || AtLeastOnce.QoS() != 1 || ExactlyOnce.QoS() != 2 {
		t.Error("assurance levels do not map to QoS 0/1/2")
	}
	if ExactlyOnce.String() != "exactly_once" {
		t.Errorf("ExactlyOnce.String() = %q", ExactlyOnce.String())
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("tgpanel-core")
	offline := buildOfflinePayload("tgpanel-core")

	for _, want := range []string{`"status":"online"`, `"client_id":"tgpanel-core"`} {
		if !strings.Contains(online, want) {
			t.Errorf("online payload %s missing %s", online, want)
		}
	}
	if !strings.Contains(offline, `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload %s missing reason", offline)
	}
}
