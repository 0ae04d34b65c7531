package mqtt

import (
	"encoding/json"
	"testing"
)

func TestTopics(t *testing.T) {
	var topics Topics

	cases := []struct {
		got  string
		want string
	}{
		{topics.SystemStatus(), "crowlink/system/status"},
		{topics.PanelEvents("000f12345678"), "crowlink/panels/000f12345678/events"},
		{topics.PanelAreas("000f12345678"), "crowlink/panels/000f12345678/areas"},
		{topics.PanelCommand("000f12345678"), "crowlink/panels/000f12345678/command"},
		{topics.AllPanelCommands(), "crowlink/panels/+/command"},
	}

	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("topic = %q, want %q", tc.got, tc.want)
		}
	}
}

func TestStatusPayload(t *testing.T) {
	payload := statusPayload("crowlink-abc123", "offline", "graceful_shutdown")

	var decoded map[string]any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("status payload is not valid JSON: %v", err)
	}
	if decoded["status"] != "offline" {
		t.Errorf("status = %v, want offline", decoded["status"])
	}
	if decoded["client_id"] != "crowlink-abc123" {
		t.Errorf("client_id = %v, want crowlink-abc123", decoded["client_id"])
	}
	if decoded["reason"] != "graceful_shutdown" {
		t.Errorf("reason = %v, want graceful_shutdown", decoded["reason"])
	}
}
