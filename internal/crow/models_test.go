package crow

import "testing"

// TestAreaStateFromAPI verifies state mapping and the disarmed default.
func TestAreaStateFromAPI(t *testing.T) {
	cases := []struct {
		input string
		want  AreaState
	}{
		{"armed", AreaArmed},
		{"ARMED", AreaArmed},
		{"stay_armed", AreaStayArmed},
		{"arm in progress", AreaArmInProgress},
		{"triggered", AreaTriggered},
		{"disarmed", AreaDisarmed},
		{"gibberish", AreaDisarmed},
		{"", AreaDisarmed},
	}

	for _, tc := range cases {
		if got := areaStateFromAPI(tc.input); got != tc.want {
			t.Errorf("areaStateFromAPI(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

// TestAreaFromAPIAliases verifies tolerant field decoding across
// firmware variants.
func TestAreaFromAPIAliases(t *testing.T) {
	area := areaFromAPI(map[string]any{
		"area_id": float64(2),
		"status":  "armed",
	})
	if area.ID != "2" {
		t.Errorf("ID = %q, want 2", area.ID)
	}
	if area.State != AreaArmed {
		t.Errorf("State = %q, want armed", area.State)
	}
	if area.Name != "Area 2" {
		t.Errorf("Name = %q, want the generated default", area.Name)
	}
	if !area.IsArmed() {
		t.Error("IsArmed() = false for an armed area")
	}
}

// TestZoneFromAPI verifies alias decoding, the nested _id form, and
// the -1 convention for unreported values.
func TestZoneFromAPI(t *testing.T) {
	zone := zoneFromAPI(map[string]any{
		"_id":          map[string]any{"device_id": float64(7)},
		"name":         "Front Door",
		"status":       "open",
		"batteryLevel": float64(15),
		"bypass":       true,
	})

	if zone.ID != "7" {
		t.Errorf("ID = %q, want 7 (from nested _id)", zone.ID)
	}
	if zone.Name != "Front Door" {
		t.Errorf("Name = %q, want Front Door", zone.Name)
	}
	if !zone.IsOpen() {
		t.Error("IsOpen() = false for an open zone")
	}
	if !zone.Bypassed {
		t.Error("Bypassed = false, want true (bypass alias)")
	}
	if zone.Battery != 15 {
		t.Errorf("Battery = %d, want 15", zone.Battery)
	}
	if !zone.HasLowBattery() {
		t.Error("HasLowBattery() = false at 15%")
	}

	// Unreported battery and signal stay at -1 and never read as low.
	bare := zoneFromAPI(map[string]any{"id": "3"})
	if bare.Battery != -1 || bare.SignalStrength != -1 {
		t.Errorf("unreported battery/signal = %d/%d, want -1/-1", bare.Battery, bare.SignalStrength)
	}
	if bare.HasLowBattery() {
		t.Error("HasLowBattery() = true with no battery reading")
	}
	if bare.State != "ok" {
		t.Errorf("State = %q, want the ok default", bare.State)
	}
}

// TestMeasurementFromAPI verifies the HasValue flag tracks whether a
// reading was present.
func TestMeasurementFromAPI(t *testing.T) {
	m := measurementFromAPI(map[string]any{
		"id":           "4",
		"name":         "Hall Temp",
		"currentValue": "21.5",
		"unit":         "C",
	})
	if !m.HasValue {
		t.Fatal("HasValue = false with a currentValue present")
	}
	if m.Value != 21.5 {
		t.Errorf("Value = %v, want 21.5 (string-coerced)", m.Value)
	}

	empty := measurementFromAPI(map[string]any{"id": "5"})
	if empty.HasValue {
		t.Error("HasValue = true with no reading")
	}
	if empty.Name != "Measurement 5" {
		t.Errorf("Name = %q, want the generated default", empty.Name)
	}
}

// TestOutputFromAPI verifies truthy state decoding.
func TestOutputFromAPI(t *testing.T) {
	out := outputFromAPI(map[string]any{
		"output_id": "2",
		"state":     "on",
	})
	if out.ID != "2" {
		t.Errorf("ID = %q, want 2", out.ID)
	}
	if !out.State {
		t.Error("State = false for \"on\"")
	}

	off := outputFromAPI(map[string]any{"id": "3", "state": float64(0)})
	if off.State {
		t.Error("State = true for 0")
	}
}

// TestParseEvent verifies common-field extraction and area routing.
func TestParseEvent(t *testing.T) {
	e := ParseEvent(map[string]any{
		"event_type": "AreaStateChange",
		"area_id":    float64(1),
		"status":     "armed",
	})
	if e.Type != "areastatechange" {
		t.Errorf("Type = %q, want areastatechange", e.Type)
	}
	if e.AreaID != "1" {
		t.Errorf("AreaID = %q, want 1", e.AreaID)
	}
	if e.State != "armed" {
		t.Errorf("State = %q, want armed", e.State)
	}
	if !e.IsAreaEvent() {
		t.Error("IsAreaEvent() = false for an area event")
	}

	if ParseEvent(map[string]any{"type": "zone"}).IsAreaEvent() {
		t.Error("IsAreaEvent() = true for a zone event")
	}
}

// TestPanelFromAPI verifies the generated name fallback.
func TestPanelFromAPI(t *testing.T) {
	p := panelFromAPI(map[string]any{"model": "Runner 8/64"}, "000f12345678", nil)
	if p.Name != "Panel 345678" {
		t.Errorf("Name = %q, want Panel 345678", p.Name)
	}
	if p.Model != "Runner 8/64" {
		t.Errorf("Model = %q, want Runner 8/64", p.Model)
	}
}
