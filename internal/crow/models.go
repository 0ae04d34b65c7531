package crow

import (
	"strconv"
	"strings"
)

// AreaState is the arm state of an alarm area.
type AreaState string

// Area states reported by the API.
const (
	AreaDisarmed          AreaState = "disarmed"
	AreaArmed             AreaState = "armed"
	AreaStayArmed         AreaState = "stay_armed"
	AreaArmInProgress     AreaState = "arm in progress"
	AreaStayArmInProgress AreaState = "stay arm in progress"
	AreaTriggered         AreaState = "triggered"
	AreaPending           AreaState = "pending"
)

// areaStateFromAPI maps an API state string to an AreaState,
// defaulting to disarmed for unknown values.
func areaStateFromAPI(value string) AreaState {
	switch state := AreaState(strings.ToLower(value)); state {
	case AreaDisarmed, AreaArmed, AreaStayArmed, AreaArmInProgress,
		AreaStayArmInProgress, AreaTriggered, AreaPending:
		return state
	default:
		return AreaDisarmed
	}
}

// AreaCommand is an arm-state change command.
type AreaCommand string

// Commands accepted by SetAreaState.
const (
	CommandArm    AreaCommand = "arm"
	CommandStay   AreaCommand = "stay"
	CommandDisarm AreaCommand = "disarm"
)

// Panel is a Crow alarm panel. Panels returned by a Session carry a
// reference to it, so resource methods can be called directly.
type Panel struct {
	MAC             string
	Name            string
	Model           string
	FirmwareVersion string
	Raw             map[string]any

	session *Session
}

// Area is an alarm area/partition.
type Area struct {
	ID    string
	Name  string
	State AreaState
	Raw   map[string]any
}

// IsArmed reports whether the area is armed in any mode.
func (a Area) IsArmed() bool {
	return a.State == AreaArmed || a.State == AreaStayArmed
}

// IsArming reports whether the area is in the process of arming.
func (a Area) IsArming() bool {
	return a.State == AreaArmInProgress || a.State == AreaStayArmInProgress
}

// Zone is an alarm zone/sensor.
type Zone struct {
	ID             string
	Name           string
	State          string
	Type           string
	Bypassed       bool
	Tamper         bool
	Battery        int // -1 when not reported
	SignalStrength int // -1 when not reported
	Raw            map[string]any
}

// IsOpen reports whether the zone is open or triggered.
func (z Zone) IsOpen() bool {
	switch strings.ToLower(z.State) {
	case "open", "alarm", "triggered", "violated", "1", "active":
		return true
	default:
		return false
	}
}

// HasLowBattery reports whether the zone's battery is below 20%.
// Zones that do not report battery level always return false.
func (z Zone) HasLowBattery() bool {
	return z.Battery >= 0 && z.Battery < 20
}

// Output is a controllable panel output.
type Output struct {
	ID    string
	Name  string
	State bool
	Type  string
	Raw   map[string]any
}

// Measurement is a sensor reading (temperature, humidity, etc.).
type Measurement struct {
	ID       string
	Name     string
	Value    float64
	HasValue bool
	Unit     string
	Type     string
	ZoneID   string
	Raw      map[string]any
}

// Event is a decoded realtime event frame. The realtime channel
// delivers raw frames; ParseEvent lifts the common fields out for
// consumers that route on them.
type Event struct {
	Type   string
	AreaID string
	ZoneID string
	State  string
	Raw    map[string]any
}

// ParseEvent decodes the common fields of a realtime event frame.
func ParseEvent(msg map[string]any) Event {
	return Event{
		Type:   strings.ToLower(decodeString(msg, "type", "event_type")),
		AreaID: decodeString(msg, "area_id", "areaId"),
		ZoneID: decodeString(msg, "zone_id", "zoneId", "device_id"),
		State:  decodeString(msg, "state", "status"),
		Raw:    msg,
	}
}

// IsAreaEvent reports whether the event concerns area arm state.
func (e Event) IsAreaEvent() bool {
	return strings.Contains(e.Type, "area")
}

// Field decoding below is deliberately tolerant: the API's field
// names vary across panel firmware versions, so every field is tried
// under each known alias.

// decodeString returns the first present string value among keys.
func decodeString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// decodeNumber returns the first present numeric value among keys.
func decodeNumber(m map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch v := m[key].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// decodeBool returns the first present truthy value among keys.
func decodeBool(m map[string]any, keys ...string) bool {
	for _, key := range keys {
		switch v := m[key].(type) {
		case bool:
			return v
		case float64:
			return v == 1
		case string:
			switch strings.ToLower(v) {
			case "on", "1", "true", "active", "activated":
				return true
			case "off", "0", "false", "inactive":
				return false
			}
		}
	}
	return false
}

// decodeID extracts a resource identifier, including the nested
// {"_id": {"device_id": N}} form older firmware uses.
func decodeID(m map[string]any, keys ...string) string {
	if id := decodeString(m, keys...); id != "" {
		return id
	}
	if nested, ok := m["_id"].(map[string]any); ok {
		if id := decodeString(nested, "device_id"); id != "" {
			return id
		}
	}
	return ""
}

func panelFromAPI(m map[string]any, mac string, session *Session) Panel {
	name := decodeString(m, "name", "panelName")
	if name == "" && len(mac) >= 6 {
		name = "Panel " + mac[len(mac)-6:]
	}
	return Panel{
		MAC:             mac,
		Name:            name,
		Model:           decodeString(m, "model", "panelModel"),
		FirmwareVersion: decodeString(m, "firmwareVersion", "firmware_version"),
		Raw:             m,
		session:         session,
	}
}

func areaFromAPI(m map[string]any) Area {
	id := decodeID(m, "id", "area_id")
	name := decodeString(m, "name")
	if name == "" {
		name = "Area " + id
	}
	return Area{
		ID:    id,
		Name:  name,
		State: areaStateFromAPI(decodeString(m, "state", "status")),
		Raw:   m,
	}
}

func zoneFromAPI(m map[string]any) Zone {
	id := decodeID(m, "id", "device_id")
	name := decodeString(m, "name")
	if name == "" {
		name = "Zone " + id
	}

	battery := -1
	if v, ok := decodeNumber(m, "battery", "batteryLevel"); ok {
		battery = int(v)
	}
	signal := -1
	if v, ok := decodeNumber(m, "signal", "rssi"); ok {
		signal = int(v)
	}

	state := decodeString(m, "state", "status")
	if state == "" {
		state = "ok"
	}
	zoneType := decodeString(m, "type", "zone_type")
	if zoneType == "" {
		zoneType = "generic"
	}

	return Zone{
		ID:             id,
		Name:           name,
		State:          state,
		Type:           zoneType,
		Bypassed:       decodeBool(m, "bypassed", "bypass"),
		Tamper:         decodeBool(m, "tamper"),
		Battery:        battery,
		SignalStrength: signal,
		Raw:            m,
	}
}

func outputFromAPI(m map[string]any) Output {
	id := decodeID(m, "id", "output_id")
	name := decodeString(m, "name")
	if name == "" {
		name = "Output " + id
	}
	return Output{
		ID:    id,
		Name:  name,
		State: decodeBool(m, "state", "status"),
		Type:  decodeString(m, "type", "outputType"),
		Raw:   m,
	}
}

func measurementFromAPI(m map[string]any) Measurement {
	id := decodeID(m, "id", "measurement_id")
	name := decodeString(m, "name")
	if name == "" {
		name = "Measurement " + id
	}
	value, hasValue := decodeNumber(m, "value", "currentValue")
	return Measurement{
		ID:       id,
		Name:     name,
		Value:    value,
		HasValue: hasValue,
		Unit:     decodeString(m, "unit"),
		Type:     decodeString(m, "type"),
		ZoneID:   decodeString(m, "zoneId", "zone_id"),
		Raw:      m,
	}
}
