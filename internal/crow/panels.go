package crow

import (
	"context"
	"fmt"
	"net/http"
)

// GetPanel fetches a panel by MAC address.
//
// Parameters:
//   - mac: Panel MAC address (any separator format)
//
// Returns:
//   - Panel: The panel, bound to this session
//   - error: ErrPanelNotFound if the account has no such panel
func (s *Session) GetPanel(ctx context.Context, mac string) (Panel, error) {
	normalized, err := NormalizeMAC(mac)
	if err != nil {
		return Panel{}, err
	}

	payload, err := s.get(ctx, "/api/panels/"+normalized)
	if err != nil {
		return Panel{}, err
	}
	data, err := decodeObject(payload)
	if err != nil {
		return Panel{}, err
	}
	if data == nil {
		return Panel{}, fmt.Errorf("%w: %s", ErrPanelNotFound, normalized)
	}
	return panelFromAPI(data, normalized, s), nil
}

// GetPanels fetches every panel visible to the account.
func (s *Session) GetPanels(ctx context.Context) ([]Panel, error) {
	payload, err := s.get(ctx, "/api/panels")
	if err != nil {
		return nil, err
	}
	list, err := decodeList(payload)
	if err != nil {
		return nil, err
	}

	panels := make([]Panel, 0, len(list))
	for _, data := range list {
		mac, err := NormalizeMAC(decodeString(data, "mac", "macAddress"))
		if err != nil {
			// A panel record without a usable MAC cannot be addressed.
			continue
		}
		panels = append(panels, panelFromAPI(data, mac, s))
	}
	return panels, nil
}

// CaptureCameraImage requests a still image from a camera zone and
// returns the raw image bytes.
func (s *Session) CaptureCameraImage(ctx context.Context, mac, zoneID string) ([]byte, error) {
	normalized, err := NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}

	payload, err := s.Execute(ctx, Request{
		Method:       http.MethodPost,
		Path:         "/api/panels/" + normalized + "/cameras/" + zoneID + "/capture",
		RequiresAuth: true,
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// GetAreas lists the panel's areas. Shorthand for Session.GetAreas.
func (p Panel) GetAreas(ctx context.Context) ([]Area, error) {
	return p.session.GetAreas(ctx, p.MAC)
}

// GetArea fetches one area by ID.
func (p Panel) GetArea(ctx context.Context, areaID string) (Area, bool, error) {
	return p.session.GetArea(ctx, p.MAC, areaID)
}

// SetAreaState arms, stay-arms, or disarms an area.
func (p Panel) SetAreaState(ctx context.Context, areaID string, command AreaCommand) (Area, bool, error) {
	return p.session.SetAreaState(ctx, p.MAC, areaID, command)
}

// GetZones lists the panel's zones.
func (p Panel) GetZones(ctx context.Context) ([]Zone, error) {
	return p.session.GetZones(ctx, p.MAC)
}

// GetOutputs lists the panel's outputs.
func (p Panel) GetOutputs(ctx context.Context) ([]Output, error) {
	return p.session.GetOutputs(ctx, p.MAC)
}

// SetOutputState switches an output on or off.
func (p Panel) SetOutputState(ctx context.Context, outputID string, on bool) error {
	return p.session.SetOutputState(ctx, p.MAC, outputID, on)
}

// GetMeasurements lists the panel's sensor measurements.
func (p Panel) GetMeasurements(ctx context.Context) ([]Measurement, error) {
	return p.session.GetMeasurements(ctx, p.MAC)
}
