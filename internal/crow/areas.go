package crow

import (
	"context"
	"errors"
)

// GetAreas lists all areas/partitions of a panel.
func (s *Session) GetAreas(ctx context.Context, mac string) ([]Area, error) {
	normalized, err := NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}

	payload, err := s.get(ctx, "/api/panels/"+normalized+"/areas")
	if err != nil {
		return nil, err
	}
	list, err := decodeList(payload)
	if err != nil {
		return nil, err
	}

	areas := make([]Area, 0, len(list))
	for _, data := range list {
		areas = append(areas, areaFromAPI(data))
	}
	return areas, nil
}

// GetArea fetches one area by ID. The boolean reports whether the
// area exists; an unknown area is not an error.
func (s *Session) GetArea(ctx context.Context, mac, areaID string) (Area, bool, error) {
	normalized, err := NormalizeMAC(mac)
	if err != nil {
		return Area{}, false, err
	}

	payload, err := s.get(ctx, "/api/panels/"+normalized+"/areas/"+areaID)
	if err != nil {
		if errors.Is(err, ErrPanelNotFound) {
			return Area{}, false, nil
		}
		return Area{}, false, err
	}
	data, err := decodeObject(payload)
	if err != nil {
		return Area{}, false, err
	}
	if data == nil {
		return Area{}, false, nil
	}
	return areaFromAPI(data), true, nil
}

// SetAreaState sends an arm-state command to an area.
//
// The panel answers the updated area when the change is immediate. A
// change still in progress (exit delay running) yields no payload;
// the boolean is false and the caller should watch the realtime feed
// for the final state.
func (s *Session) SetAreaState(ctx context.Context, mac, areaID string, command AreaCommand) (Area, bool, error) {
	normalized, err := NormalizeMAC(mac)
	if err != nil {
		return Area{}, false, err
	}

	payload, err := s.post(ctx, "/api/panels/"+normalized+"/areas/"+areaID+"/state",
		map[string]string{"state": string(command)})
	if err != nil {
		return Area{}, false, err
	}
	data, err := decodeObject(payload)
	if err != nil {
		return Area{}, false, err
	}
	if data == nil {
		return Area{}, false, nil
	}
	return areaFromAPI(data), true, nil
}
