package crow

import "context"

// GetZones lists all zones/sensors of a panel.
func (s *Session) GetZones(ctx context.Context, mac string) ([]Zone, error) {
	normalized, err := NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}

	payload, err := s.get(ctx, "/api/panels/"+normalized+"/zones")
	if err != nil {
		return nil, err
	}
	list, err := decodeList(payload)
	if err != nil {
		return nil, err
	}

	zones := make([]Zone, 0, len(list))
	for _, data := range list {
		zones = append(zones, zoneFromAPI(data))
	}
	return zones, nil
}
