package crow

import "context"

// GetMeasurements lists all sensor measurements of a panel
// (temperatures, humidity, and similar readings).
func (s *Session) GetMeasurements(ctx context.Context, mac string) ([]Measurement, error) {
	normalized, err := NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}

	payload, err := s.get(ctx, "/api/panels/"+normalized+"/measurements")
	if err != nil {
		return nil, err
	}
	list, err := decodeList(payload)
	if err != nil {
		return nil, err
	}

	measurements := make([]Measurement, 0, len(list))
	for _, data := range list {
		measurements = append(measurements, measurementFromAPI(data))
	}
	return measurements, nil
}
