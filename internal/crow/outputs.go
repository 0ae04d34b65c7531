package crow

import "context"

// GetOutputs lists all controllable outputs of a panel.
func (s *Session) GetOutputs(ctx context.Context, mac string) ([]Output, error) {
	normalized, err := NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}

	payload, err := s.get(ctx, "/api/panels/"+normalized+"/outputs")
	if err != nil {
		return nil, err
	}
	list, err := decodeList(payload)
	if err != nil {
		return nil, err
	}

	outputs := make([]Output, 0, len(list))
	for _, data := range list {
		outputs = append(outputs, outputFromAPI(data))
	}
	return outputs, nil
}

// SetOutputState switches an output on or off.
func (s *Session) SetOutputState(ctx context.Context, mac, outputID string, on bool) error {
	normalized, err := NormalizeMAC(mac)
	if err != nil {
		return err
	}

	_, err = s.post(ctx, "/api/panels/"+normalized+"/outputs/"+outputID,
		map[string]bool{"state": on})
	return err
}
