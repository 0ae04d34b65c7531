package crow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// get issues an authenticated GET against the API.
func (s *Session) get(ctx context.Context, path string) (json.RawMessage, error) {
	return s.Execute(ctx, Request{
		Method:       http.MethodGet,
		Path:         path,
		RequiresAuth: true,
	})
}

// post issues an authenticated POST against the API.
func (s *Session) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return s.Execute(ctx, Request{
		Method:       http.MethodPost,
		Path:         path,
		Body:         body,
		RequiresAuth: true,
	})
}

// decodeObject decodes a payload expected to be a JSON object.
// A nil payload decodes to nil without error.
func decodeObject(payload json.RawMessage) (map[string]any, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("%w: decoding object: %w", ErrResponse, err)
	}
	return m, nil
}

// decodeList decodes a payload expected to be a JSON array of
// objects. A nil payload or a non-array decodes to an empty list.
func decodeList(payload json.RawMessage) ([]map[string]any, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var list []map[string]any
	if err := json.Unmarshal(payload, &list); err != nil {
		// Some firmware answers a single object where a list is
		// expected; tolerate it.
		m, objErr := decodeObject(payload)
		if objErr != nil || m == nil {
			return nil, fmt.Errorf("%w: decoding list: %w", ErrResponse, err)
		}
		return []map[string]any{m}, nil
	}
	return list, nil
}
