package payment

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// MarshalRequest encodes a request for the request queue.
func MarshalRequest(r Request) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal payment request: %w", err)
	}
	return b, nil
}

// UnmarshalRequest decodes a request queue message. Defaults are not applied: the producer
// already did that before publishing.
func UnmarshalRequest(b []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(b, &r); err != nil {
		return Request{}, fmt.Errorf("unmarshal payment request: %w", err)
	}
	return r, nil
}

// MarshalResponse encodes a response for the response queue.
func MarshalResponse(r Response) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal payment response: %w", err)
	}
	return b, nil
}

// UnmarshalResponse decodes a response queue message.
func UnmarshalResponse(b []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(b, &r); err != nil {
		return Response{}, fmt.Errorf("unmarshal payment response: %w", err)
	}
	return r, nil
}
