package node

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// maxPayloadPreview bounds how much of a bad payload ends up in a status.
const maxPayloadPreview = 64

// Payload is the JSON status document published by a node, either in its
// TXT status record or as a push channel message. Every field is optional.
type Payload struct {
	Queries  *int64   `json:"qs,omitempty"`
	Uptime   *float64 `json:"up,omitempty"`
	Version  string   `json:"v,omitempty"`
	Hostname string   `json:"h,omitempty"`
	ID       string   `json:"id,omitempty"`
	Groups   []string `json:"groups,omitempty"`
	QPS1m    *float64 `json:"qps1m,omitempty"`
}

func (p Payload) reportedName() string {
	if p.ID != "" {
		return p.ID
	}
	return p.Hostname
}

// ParseError is returned when a payload is not a well-formed JSON object
// or carries a negative query counter.
type ParseError struct {
	Data string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "parse error: empty payload"
	}
	return fmt.Sprintf("parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParsePayload decodes a status payload.
func ParsePayload(data []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Payload{}, &ParseError{}
	}

	var p Payload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return Payload{}, &ParseError{Data: preview(trimmed), Err: err}
	}
	if p.Queries != nil && *p.Queries < 0 {
		return Payload{}, &ParseError{
			Data: preview(trimmed),
			Err:  fmt.Errorf("negative query counter %d", *p.Queries),
		}
	}
	return p, nil
}

func preview(data []byte) string {
	if len(data) > maxPayloadPreview {
		data = data[:maxPayloadPreview]
	}
	return string(data)
}
