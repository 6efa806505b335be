package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Alert is one entry of the alert document. The original JSON is kept
// verbatim so it is served back unchanged.
type Alert struct {
	ID  string
	Raw json.RawMessage
}

// MarshalJSON writes the alert exactly as it was loaded.
func (a Alert) MarshalJSON() ([]byte, error) {
	if len(a.Raw) == 0 {
		return []byte("null"), nil
	}
	return a.Raw, nil
}

// ParseAlerts decodes a JSON array of alert objects. The id of each alert
// is taken as a string; non-string ids keep their literal JSON text.
func ParseAlerts(data []byte) ([]Alert, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("alert document must be a JSON array: %w", err)
	}

	alerts := make([]Alert, 0, len(raw))
	for i, item := range raw {
		var head struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(item, &head); err != nil {
			return nil, fmt.Errorf("alert %d is not an object: %w", i, err)
		}
		alerts = append(alerts, Alert{ID: alertID(head.ID), Raw: item})
	}
	return alerts, nil
}

func alertID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
