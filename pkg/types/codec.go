package types

import (
	json "github.com/goccy/go-json"
)

// EncodePayload serializes a signal payload for storage.
func EncodePayload(p *SignalPayload) ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload deserializes a stored signal payload.
func DecodePayload(raw []byte) (SignalPayload, error) {
	var p SignalPayload
	if len(raw) == 0 {
		return p, nil
	}
	err := json.Unmarshal(raw, &p)
	return p, err
}

// EncodeDetail serializes an intent detail for storage.
func EncodeDetail(d *IntentDetail) ([]byte, error) {
	return json.Marshal(d)
}

// DecodeDetail deserializes a stored intent detail.
func DecodeDetail(raw []byte) (IntentDetail, error) {
	var d IntentDetail
	if len(raw) == 0 {
		return d, nil
	}
	err := json.Unmarshal(raw, &d)
	return d, err
}
