package utils

import (
	"encoding/json"
)

// MarshalToJSON converts any value to its JSON string form. Used for the
// state_data column on workflow states and for idempotency result payloads.
func MarshalToJSON(value any) (string, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func UnmarshalFromJSON[T any](payload string) (T, error) {
	var value T
	if payload == "" {
		return value, nil
	}
	err := json.Unmarshal([]byte(payload), &value)
	return value, err
}
