package domain

import (
	"encoding/json"
	"fmt"
)

// MarshalSegment encodes the records of one segment before compression.
func MarshalSegment(messages []*Message) ([]byte, error) {
	data, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to encode segment: %w", err)
	}
	return data, nil
}

// UnmarshalSegment decodes a decompressed segment payload.
func UnmarshalSegment(data []byte) ([]*Message, error) {
	var messages []*Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode segment: %w", err)
	}
	return messages, nil
}
