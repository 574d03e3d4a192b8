package domain

import "time"

// Message represents a Kafka record as stored inside a segment
type Message struct {
	Offset    int64     `json:"offset"`
	Partition int32     `json:"partition"`
	Key       []byte    `json:"key,omitempty"`
	Value     []byte    `json:"value,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Headers   []Header  `json:"headers,omitempty"`
}

// Header represents a message header
type Header struct {
	Key   string `json:"key"`
	Value []byte `json:"value,omitempty"`
}

// Size approximates the on-wire size of the record, used for segment cutting
// and byte throttling.
func (m *Message) Size() int {
	n := len(m.Key) + len(m.Value) + 8
	for _, h := range m.Headers {
		n += len(h.Key) + len(h.Value)
	}
	return n
}
