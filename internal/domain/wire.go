package domain

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates frames on the observer channel.
type MessageType string

const (
	MsgInitialMessages MessageType = "initialMessages"
	MsgNewMessage      MessageType = "newMessage"
	MsgGetAnalytics    MessageType = "getAnalytics"
	MsgAnalytics       MessageType = "analytics"
)

// Envelope is the tagged record every observer frame is wrapped in.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// AnalyticsPayload is the body of an analytics response.
type AnalyticsPayload struct {
	PerformanceStats map[string]float64 `json:"performanceStats"`
}

// EncodeEnvelope marshals data under the given type tag.
func EncodeEnvelope(t MessageType, data any) ([]byte, error) {
	env := Envelope{Type: t}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// DecodeEnvelope parses a frame. Undecodable frames wrap ErrMalformed.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: frame without type", ErrMalformed)
	}
	return env, nil
}
