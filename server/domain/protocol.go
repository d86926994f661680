package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidEnvelope = errors.New("invalid envelope")
	ErrMissingEvent    = errors.New("envelope has no event name")
)

// Envelope は1フレーム分のメッセージです。WebSocket のテキストフレームに JSON で載せます。
//
//	{"event": "playerUpdate", "data": {...}}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode は event と payload を1つのフレームにまとめます。
func Encode(event string, payload any) ([]byte, error) {
	if event == "" {
		return nil, ErrMissingEvent
	}
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Decode はフレームを Envelope に戻します。Data の解釈は受け手に任せます。
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.Event == "" {
		return Envelope{}, ErrMissingEvent
	}
	return env, nil
}
