// Package hub fans websocket messages out to every connected viewer
// using a single goroutine that owns the client set.
package hub

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/websocket/v2"
)

// MessageType is the websocket opcode a message is written with.
type MessageType int

const (
	TextMessage   MessageType = websocket.TextMessage
	BinaryMessage MessageType = websocket.BinaryMessage
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return fmt.Sprintf("opcode(%d)", int(t))
	}
}

// Message is one payload queued for broadcast. Data is shared by every
// viewer and must not be modified once queued.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage encodes v as a text message.
func NewJSONMessage(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("encode %T: %w", v, err)
	}
	return Message{Type: TextMessage, Data: data}, nil
}

// NewBinaryMessage wraps an encoded payload such as a JPEG frame.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
