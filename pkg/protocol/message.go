// Package protocol defines the chat wire format: a compact JSON object
// terminated by an end-of-frame marker.
package protocol

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// EndOfFrame terminates every frame on the wire.
const EndOfFrame = "<EOF>"

// Field keys of the encoded object.
const (
	fieldSender   = "u"
	fieldBody     = "m"
	fieldInternal = "i"
)

// reservedCharacters may not appear in a sender or body.
const reservedCharacters = "<>"

var (
	ErrFrameDecode        = errors.New("protocol: malformed frame")
	ErrFrameTooLarge      = errors.New("protocol: frame exceeds limit")
	ErrReservedCharacters = errors.New("protocol: message contains reserved characters")
	ErrInvalidDirective   = errors.New("protocol: invalid directive")
)

// Message represents a chat message
type Message struct {
	Sender   string
	Body     string
	Internal bool
}

// Validate reports ErrReservedCharacters when the body or the sender
// could collide with the framing conventions.
func (m *Message) Validate() error {
	if strings.ContainsAny(m.Body, reservedCharacters) {
		return fmt.Errorf("%w: body", ErrReservedCharacters)
	}
	if strings.ContainsAny(m.Sender, reservedCharacters) {
		return fmt.Errorf("%w: sender", ErrReservedCharacters)
	}
	return nil
}

// Encode encodes the message into one frame, marker included.
func (m *Message) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	st, err := m.toStruct()
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	data, err := protojson.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return append(data, EndOfFrame...), nil
}

// Decode decodes one frame payload (without the marker) into the message.
func (m *Message) Decode(payload []byte) error {
	st := &structpb.Struct{}
	if err := protojson.Unmarshal(payload, st); err != nil {
		return fmt.Errorf("%w: %v", ErrFrameDecode, err)
	}
	return m.fromStruct(st)
}

// toStruct converts the Message to its protobuf JSON representation.
func (m *Message) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldSender:   m.Sender,
		fieldBody:     m.Body,
		fieldInternal: m.Internal,
	})
}

// fromStruct populates the Message from a decoded object. Missing keys keep
// their zero value; keys of the wrong kind are a decode error.
func (m *Message) fromStruct(st *structpb.Struct) error {
	var out Message
	for key, value := range st.GetFields() {
		switch key {
		case fieldSender:
			s, ok := value.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return fmt.Errorf("%w: %q is not a string", ErrFrameDecode, key)
			}
			out.Sender = s.StringValue
		case fieldBody:
			s, ok := value.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return fmt.Errorf("%w: %q is not a string", ErrFrameDecode, key)
			}
			out.Body = s.StringValue
		case fieldInternal:
			b, ok := value.GetKind().(*structpb.Value_BoolValue)
			if !ok {
				return fmt.Errorf("%w: %q is not a bool", ErrFrameDecode, key)
			}
			out.Internal = b.BoolValue
		}
	}
	*m = out
	return nil
}
