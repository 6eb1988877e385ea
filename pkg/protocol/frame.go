// Package protocol defines the chat wire frames and the codecs that carry them.
package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformedFrame is wrapped by every decode failure.
var ErrMalformedFrame = errors.New("malformed frame")

// Kind identifies the frame variant.
type Kind string

const (
	KindJoin      Kind = "join"
	KindSend      Kind = "send"
	KindBroadcast Kind = "broadcast"
)

// Frame is one protocol message exchanged over the connection.
type Frame interface {
	Kind() Kind
}

// JoinFrame declares the room and identity of a client. It is sent once,
// right after the connection opens.
type JoinFrame struct {
	Room string
	Name string
}

// SendFrame carries one outgoing chat message.
type SendFrame struct {
	Message string
}

// BroadcastFrame is a server-originated chat message visible to the room.
type BroadcastFrame struct {
	Name    string
	Message string
}

func (JoinFrame) Kind() Kind      { return KindJoin }
func (SendFrame) Kind() Kind      { return KindSend }
func (BroadcastFrame) Kind() Kind { return KindBroadcast }

// Wire field names.
const (
	fieldType    = "type"
	fieldKind    = "kind"
	fieldRoom    = "room"
	fieldName    = "name"
	fieldMessage = "message"
)

// toFields flattens a frame into its wire field set. Broadcast frames carry
// no type field.
func toFields(f Frame) (map[string]any, error) {
	switch v := f.(type) {
	case JoinFrame:
		return map[string]any{fieldType: string(KindJoin), fieldRoom: v.Room, fieldName: v.Name}, nil
	case *JoinFrame:
		return toFields(*v)
	case SendFrame:
		return map[string]any{fieldType: string(KindSend), fieldMessage: v.Message}, nil
	case *SendFrame:
		return toFields(*v)
	case BroadcastFrame:
		return map[string]any{fieldName: v.Name, fieldMessage: v.Message}, nil
	case *BroadcastFrame:
		return toFields(*v)
	default:
		return nil, fmt.Errorf("unsupported frame %T", f)
	}
}

// fromFields rebuilds a frame from a decoded field set. Either "type" or
// "kind" may name the variant; a missing one means broadcast.
func fromFields(fields map[string]any) (Frame, error) {
	kind, _, err := stringField(fields, fieldType)
	if err != nil {
		return nil, err
	}
	if kind == "" {
		if kind, _, err = stringField(fields, fieldKind); err != nil {
			return nil, err
		}
	}

	switch Kind(kind) {
	case KindJoin:
		room, err := requiredField(fields, fieldRoom)
		if err != nil {
			return nil, err
		}
		name, err := requiredField(fields, fieldName)
		if err != nil {
			return nil, err
		}
		return JoinFrame{Room: room, Name: name}, nil
	case KindSend:
		message, err := requiredField(fields, fieldMessage)
		if err != nil {
			return nil, err
		}
		return SendFrame{Message: message}, nil
	case "", KindBroadcast:
		return broadcastFromFields(fields)
	default:
		return nil, fmt.Errorf("%w: unknown frame type %q", ErrMalformedFrame, kind)
	}
}

// broadcastFromFields ignores the type tag: "message", "send" and an absent
// tag all carry a chat line.
func broadcastFromFields(fields map[string]any) (BroadcastFrame, error) {
	name, err := requiredField(fields, fieldName)
	if err != nil {
		return BroadcastFrame{}, err
	}
	message, err := requiredField(fields, fieldMessage)
	if err != nil {
		return BroadcastFrame{}, err
	}
	return BroadcastFrame{Name: name, Message: message}, nil
}

func stringField(fields map[string]any, key string) (string, bool, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return "", false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", false, fmt.Errorf("%w: field %q is not a string", ErrMalformedFrame, key)
	}
	return s, true, nil
}

func requiredField(fields map[string]any, key string) (string, error) {
	s, ok, err := stringField(fields, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", ErrMalformedFrame, key)
	}
	return s, nil
}
