package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Codec converts frames to and from transport payloads.
type Codec interface {
	// Name returns the configuration name of the codec.
	Name() string
	// Binary reports whether payloads must travel as binary messages.
	Binary() bool
	Encode(f Frame) ([]byte, error)
	Decode(data []byte) (Frame, error)
	// DecodeBroadcast decodes a server payload as a broadcast regardless of
	// its type tag.
	DecodeBroadcast(data []byte) (BroadcastFrame, error)
}

// CodecByName returns the codec registered under name ("json" or "proto").
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSONCodec{}, nil
	case "proto", "protobuf":
		return ProtoCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// JSONCodec encodes each frame as one JSON object per text message.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }
func (JSONCodec) Binary() bool { return false }

// Encode encodes the frame into a JSON object.
func (JSONCodec) Encode(f Frame) ([]byte, error) {
	fields, err := toFields(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

// Decode decodes a JSON object into a frame.
func (JSONCodec) Decode(data []byte) (Frame, error) {
	fields, err := jsonFields(data)
	if err != nil {
		return nil, err
	}
	return fromFields(fields)
}

// DecodeBroadcast decodes any JSON object carrying string name and message
// fields.
func (JSONCodec) DecodeBroadcast(data []byte) (BroadcastFrame, error) {
	fields, err := jsonFields(data)
	if err != nil {
		return BroadcastFrame{}, err
	}
	return broadcastFromFields(fields)
}

func jsonFields(data []byte) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedFrame)
	}
	return fields, nil
}

// ProtoCodec encodes each frame as a protobuf Struct holding the same field
// set as the JSON form.
type ProtoCodec struct{}

func (ProtoCodec) Name() string { return "proto" }
func (ProtoCodec) Binary() bool { return true }

// Encode encodes the frame into protobuf bytes.
func (ProtoCodec) Encode(f Frame) ([]byte, error) {
	fields, err := toFields(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	data, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

// Decode decodes protobuf bytes into a frame.
func (ProtoCodec) Decode(data []byte) (Frame, error) {
	fields, err := protoFields(data)
	if err != nil {
		return nil, err
	}
	return fromFields(fields)
}

// DecodeBroadcast decodes protobuf bytes into a broadcast frame.
func (ProtoCodec) DecodeBroadcast(data []byte) (BroadcastFrame, error) {
	fields, err := protoFields(data)
	if err != nil {
		return BroadcastFrame{}, err
	}
	return broadcastFromFields(fields)
}

func protoFields(data []byte) (map[string]any, error) {
	st := &structpb.Struct{}
	if err := proto.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return st.AsMap(), nil
}
