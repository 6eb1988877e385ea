package protocol_test

import (
	"encoding/json"
	"errors"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/omochice/room-chat/pkg/protocol"
)

func TestJSONCodec_EncodeJoin(t *testing.T) {
	data, err := protocol.JSONCodec{}.Encode(protocol.JoinFrame{Room: "general", Name: "alice"})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var got map[string]string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("encoded payload is not a JSON object: %v", err)
	}
	want := map[string]string{"type": "join", "room": "general", "name": "alice"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("field %q = %q, want %q", k, got[k], v)
		}
	}
}

func TestJSONCodec_Decode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    protocol.Frame
		wantErr bool
	}{
		{
			name:    "broadcast from server",
			payload: `{"name":"bob","message":"hi"}`,
			want:    protocol.BroadcastFrame{Name: "bob", Message: "hi"},
		},
		{
			name:    "broadcast with extra fields",
			payload: `{"name":"bob","message":"hi","ts":12}`,
			want:    protocol.BroadcastFrame{Name: "bob", Message: "hi"},
		},
		{
			name:    "join from client",
			payload: `{"type":"join","room":"general","name":"alice"}`,
			want:    protocol.JoinFrame{Room: "general", Name: "alice"},
		},
		{
			name:    "send from client",
			payload: `{"type":"send","message":"hello"}`,
			want:    protocol.SendFrame{Message: "hello"},
		},
		{name: "not json", payload: `hello`, wantErr: true},
		{name: "json array", payload: `[1,2]`, wantErr: true},
		{name: "json null", payload: `null`, wantErr: true},
		{name: "missing message", payload: `{"name":"bob"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := protocol.JSONCodec{}.Decode([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, protocol.ErrMalformedFrame) {
					t.Errorf("Decode() error = %v, want ErrMalformedFrame", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestCodec_DecodeBroadcast(t *testing.T) {
	tests := []struct {
		name    string
		fields  map[string]any
		want    protocol.BroadcastFrame
		wantErr bool
	}{
		{
			name:   "untagged",
			fields: map[string]any{"name": "bob", "message": "hi"},
			want:   protocol.BroadcastFrame{Name: "bob", Message: "hi"},
		},
		{
			name:   "message tag",
			fields: map[string]any{"type": "message", "name": "bob", "message": "hi"},
			want:   protocol.BroadcastFrame{Name: "bob", Message: "hi"},
		},
		{
			name:   "send tag",
			fields: map[string]any{"type": "send", "name": "bob", "message": "hi"},
			want:   protocol.BroadcastFrame{Name: "bob", Message: "hi"},
		},
		{
			name:    "send without name",
			fields:  map[string]any{"type": "send", "message": "hi"},
			wantErr: true,
		},
		{
			name:    "join",
			fields:  map[string]any{"type": "join", "room": "general", "name": "bob"},
			wantErr: true,
		},
		{
			name:    "non string name",
			fields:  map[string]any{"name": 7.0, "message": "hi"},
			wantErr: true,
		},
	}

	encoders := map[string]func(t *testing.T, fields map[string]any) []byte{
		"json": func(t *testing.T, fields map[string]any) []byte {
			data, err := json.Marshal(fields)
			if err != nil {
				t.Fatalf("json.Marshal() error = %v", err)
			}
			return data
		},
		"proto": func(t *testing.T, fields map[string]any) []byte {
			st, err := structpb.NewStruct(fields)
			if err != nil {
				t.Fatalf("structpb.NewStruct() error = %v", err)
			}
			data, err := proto.Marshal(st)
			if err != nil {
				t.Fatalf("proto.Marshal() error = %v", err)
			}
			return data
		},
	}

	for codecName, encode := range encoders {
		codec, err := protocol.CodecByName(codecName)
		if err != nil {
			t.Fatalf("CodecByName(%q) error = %v", codecName, err)
		}
		for _, tt := range tests {
			t.Run(codecName+"/"+tt.name, func(t *testing.T) {
				got, err := codec.DecodeBroadcast(encode(t, tt.fields))
				if tt.wantErr {
					if !errors.Is(err, protocol.ErrMalformedFrame) {
						t.Errorf("DecodeBroadcast() error = %v, want ErrMalformedFrame", err)
					}
					return
				}
				if err != nil {
					t.Fatalf("DecodeBroadcast() error = %v", err)
				}
				if got != tt.want {
					t.Errorf("DecodeBroadcast() = %#v, want %#v", got, tt.want)
				}
			})
		}
	}
}

func TestProtoCodec_SendEchoedAsBroadcast(t *testing.T) {
	codec := protocol.ProtoCodec{}

	data, err := codec.Encode(protocol.SendFrame{Message: "hello"})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	f, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	send, ok := f.(protocol.SendFrame)
	if !ok {
		t.Fatalf("Decode() = %T, want SendFrame", f)
	}

	data, err = codec.Encode(protocol.BroadcastFrame{Name: "alice", Message: send.Message})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	f, err = codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := f.(protocol.BroadcastFrame); got.Message != "hello" || got.Name != "alice" {
		t.Errorf("Decode() = %#v", got)
	}
}

func TestProtoCodec_DecodeGarbage(t *testing.T) {
	_, err := protocol.ProtoCodec{}.Decode([]byte{0xff, 0xff, 0xff})
	if !errors.Is(err, protocol.ErrMalformedFrame) {
		t.Errorf("Decode() error = %v, want ErrMalformedFrame", err)
	}
}

func TestCodecByName(t *testing.T) {
	tests := []struct {
		name       string
		wantName   string
		wantBinary bool
		wantErr    bool
	}{
		{name: "", wantName: "json"},
		{name: "JSON", wantName: "json"},
		{name: "proto", wantName: "proto", wantBinary: true},
		{name: "protobuf", wantName: "proto", wantBinary: true},
		{name: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, err := protocol.CodecByName(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CodecByName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if codec.Name() != tt.wantName || codec.Binary() != tt.wantBinary {
				t.Errorf("CodecByName() = %s/%v, want %s/%v", codec.Name(), codec.Binary(), tt.wantName, tt.wantBinary)
			}
		})
	}
}
