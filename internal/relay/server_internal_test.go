package relay

import (
	"encoding/binary"
	"net"
	"testing"
)

func TestDetectProtocol(t *testing.T) {
	frame := make([]byte, 8)
	binary.BigEndian.PutUint32(frame, 4)
	copy(frame[4:], "{}\n\n")

	tests := []struct {
		name  string
		input []byte
		want  protocolType
	}{
		{name: "websocket upgrade", input: []byte("GET / HTTP/1.1\r\n"), want: protocolHTTP},
		{name: "post", input: []byte("POST /x HTTP/1.1\r\n"), want: protocolHTTP},
		{name: "length prefixed frame", input: frame, want: protocolTCP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, client := net.Pipe()
			defer server.Close()
			defer client.Close()

			go func() { _, _ = client.Write(tt.input) }()

			got, reader, err := detectProtocol(server)
			if err != nil {
				t.Fatalf("detectProtocol() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("detectProtocol() = %v, want %v", got, tt.want)
			}
			if reader.Buffered() < 4 {
				t.Errorf("peeked bytes were not preserved")
			}
		})
	}
}
