package tcp_test

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/omochice/room-chat/internal/transport"
	"github.com/omochice/room-chat/internal/transport/tcp"
)

func TestConn_ImplementsInterface(t *testing.T) {
	var _ transport.Conn = (*tcp.Conn)(nil)
}

func writeFrame(t *testing.T, w io.Writer, payload string) {
	t.Helper()
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(append(header[:], payload...)); err != nil {
		t.Errorf("write frame: %v", err)
	}
}

func TestConn_Read(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := tcp.NewConn(client)

	go func() {
		writeFrame(t, server, "first")
		writeFrame(t, server, "second")
	}()

	for _, want := range []string{"first", "second"} {
		data, err := conn.Read(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != want {
			t.Errorf("Read() = %q, want %q", string(data), want)
		}
	}
}

func TestConn_ReadCleanClose(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	conn := tcp.NewConn(client)
	server.Close()

	_, err := conn.Read(context.Background())
	if !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Read() error = %v, want ErrClosed", err)
	}
}

func TestConn_ReadTruncatedFrame(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	conn := tcp.NewConn(client)

	go func() {
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], 10)
		server.Write(append(header[:], "abc"...))
		server.Close()
	}()

	_, err := conn.Read(context.Background())
	if err == nil {
		t.Fatal("expected error for truncated frame")
	}
	if errors.Is(err, transport.ErrClosed) {
		t.Errorf("truncated frame reported as clean close: %v", err)
	}
}

func TestConn_ReadOversizedFrame(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := tcp.NewConn(client)

	go func() {
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], tcp.MaxFrameSize+1)
		server.Write(header[:])
	}()

	if _, err := conn.Read(context.Background()); err == nil {
		t.Error("expected error for oversized frame")
	}
}

func TestConn_Write(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := tcp.NewConn(client)

	go func() {
		err := conn.Write(context.Background(), []byte("hello"))
		if err != nil {
			t.Errorf("Write() error = %v", err)
		}
	}()

	peer := tcp.NewConn(server)
	data, err := peer.Read(context.Background())
	if err != nil {
		t.Fatalf("server read error: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("server received %q, want %q", string(data), "hello")
	}
}

func TestConn_Close(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	conn := tcp.NewConn(client)

	err := conn.Close()
	if err != nil {
		t.Errorf("Close() error = %v", err)
	}

	_, err = client.Read(make([]byte, 1))
	if err == nil {
		t.Error("expected error after close, got nil")
	}
}

func TestDialer_Dial(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer listener.Close()

	received := make(chan string, 1)
	go func() {
		c, err := listener.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		data, err := tcp.NewConn(c).Read(context.Background())
		if err != nil {
			return
		}
		received <- string(data)
	}()

	conn, err := tcp.NewDialer().Dial(context.Background(), "tcp://"+listener.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if conn.RemoteAddr() != listener.Addr().String() {
		t.Errorf("RemoteAddr() = %q, want %q", conn.RemoteAddr(), listener.Addr().String())
	}
	if err := conn.Write(context.Background(), []byte("ping")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := <-received; got != "ping" {
		t.Errorf("server received %q, want %q", got, "ping")
	}
}
