package ui_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/omochice/room-chat/internal/room"
	"github.com/omochice/room-chat/internal/session"
	"github.com/omochice/room-chat/internal/transport/transporttest"
	"github.com/omochice/room-chat/internal/ui"
	"github.com/omochice/room-chat/pkg/protocol"
)

const waitTimeout = 2 * time.Second

// syncBuffer is a bytes.Buffer safe for the renderer's concurrent writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func connectedSession(t *testing.T) (*room.Session, *transporttest.Dialer, *transporttest.Conn) {
	t.Helper()
	dialer := transporttest.NewDialer()
	s, err := room.New(context.Background(),
		room.ManagerConnector("ws://chat.test/", session.WithDialer(dialer)),
		room.JoinRequest{Room: "general", Username: "alice"},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.Close)

	var conn *transporttest.Conn
	select {
	case conn = <-dialer.Dialed():
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for dial")
	}
	eventually(t, "connected", s.Connected)
	return s, dialer, conn
}

func decodeAll(t *testing.T, written [][]byte) []protocol.Frame {
	t.Helper()
	var frames []protocol.Frame
	for _, data := range written {
		f, err := protocol.JSONCodec{}.Decode(data)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		frames = append(frames, f)
	}
	return frames
}

func TestLine_SendsMessages(t *testing.T) {
	s, _, conn := connectedSession(t)
	out := &syncBuffer{}

	in := strings.NewReader("hello\n   \nsecond line\n/quit\nnot sent\n")
	if err := ui.NewLine(s, in, out).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := decodeAll(t, conn.WaitWritten(3, waitTimeout))
	want := []protocol.Frame{
		protocol.JoinFrame{Room: "general", Name: "alice"},
		protocol.SendFrame{Message: "hello"},
		protocol.SendFrame{Message: "second line"},
	}
	if len(got) != len(want) {
		t.Fatalf("wrote %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if !strings.Contains(out.String(), "Room: general | User: alice | Connected") {
		t.Errorf("output %q lacks the status line", out.String())
	}
}

func TestLine_PrintsMessages(t *testing.T) {
	s, _, conn := connectedSession(t)
	out := &syncBuffer{}
	ui.NewLine(s, strings.NewReader(""), out)

	for _, f := range []protocol.BroadcastFrame{
		{Name: "alice", Message: "hello"},
		{Name: "bob", Message: "hi alice"},
	} {
		data, err := protocol.JSONCodec{}.Encode(f)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		conn.Deliver(data)
	}

	eventually(t, "bob's message", func() bool { return strings.Contains(out.String(), "bob: hi alice") })
	if !strings.Contains(out.String(), "You: hello") {
		t.Errorf("output %q does not show the own message as You", out.String())
	}
}

func TestLine_JoinCommand(t *testing.T) {
	s, dialer, _ := connectedSession(t)
	out := &syncBuffer{}

	in := strings.NewReader("/join\n/join random\n/quit\n")
	if err := ui.NewLine(s, in, out).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := s.Room(); got != "random" {
		t.Errorf("Room() = %q, want random", got)
	}
	if got := s.Username(); got != "alice" {
		t.Errorf("Username() = %q, want alice", got)
	}
	if !strings.Contains(out.String(), "Usage: /join <room>") {
		t.Errorf("output %q lacks the usage hint", out.String())
	}

	select {
	case conn := <-dialer.Dialed():
		got := decodeAll(t, conn.WaitWritten(1, waitTimeout))
		if want := (protocol.JoinFrame{Room: "random", Name: "alice"}); len(got) != 1 || got[0] != want {
			t.Errorf("new connection wrote %+v, want %+v", got, want)
		}
	case <-time.After(waitTimeout):
		t.Fatal("switching room did not dial")
	}
}

func TestLine_Disconnected(t *testing.T) {
	s, _, conn := connectedSession(t)
	conn.Fail(context.Canceled)
	eventually(t, "disconnected", func() bool { return !s.Connected() })

	out := &syncBuffer{}
	in := strings.NewReader("hello\n/unknown\n")
	if err := ui.NewLine(s, in, out).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !strings.Contains(out.String(), "Not connected; message not sent") {
		t.Errorf("output %q lacks the disconnected notice", out.String())
	}
	if !strings.Contains(out.String(), "Unknown command /unknown") {
		t.Errorf("output %q lacks the unknown command notice", out.String())
	}
	if got := len(conn.Written()); got != 1 {
		t.Errorf("wrote %d frames, want only the join", got)
	}
}

func TestLine_AnnouncesCurrentState(t *testing.T) {
	s, _, _ := connectedSession(t)
	out := &syncBuffer{}

	if err := ui.NewLine(s, strings.NewReader("/quit\n"), out).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := strings.Count(out.String(), "*** Connected ***"); got != 1 {
		t.Errorf("output %q has %d connected notices, want 1", out.String(), got)
	}
}

func TestLine_CancelWhileReading(t *testing.T) {
	s, _, _ := connectedSession(t)
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- ui.NewLine(s, pr, &syncBuffer{}).Run(ctx)
	}()

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Run() did not return after cancel while input was idle")
	}
}
