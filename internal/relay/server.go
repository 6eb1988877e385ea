package relay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/omochice/room-chat/internal/transport/tcp"
	"github.com/omochice/room-chat/internal/transport/ws"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server accepts chat connections on a single port. HTTP requests are
// upgraded to WebSocket; anything else is served as length-prefixed TCP.
type Server struct {
	address  string
	hub      *Hub
	logger   *zap.Logger
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer creates a Server listening on address and feeding hub.
func NewServer(address string, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		address: address,
		hub:     hub,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins listening and accepting connections in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener
	s.logger.Info("relay started", zap.String("addr", listener.Addr().String()))

	s.wg.Add(1)
	go s.acceptConnections()
	return nil
}

// Stop closes the listener and every member connection, then waits for
// them to finish.
func (s *Server) Stop() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	s.logger.Info("relay stopped")
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Hub returns the hub the server feeds.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("failed to accept connection", zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection determines whether the connection is HTTP (WebSocket)
// or TCP.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	stop := context.AfterFunc(s.ctx, func() { _ = conn.Close() })
	proto, reader, err := detectProtocol(conn)
	stop()
	if err != nil {
		s.logger.Debug("failed to peek connection", zap.Error(err))
		_ = conn.Close()
		return
	}

	switch proto {
	case protocolHTTP:
		s.serveHTTP(&bufferedConn{Conn: conn, reader: reader})
	default:
		s.logger.Debug("serving tcp member", zap.String("remote", conn.RemoteAddr().String()))
		s.hub.Serve(s.ctx, tcp.NewConnWithReader(conn, reader))
	}
}

// serveHTTP runs an HTTP server over one connection so the upgrade can
// happen on the shared port. It returns once the request is handled.
func (s *Server) serveHTTP(conn net.Conn) {
	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		defer finish()
		s.handleWebSocket(w, r)
	})

	httpServer := &http.Server{
		Handler: mux,
		ConnState: func(_ net.Conn, state http.ConnState) {
			if state == http.StateClosed {
				finish()
			}
		},
	}
	_ = httpServer.Serve(&singleConnListener{conn: conn})

	select {
	case <-done:
	case <-s.ctx.Done():
		_ = conn.Close()
		<-done
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	s.hub.Serve(s.ctx, ws.NewConn(conn, s.hub.codec.Binary()))
}

type protocolType int

const (
	protocolTCP protocolType = iota
	protocolHTTP
)

var httpMethods = [][]byte{
	[]byte("GET "),
	[]byte("POST"),
	[]byte("PUT "),
	[]byte("HEAD"),
	[]byte("OPTI"),
	[]byte("PATC"),
	[]byte("DELE"),
}

// detectProtocol peeks at the first bytes to determine protocol type.
// A length-prefixed frame starts with a size far below any ASCII method.
func detectProtocol(conn net.Conn) (protocolType, *bufio.Reader, error) {
	reader := bufio.NewReader(conn)

	peek, err := reader.Peek(4)
	if err != nil {
		return protocolTCP, reader, err
	}

	for _, method := range httpMethods {
		if bytes.HasPrefix(peek, method) {
			return protocolHTTP, reader, nil
		}
	}
	return protocolTCP, reader, nil
}

// bufferedConn wraps a net.Conn with a bufio.Reader to preserve peeked data.
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (bc *bufferedConn) Read(p []byte) (int, error) {
	return bc.reader.Read(p)
}

// singleConnListener is a net.Listener that returns a single connection.
type singleConnListener struct {
	conn net.Conn
	once sync.Once
}

func (l *singleConnListener) Accept() (net.Conn, error) {
	var c net.Conn
	l.once.Do(func() {
		c = l.conn
	})
	if c != nil {
		return c, nil
	}
	return nil, io.EOF
}

func (l *singleConnListener) Close() error {
	return nil
}

func (l *singleConnListener) Addr() net.Addr {
	return l.conn.LocalAddr()
}
