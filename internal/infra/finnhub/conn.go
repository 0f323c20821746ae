package finnhub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trade_ingest/internal/domain"
)

// Frame is one inbound websocket data frame.
type Frame struct {
	Type    int // websocket.TextMessage or websocket.BinaryMessage
	Payload []byte
}

// IsText reports whether the frame was sent as text.
func (f Frame) IsText() bool {
	return f.Type == websocket.TextMessage
}

// DialOptions tunes the handshake and per-operation deadlines. Zero disables a deadline.
type DialOptions struct {
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	Header           http.Header
}

type writeRequest struct {
	payload []byte
	result  chan error
}

// Session owns one websocket connection split into an inbound frame channel
// and a single writer goroutine. All writes go through Write.
type Session struct {
	conn     *websocket.Conn
	endpoint string
	opts     DialOptions

	inbound  chan Frame
	outbound chan writeRequest
	done     chan struct{}

	mu      sync.Mutex
	err     error
	closing bool

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Dial performs the websocket handshake and starts the read and write pumps.
// Failures are returned as *domain.ConnectionError.
func Dial(ctx context.Context, endpoint string, opts DialOptions) (*Session, error) {
	stripped := StripQuery(endpoint)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, opts.Header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			// Bad token: redialing cannot help.
			return nil, domain.NewFatalConnectionError("dial", stripped,
				fmt.Errorf("%w: %w", domain.ErrConnectionFailed, &domain.HandshakeStatusError{StatusCode: resp.StatusCode}))
		}
		return nil, domain.NewConnectionError("dial", stripped, fmt.Errorf("%w: %w", domain.ErrConnectionFailed, err))
	}
	conn.SetReadLimit(maxFrameBytes)

	s := &Session{
		conn:     conn,
		endpoint: stripped,
		opts:     opts,
		inbound:  make(chan Frame, inboundBuffer),
		outbound: make(chan writeRequest),
		done:     make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readPump()
	go s.writePump()

	return s, nil
}

// Endpoint returns the endpoint with its query string removed.
func (s *Session) Endpoint() string {
	return s.endpoint
}

// Inbound yields frames in wire order. Closed when the session ends.
func (s *Session) Inbound() <-chan Frame {
	return s.inbound
}

// Done is closed once the session stops reading or is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session ended, or nil while it is running.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Write queues payload as a text frame and waits for the writer's result.
func (s *Session) Write(ctx context.Context, payload []byte) error {
	req := writeRequest{payload: payload, result: make(chan error, 1)}

	select {
	case s.outbound <- req:
	case <-s.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-s.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close sends a close frame, tears down the connection and waits for the pumps.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	var err error
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		err = s.conn.Close()
		s.finish(domain.ErrSessionClosed)
	})
	s.wg.Wait()
	return err
}

func (s *Session) finish(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.mu.Unlock()
}

func (s *Session) readPump() {
	defer s.wg.Done()
	defer close(s.inbound)

	for {
		if s.opts.ReadTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		}

		msgType, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				s.finish(domain.ErrSessionClosed)
			} else {
				s.finish(domain.NewConnectionError("read", s.endpoint, err))
				s.conn.Close()
			}
			return
		}

		select {
		case s.inbound <- Frame{Type: msgType, Payload: payload}:
		case <-s.done:
			return
		}
	}
}

func (s *Session) writePump() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case req := <-s.outbound:
			if s.opts.WriteTimeout > 0 {
				s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			}
			req.result <- s.conn.WriteMessage(websocket.TextMessage, req.payload)
		}
	}
}

// StripQuery removes the query string and fragment (API tokens live there).
func StripQuery(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		base, _, _ := strings.Cut(endpoint, "?")
		return base
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	return u.String()
}

// IsClosed reports whether err marks a session that is already gone.
func IsClosed(err error) bool {
	return errors.Is(err, domain.ErrSessionClosed) || errors.Is(err, websocket.ErrCloseSent)
}
