// Package transport owns the single persistent relay connection. One live
// session per Conn; the session reference lives in an atomically swapped
// slot so checks concurrent with teardown never see a half-closed object.
package transport

import (
	"context"
	"errors"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyConnected = errors.New("already connected")
	ErrConnectTimeout   = errors.New("connect timed out")
	ErrHandshakeFailed  = errors.New("handshake failed")
)

// TokenFunc supplies the access token appended to the dial URL. Returning
// false dials unauthenticated.
type TokenFunc func(ctx context.Context) (string, bool)

// CloseEvent is delivered exactly once per connection that actually
// opened — locally closed, remotely closed, or torn down by a write
// error — and once per failed connect attempt, so the channel sees every
// terminal transition.
type CloseEvent struct {
	Remote bool
	Err    error
}

type session struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

type Conn struct {
	signalURL    string
	token        TokenFunc
	dialTimeout  time.Duration
	writeTimeout time.Duration

	connecting atomic.Bool
	sess       atomic.Pointer[session]

	texts    chan []byte
	binaries chan []byte
	closed   chan CloseEvent
}

func New(signalURL string, token TokenFunc, dialTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{
		signalURL:    signalURL,
		token:        token,
		dialTimeout:  dialTimeout,
		writeTimeout: writeTimeout,
		texts:        make(chan []byte, 64),
		binaries:     make(chan []byte, 128),
		closed:       make(chan CloseEvent, 8),
	}
}

// Texts delivers inbound control frames, in arrival order. One consumer.
func (c *Conn) Texts() <-chan []byte { return c.texts }

// Binaries delivers inbound media frames; a stalled consumer loses the
// oldest frames, never the read loop.
func (c *Conn) Binaries() <-chan []byte { return c.binaries }

// Closed delivers one event per connection that opened.
func (c *Conn) Closed() <-chan CloseEvent { return c.closed }

func (c *Conn) IsConnected() bool { return c.sess.Load() != nil }

// Connect dials the relay. Concurrent calls race on a compare-and-set
// guard; the losers return ErrAlreadyConnected without side effects. A nil
// return means the session is open and the pumps are running.
func (c *Conn) Connect(ctx context.Context) error {
	if c.sess.Load() != nil {
		log.Warn().Str("module", "transport").Msg("connect ignored, session already open")
		return ErrAlreadyConnected
	}
	if !c.connecting.CompareAndSwap(false, true) {
		log.Warn().Str("module", "transport").Msg("connect ignored, dial in progress")
		return ErrAlreadyConnected
	}
	defer c.connecting.Store(false)

	// Re-check under the guard: a connect may have finished while we
	// were acquiring it.
	if c.sess.Load() != nil {
		return ErrAlreadyConnected
	}

	target, err := c.dialURL(ctx)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	ws, resp, err := dialer.DialContext(dialCtx, target, nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		c.notifyClosed(CloseEvent{Err: err})
		if isTimeout(err) {
			log.Error().Err(err).Str("module", "transport").Msg("connect timeout")
			return errors.Join(ErrConnectTimeout, err)
		}
		log.Error().Err(err).Str("module", "transport").Msg("handshake failed")
		return errors.Join(ErrHandshakeFailed, err)
	}

	s := &session{ws: ws}
	c.sess.Store(s)
	go c.readPump(s)
	log.Info().Str("module", "transport").Msg("connected")
	return nil
}

func (c *Conn) dialURL(ctx context.Context) (string, error) {
	u, err := url.Parse(c.signalURL)
	if err != nil {
		return "", errors.Join(ErrHandshakeFailed, err)
	}
	if c.token != nil {
		if token, ok := c.token(ctx); ok {
			q := u.Query()
			q.Set("token", token)
			u.RawQuery = q.Encode()
		}
	}
	return u.String(), nil
}

// SendText is a logged no-op when disconnected. A write error tears the
// session down exactly as a remote close would.
func (c *Conn) SendText(data []byte) {
	c.send(websocket.TextMessage, data)
}

func (c *Conn) SendBinary(data []byte) {
	c.send(websocket.BinaryMessage, data)
}

func (c *Conn) send(messageType int, data []byte) {
	s := c.sess.Load()
	if s == nil {
		log.Warn().Str("module", "transport").Int("kind", messageType).Msg("send dropped, not connected")
		return
	}
	s.writeMu.Lock()
	err := s.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err == nil {
		err = s.ws.WriteMessage(messageType, data)
	}
	s.writeMu.Unlock()
	if err != nil {
		// A broken pipe found on write is a disconnect like any other.
		log.Error().Err(err).Str("module", "transport").Msg("write failed, tearing down")
		c.teardown(s, CloseEvent{Remote: true, Err: err})
	}
}

// Disconnect closes the socket if open and clears the session slot.
func (c *Conn) Disconnect() {
	s := c.sess.Load()
	if s == nil {
		return
	}
	s.writeMu.Lock()
	_ = s.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	_ = s.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	c.teardown(s, CloseEvent{})
}

// teardown is the single exit path. The CAS on the session slot picks one
// winner between the read pump, a failed write and Disconnect, so the
// close notification fires exactly once.
func (c *Conn) teardown(s *session, ev CloseEvent) {
	if !c.sess.CompareAndSwap(s, nil) {
		return
	}
	_ = s.ws.Close()
	c.notifyClosed(ev)
	log.Info().Bool("remote", ev.Remote).Str("module", "transport").Msg("disconnected")
}

func (c *Conn) notifyClosed(ev CloseEvent) {
	select {
	case c.closed <- ev:
	default:
		log.Warn().Str("module", "transport").Msg("close event dropped, consumer stalled")
	}
}

func (c *Conn) readPump(s *session) {
	for {
		messageType, data, err := s.ws.ReadMessage()
		if err != nil {
			c.teardown(s, CloseEvent{Remote: true, Err: err})
			return
		}
		c.dispatch(messageType, data)
	}
}

// dispatch hands a frame to its channel. It never blocks and never lets a
// consumer problem unwind into the read loop.
func (c *Conn) dispatch(messageType int, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Str("module", "transport").Msg("dispatch panic suppressed")
		}
	}()
	switch messageType {
	case websocket.TextMessage:
		select {
		case c.texts <- data:
		default:
			log.Warn().Str("module", "transport").Msg("control frame dropped, consumer stalled")
		}
	case websocket.BinaryMessage:
		for {
			select {
			case c.binaries <- data:
				return
			default:
			}
			// Full: evict the oldest frame and retry.
			select {
			case <-c.binaries:
			default:
			}
		}
	default:
		log.Debug().Int("kind", messageType).Str("module", "transport").Msg("ignoring frame")
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
