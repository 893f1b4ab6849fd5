package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer upgrades, optionally records the token, and echoes text
// frames until the client goes away.
func echoServer(t *testing.T, upgrades *atomic.Int32, token *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != nil {
			token.Store(r.URL.Query().Get("token"))
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if upgrades != nil {
			upgrades.Add(1)
		}
		defer ws.Close()
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConcurrentConnectSingleWinner(t *testing.T) {
	var upgrades atomic.Int32
	srv := echoServer(t, &upgrades, nil)
	c := New(wsURL(srv), nil, 2*time.Second, time.Second)
	defer c.Disconnect()

	const racers = 16
	var wg sync.WaitGroup
	var oks, rejected atomic.Int32
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := c.Connect(context.Background()); {
			case err == nil:
				oks.Add(1)
			case errors.Is(err, ErrAlreadyConnected):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if oks.Load() != 1 {
		t.Fatalf("winners = %d, want exactly 1", oks.Load())
	}
	if rejected.Load() != racers-1 {
		t.Fatalf("rejected = %d, want %d", rejected.Load(), racers-1)
	}
	if upgrades.Load() != 1 {
		t.Fatalf("server saw %d upgrades, want 1", upgrades.Load())
	}
}

func TestSendWhileDisconnectedIsNoOp(t *testing.T) {
	c := New("ws://localhost:0", nil, time.Second, time.Second)
	// Must not panic, must not emit anything.
	c.SendText([]byte(`{"type":"leave-room"}`))
	c.SendBinary([]byte{0x00, 0x01})
	select {
	case ev := <-c.Closed():
		t.Fatalf("unexpected close event: %+v", ev)
	default:
	}
}

func TestConnectTimeoutIsTyped(t *testing.T) {
	// A listener that accepts and never answers the handshake.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	c := New("ws://"+ln.Addr().String(), nil, 200*time.Millisecond, time.Second)
	err = c.Connect(context.Background())
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("err = %v, want ErrConnectTimeout", err)
	}
	// Failure path still reports through the closed channel.
	select {
	case <-c.Closed():
	case <-time.After(time.Second):
		t.Fatal("no close event after failed connect")
	}
}

func TestHandshakeRejectionIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(wsURL(srv), nil, time.Second, time.Second)
	err := c.Connect(context.Background())
	if !errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("err = %v, want ErrHandshakeFailed", err)
	}
	if errors.Is(err, ErrConnectTimeout) {
		t.Fatal("refusal must not be reported as a timeout")
	}
}

func TestTokenAppendedToDialURL(t *testing.T) {
	var token atomic.Value
	srv := echoServer(t, nil, &token)
	c := New(wsURL(srv), func(ctx context.Context) (string, bool) {
		return "tok-123", true
	}, time.Second, time.Second)
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := token.Load(); got != "tok-123" {
		t.Fatalf("server saw token %v", got)
	}
}

func TestEchoPreservesTextOrder(t *testing.T) {
	srv := echoServer(t, nil, nil)
	c := New(wsURL(srv), nil, time.Second, time.Second)
	defer c.Disconnect()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	msgs := []string{`{"type":"a"}`, `{"type":"b"}`, `{"type":"c"}`}
	for _, m := range msgs {
		c.SendText([]byte(m))
	}
	for _, want := range msgs {
		select {
		case got := <-c.Texts():
			if string(got) != want {
				t.Fatalf("got %q, want %q", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestRemoteCloseFiresExactlyOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.Close() // immediate server-side drop
	}))
	defer srv.Close()

	c := New(wsURL(srv), nil, time.Second, time.Second)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-c.Closed():
		if !ev.Remote {
			t.Fatalf("expected remote close, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no close event after server drop")
	}
	if c.IsConnected() {
		t.Fatal("session must be cleared after remote close")
	}

	// A follow-up local disconnect finds no session and must not
	// double-fire.
	c.Disconnect()
	select {
	case ev := <-c.Closed():
		t.Fatalf("second close event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReconnectAfterDisconnect(t *testing.T) {
	srv := echoServer(t, nil, nil)
	c := New(wsURL(srv), nil, time.Second, time.Second)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.Disconnect()
	<-c.Closed()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	c.Disconnect()
}
