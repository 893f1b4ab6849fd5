// Package client assembles the pieces: credential store, auth client,
// relay connection, room controller and media loops.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/vijayvir/ScreenAiClient-sub000/internal/auth"
	"github.com/vijayvir/ScreenAiClient-sub000/internal/codec"
	"github.com/vijayvir/ScreenAiClient-sub000/internal/config"
	"github.com/vijayvir/ScreenAiClient-sub000/internal/creds"
	"github.com/vijayvir/ScreenAiClient-sub000/internal/domain"
	"github.com/vijayvir/ScreenAiClient-sub000/internal/media"
	"github.com/vijayvir/ScreenAiClient-sub000/internal/session"
	"github.com/vijayvir/ScreenAiClient-sub000/internal/transport"
)

type App struct {
	Cfg   *config.Config
	Store *creds.Store
	Auth  *auth.Client
	Conn  *transport.Conn

	// Codec collaborators; loopback stand-ins unless the embedder
	// provides real ones.
	Source   codec.Source
	Encoder  codec.Encoder
	Decoder  codec.Decoder
	Renderer codec.Renderer

	mu      sync.Mutex
	sendBuf *media.SendBuffer
	recvAcc *media.RecvAccumulator
	jitter  *media.JitterBuffer
	ctl     *session.Controller
}

func New(cfg *config.Config) *App {
	store := creds.NewStore(cfg.CredsPath)
	store.Load()

	authClient := auth.NewClient(cfg.ServerURL, store, cfg.HTTPTimeout)
	authClient.OnAuthRequired = func() {
		log.Warn().Str("module", "client").Msg("authentication required, please log in again")
	}

	conn := transport.New(cfg.SignalURL, func(ctx context.Context) (string, bool) {
		return authClient.GetValidAccessToken(ctx)
	}, cfg.ConnectTimeout, cfg.WriteTimeout)

	return &App{
		Cfg:      cfg,
		Store:    store,
		Auth:     authClient,
		Conn:     conn,
		Source:   codec.NewLoopbackSource(nil),
		Encoder:  codec.LoopbackEncoder{},
		Decoder:  &codec.LoopbackDecoder{},
		Renderer: nopRenderer{},
	}
}

// Host connects, creates the room and streams until ctx is cancelled.
func (a *App) Host(ctx context.Context, roomID string, sec domain.Security) error {
	if !a.Store.IsLoggedIn() {
		return fmt.Errorf("not logged in")
	}
	if err := a.Conn.Connect(ctx); err != nil {
		return err
	}
	defer a.Conn.Disconnect()

	a.ctl = session.NewController(session.RoleHost, a.Conn, a.newCapturePipeline)
	go a.ctl.Run(ctx)
	a.ctl.Connected()

	id, err := a.ctl.CreateRoom(roomID, sec)
	if err != nil {
		return err
	}
	log.Info().Str("module", "client").Str("room", string(id)).Msg("hosting")

	<-ctx.Done()
	a.ctl.Leave()
	return nil
}

// View connects, joins the room and renders until ctx is cancelled.
func (a *App) View(ctx context.Context, roomID, password string) error {
	if !a.Store.IsLoggedIn() {
		return fmt.Errorf("not logged in")
	}
	if err := a.Conn.Connect(ctx); err != nil {
		return err
	}
	defer a.Conn.Disconnect()

	a.jitter = media.NewJitterBuffer(a.Cfg.JitterCap)
	a.recvAcc = media.NewRecvAccumulator(media.RecvConfig{
		QueueCap:  a.Cfg.RecvQueueCap,
		LowWater:  a.Cfg.RecvLowWater,
		HighWater: a.Cfg.RecvHighWater,
		MinFlush:  a.Cfg.RecvMinFlush,
		MaxWait:   a.Cfg.RecvMaxWait,
	}, a.jitter.Push)

	a.ctl = session.NewController(session.RoleViewer, a.Conn, func() session.Pipeline {
		return newPlaybackPipeline(a.Conn.Binaries(), a.recvAcc, a.jitter, a.Decoder, a.Renderer)
	})
	go a.ctl.Run(ctx)
	a.ctl.Connected()

	if err := a.ctl.JoinRoom(roomID, password); err != nil {
		return err
	}
	log.Info().Str("module", "client").Str("room", roomID).Msg("viewing")

	<-ctx.Done()
	a.ctl.Leave()
	return nil
}

// newCapturePipeline builds a fresh send buffer every time: a SendBuffer
// is single-use, and the controller may start a pipeline again after
// room-left without reconnecting. The latest instance is kept for Status.
func (a *App) newCapturePipeline() session.Pipeline {
	buf := media.NewSendBuffer(media.SendConfig{
		FrameInterval: a.Cfg.FrameInterval,
		GOPFrames:     a.Cfg.GOPFrames,
		QueueCap:      a.Cfg.SendQueueCap,
	}, a.Source, a.Encoder, a.Conn.SendBinary)
	a.mu.Lock()
	a.sendBuf = buf
	a.mu.Unlock()
	return &capturePipeline{buf: buf}
}

// Close releases background resources (refresh timer, socket).
func (a *App) Close() {
	a.Auth.Stop()
	a.Conn.Disconnect()
}

// Status describes the client for display and diagnostics.
type Status struct {
	LoggedIn  bool               `json:"loggedIn"`
	Username  string             `json:"username,omitempty"`
	Connected bool               `json:"connected"`
	Session   *session.Snapshot  `json:"session,omitempty"`
	Send      *media.SendStats   `json:"send,omitempty"`
	Recv      *media.RecvStats   `json:"recv,omitempty"`
	Jitter    *media.JitterStats `json:"jitter,omitempty"`
}

func (a *App) Status() Status {
	st := Status{
		LoggedIn:  a.Store.IsLoggedIn(),
		Username:  a.Store.Username(),
		Connected: a.Conn.IsConnected(),
	}
	if a.ctl != nil {
		snap := a.ctl.Snapshot()
		st.Session = &snap
	}
	a.mu.Lock()
	sendBuf := a.sendBuf
	a.mu.Unlock()
	if sendBuf != nil {
		s := sendBuf.Stats()
		st.Send = &s
	}
	if a.recvAcc != nil {
		s := a.recvAcc.Stats()
		st.Recv = &s
	}
	if a.jitter != nil {
		s := a.jitter.Stats()
		st.Jitter = &s
	}
	return st
}

type nopRenderer struct{}

func (nopRenderer) Render(codec.Frame) error { return nil }
func (nopRenderer) Close() error             { return nil }
