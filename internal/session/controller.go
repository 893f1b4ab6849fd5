// Package session drives the room protocol over the relay connection:
// one controller per role, create/join/approve/kick/ban exchanges, and
// ownership of the media pipeline tied to room membership.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vijayvir/ScreenAiClient-sub000/internal/domain"
	"github.com/vijayvir/ScreenAiClient-sub000/internal/protocol"
	"github.com/vijayvir/ScreenAiClient-sub000/internal/transport"
)

type Role int

const (
	RoleHost Role = iota
	RoleViewer
)

func (r Role) String() string {
	if r == RoleHost {
		return "host"
	}
	return "viewer"
}

type State int

const (
	StateIdle State = iota
	StateConnected
	StateAwaitingRoom
	StateActive // hosting or viewing, depending on role
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateAwaitingRoom:
		return "awaiting-room"
	default:
		return "active"
	}
}

var (
	ErrWrongRole  = errors.New("operation not valid for this role")
	ErrWrongState = errors.New("operation not valid in this state")
)

// Pipeline is the capture (host) or playback (viewer) machinery the
// controller owns while a room is active. At most one instance is alive
// per controller.
type Pipeline interface {
	Run(ctx context.Context)
	Stop(timeout time.Duration)
}

// Conn is the slice of the transport the controller needs; the real
// *transport.Conn satisfies it.
type Conn interface {
	SendText(data []byte)
	Texts() <-chan []byte
	Closed() <-chan transport.CloseEvent
}

const pipelineStopTimeout = 3 * time.Second

// Snapshot is a copy of the controller's visible state; callers never see
// live references.
type Snapshot struct {
	Role           string                 `json:"role"`
	State          string                 `json:"state"`
	SessionID      string                 `json:"sessionId,omitempty"`
	RoomID         string                 `json:"roomId,omitempty"`
	AccessCode     string                 `json:"accessCode,omitempty"`
	ViewerCount    int                    `json:"viewerCount"`
	HasPresenter   bool                   `json:"hasPresenter"`
	PendingViewers []domain.PendingViewer `json:"pendingViewers,omitempty"`
	LastError      string                 `json:"lastError,omitempty"`
}

type Controller struct {
	role        Role
	conn        Conn
	newPipeline func() Pipeline

	mu           sync.Mutex
	state        State
	sessionID    string
	roomID       domain.RoomID
	accessCode   string
	viewerCount  int
	hasPresenter bool
	pending      map[domain.SessionID]domain.PendingViewer
	lastError    string

	pipeline   Pipeline
	pipeCancel context.CancelFunc

	now func() time.Time
}

func NewController(role Role, conn Conn, newPipeline func() Pipeline) *Controller {
	return &Controller{
		role:        role,
		conn:        conn,
		newPipeline: newPipeline,
		pending:     make(map[domain.SessionID]domain.PendingViewer),
		now:         time.Now,
	}
}

// Connected moves Idle → Connected once the transport is up.
func (c *Controller) Connected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle {
		c.state = StateConnected
	}
}

// CreateRoom sends create-room and waits for the server's answer via the
// event loop. An empty id gets a generated one. A password forces
// approval before anything goes on the wire.
func (c *Controller) CreateRoom(roomID string, sec domain.Security) (domain.RoomID, error) {
	if c.role != RoleHost {
		return "", ErrWrongRole
	}
	id := domain.RoomID(roomID)
	if roomID == "" {
		id = domain.NewRoomID(uuid.NewString())
	} else if err := domain.ValidateRoomID(id); err != nil {
		return "", err
	}
	if err := sec.Validate(); err != nil {
		return "", err
	}
	sec = sec.Normalized()

	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return "", ErrWrongState
	}
	c.state = StateAwaitingRoom
	c.roomID = id
	c.mu.Unlock()

	raw, err := protocol.Encode(protocol.NewCreateRoom(string(id), sec.Password, sec.RequireApproval))
	if err != nil {
		return "", err
	}
	c.conn.SendText(raw)
	log.Info().Str("module", "session").Str("room", string(id)).Bool("approval", sec.RequireApproval).Msg("create-room sent")
	return id, nil
}

// JoinRoom sends join-room; the viewer stays AwaitingRoom until the
// server answers or the caller gives up.
func (c *Controller) JoinRoom(roomID, password string) error {
	if c.role != RoleViewer {
		return ErrWrongRole
	}
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrWrongState
	}
	c.state = StateAwaitingRoom
	c.roomID = domain.RoomID(roomID)
	c.mu.Unlock()

	raw, err := protocol.Encode(protocol.NewJoinRoom(roomID, password))
	if err != nil {
		return err
	}
	c.conn.SendText(raw)
	log.Info().Str("module", "session").Str("room", roomID).Msg("join-room sent")
	return nil
}

// Leave exits the current room; the connection stays open.
func (c *Controller) Leave() {
	raw, _ := protocol.Encode(protocol.NewLeaveRoom())
	c.conn.SendText(raw)
	c.exitRoom("left room")
}

func (c *Controller) ApproveViewer(sid domain.SessionID) error {
	return c.viewerAction(protocol.TypeApproveViewer, sid, true)
}

func (c *Controller) DenyViewer(sid domain.SessionID) error {
	return c.viewerAction(protocol.TypeDenyViewer, sid, true)
}

func (c *Controller) KickViewer(sid domain.SessionID) error {
	return c.viewerAction(protocol.TypeKickViewer, sid, false)
}

func (c *Controller) BanViewer(sid domain.SessionID) error {
	return c.viewerAction(protocol.TypeBanViewer, sid, false)
}

func (c *Controller) viewerAction(action string, sid domain.SessionID, resolvesPending bool) error {
	if c.role != RoleHost {
		return ErrWrongRole
	}
	raw, err := protocol.Encode(protocol.NewViewerAction(action, string(sid)))
	if err != nil {
		return err
	}
	c.conn.SendText(raw)
	if resolvesPending {
		c.mu.Lock()
		delete(c.pending, sid)
		c.mu.Unlock()
	}
	log.Info().Str("module", "session").Str("action", action).Str("viewer", string(sid)).Msg("viewer action sent")
	return nil
}

// Run is the dispatch loop; all protocol-driven state changes happen
// here, in transport delivery order.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.stopPipeline()
			return
		case raw, ok := <-c.conn.Texts():
			if !ok {
				return
			}
			ev, err := protocol.Decode(raw)
			if err != nil {
				// Unparseable frames are logged and dropped, state
				// unchanged.
				log.Warn().Err(err).Str("module", "session").Msg("control frame dropped")
				continue
			}
			c.handle(ev)
		case ev := <-c.conn.Closed():
			log.Info().Bool("remote", ev.Remote).Str("module", "session").Msg("transport closed")
			c.transportClosed()
		}
	}
}

func (c *Controller) handle(ev protocol.Event) {
	switch ev.Type {
	case protocol.TypeConnected:
		c.mu.Lock()
		c.sessionID = ev.SessionID
		if c.state == StateIdle {
			c.state = StateConnected
		}
		c.mu.Unlock()

	case protocol.TypeRoomCreated:
		c.handleRoomEstablished(ev, RoleHost)

	case protocol.TypeRoomJoined:
		c.handleRoomEstablished(ev, RoleViewer)

	case protocol.TypeRoomLeft:
		c.exitRoom("room-left")

	case protocol.TypeViewerJoined:
		c.mu.Lock()
		c.viewerCount++
		c.mu.Unlock()

	case protocol.TypeViewerLeft:
		c.mu.Lock()
		if c.viewerCount > 0 {
			c.viewerCount--
		}
		c.mu.Unlock()

	case protocol.TypeViewerCount:
		c.mu.Lock()
		c.viewerCount = ev.Count
		c.mu.Unlock()

	case protocol.TypeViewerRequest:
		c.mu.Lock()
		c.pending[domain.SessionID(ev.ViewerSessionID)] = domain.PendingViewer{
			SessionID:   domain.SessionID(ev.ViewerSessionID),
			Username:    ev.ViewerUsername,
			RequestedAt: c.now(),
		}
		c.mu.Unlock()
		log.Info().Str("module", "session").Str("viewer", ev.ViewerUsername).Int("pending", ev.PendingCount).Msg("viewer requested access")

	case protocol.TypeViewerApproved, protocol.TypeViewerDenied:
		c.mu.Lock()
		delete(c.pending, domain.SessionID(ev.ViewerSessionID))
		if ev.ViewerCount > 0 {
			c.viewerCount = ev.ViewerCount
		}
		c.mu.Unlock()

	case protocol.TypeViewerBanned, protocol.TypeViewerKicked:
		c.mu.Lock()
		if ev.ViewerCount > 0 {
			c.viewerCount = ev.ViewerCount
		}
		c.mu.Unlock()

	case protocol.TypePresenterJoin:
		c.mu.Lock()
		c.hasPresenter = true
		c.mu.Unlock()

	case protocol.TypePresenterLeft:
		if c.role == RoleViewer {
			// Stream over; connection stays open for another join.
			c.exitRoom("presenter left")
		} else {
			c.mu.Lock()
			c.hasPresenter = false
			c.mu.Unlock()
		}

	case protocol.TypeError:
		// Status only. A room-not-found while joining leaves the caller
		// AwaitingRoom until they give up.
		c.mu.Lock()
		c.lastError = ev.Message
		c.mu.Unlock()
		log.Warn().Str("module", "session").Str("message", ev.Message).Msg("server error event")
	}
}

// handleRoomEstablished covers room-created (host) and room-joined
// (viewer). Outside AwaitingRoom the event is ignored so a duplicate can
// never start a second pipeline.
func (c *Controller) handleRoomEstablished(ev protocol.Event, want Role) {
	if c.role != want {
		log.Warn().Str("module", "session").Str("type", ev.Type).Str("role", c.role.String()).Msg("event for the other role ignored")
		return
	}
	c.mu.Lock()
	if c.state != StateAwaitingRoom {
		c.mu.Unlock()
		log.Warn().Str("module", "session").Str("type", ev.Type).Str("state", c.state.String()).Msg("unexpected room event ignored")
		return
	}
	c.state = StateActive
	if ev.RoomID != "" {
		c.roomID = domain.RoomID(ev.RoomID)
	}
	c.accessCode = ev.AccessCode
	c.viewerCount = ev.ViewerCount
	c.hasPresenter = ev.HasPresenter || c.role == RoleHost
	c.lastError = ""
	c.mu.Unlock()

	c.startPipeline()
	log.Info().Str("module", "session").Str("room", ev.RoomID).Str("role", c.role.String()).Msg("room active")
}

func (c *Controller) startPipeline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.newPipeline == nil {
		return
	}
	if c.pipeline != nil {
		log.Warn().Str("module", "session").Msg("pipeline already running, not starting another")
		return
	}
	p := c.newPipeline()
	ctx, cancel := context.WithCancel(context.Background())
	c.pipeline = p
	c.pipeCancel = cancel
	go p.Run(ctx)
}

func (c *Controller) stopPipeline() {
	c.mu.Lock()
	p := c.pipeline
	cancel := c.pipeCancel
	c.pipeline = nil
	c.pipeCancel = nil
	c.mu.Unlock()
	if p == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	p.Stop(pipelineStopTimeout)
}

// exitRoom tears the pipeline down and returns to Connected.
func (c *Controller) exitRoom(reason string) {
	c.stopPipeline()
	c.mu.Lock()
	if c.state != StateIdle {
		c.state = StateConnected
	}
	c.roomID = ""
	c.accessCode = ""
	c.viewerCount = 0
	c.hasPresenter = false
	c.pending = make(map[domain.SessionID]domain.PendingViewer)
	c.mu.Unlock()
	log.Info().Str("module", "session").Str("reason", reason).Msg("room exited")
}

func (c *Controller) transportClosed() {
	c.stopPipeline()
	c.mu.Lock()
	c.state = StateIdle
	c.roomID = ""
	c.accessCode = ""
	c.viewerCount = 0
	c.hasPresenter = false
	c.pending = make(map[domain.SessionID]domain.PendingViewer)
	c.mu.Unlock()
}

// PendingViewers returns a copy sorted by request time.
func (c *Controller) PendingViewers() []domain.PendingViewer {
	c.mu.Lock()
	out := make([]domain.PendingViewer, 0, len(c.pending))
	for _, pv := range c.pending {
		out = append(out, pv)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) AccessCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessCode
}

func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		Role:         c.role.String(),
		State:        c.state.String(),
		SessionID:    c.sessionID,
		RoomID:       string(c.roomID),
		AccessCode:   c.accessCode,
		ViewerCount:  c.viewerCount,
		HasPresenter: c.hasPresenter,
		LastError:    c.lastError,
	}
	c.mu.Unlock()
	snap.PendingViewers = c.PendingViewers()
	return snap
}
