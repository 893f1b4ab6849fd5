// Package protocol defines the JSON control vocabulary spoken over the
// relay connection. Text frames are objects with a "type" discriminator;
// binary frames carry media and never reach this package.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client → server message types.
const (
	TypeCreateRoom    = "create-room"
	TypeJoinRoom      = "join-room"
	TypeLeaveRoom     = "leave-room"
	TypeApproveViewer = "approve-viewer"
	TypeDenyViewer    = "deny-viewer"
	TypeKickViewer    = "kick-viewer"
	TypeBanViewer     = "ban-viewer"
)

// Server → client event types.
const (
	TypeConnected      = "connected"
	TypeRoomCreated    = "room-created"
	TypeRoomJoined     = "room-joined"
	TypeRoomLeft       = "room-left"
	TypeViewerJoined   = "viewer-joined"
	TypeViewerLeft     = "viewer-left"
	TypeViewerCount    = "viewer-count"
	TypeViewerRequest  = "viewer-request"
	TypeViewerApproved = "viewer-approved"
	TypeViewerDenied   = "viewer-denied"
	TypeViewerBanned   = "viewer-banned"
	TypeViewerKicked   = "viewer-kicked"
	TypePresenterJoin  = "presenter-joined"
	TypePresenterLeft  = "presenter-left"
	TypeError          = "error"
)

var ErrUnknownType = errors.New("unknown message type")

type CreateRoom struct {
	Type            string `json:"type"`
	RoomID          string `json:"roomId"`
	Password        string `json:"password,omitempty"`
	RequireApproval bool   `json:"requireApproval,omitempty"`
}

type JoinRoom struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	Password string `json:"password,omitempty"`
}

type LeaveRoom struct {
	Type string `json:"type"`
}

// ViewerAction covers approve/deny/kick/ban, which share a shape.
type ViewerAction struct {
	Type            string `json:"type"`
	ViewerSessionID string `json:"viewerSessionId"`
}

// Event is a decoded server message. Only the fields relevant to the
// event's type are populated.
type Event struct {
	Type string `json:"type"`

	SessionID       string `json:"sessionId,omitempty"`
	RoomID          string `json:"roomId,omitempty"`
	AccessCode      string `json:"accessCode,omitempty"`
	Role            string `json:"role,omitempty"`
	HasPresenter    bool   `json:"hasPresenter,omitempty"`
	Count           int    `json:"count,omitempty"`
	ViewerCount     int    `json:"viewerCount,omitempty"`
	ViewerSessionID string `json:"viewerSessionId,omitempty"`
	ViewerUsername  string `json:"viewerUsername,omitempty"`
	PendingCount    int    `json:"pendingCount,omitempty"`
	Message         string `json:"message,omitempty"`
}

var knownEvents = map[string]struct{}{
	TypeConnected:      {},
	TypeRoomCreated:    {},
	TypeRoomJoined:     {},
	TypeRoomLeft:       {},
	TypeViewerJoined:   {},
	TypeViewerLeft:     {},
	TypeViewerCount:    {},
	TypeViewerRequest:  {},
	TypeViewerApproved: {},
	TypeViewerDenied:   {},
	TypeViewerBanned:   {},
	TypeViewerKicked:   {},
	TypePresenterJoin:  {},
	TypePresenterLeft:  {},
	TypeError:          {},
}

// Decode parses a server text frame. Unknown types come back as
// ErrUnknownType so callers can log-and-drop without special cases.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("bad control frame: %w", err)
	}
	if _, ok := knownEvents[ev.Type]; !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownType, ev.Type)
	}
	return ev, nil
}

// Encode marshals an outbound message. The argument must already carry
// its type discriminator.
func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func NewCreateRoom(roomID, password string, requireApproval bool) CreateRoom {
	return CreateRoom{Type: TypeCreateRoom, RoomID: roomID, Password: password, RequireApproval: requireApproval}
}

func NewJoinRoom(roomID, password string) JoinRoom {
	return JoinRoom{Type: TypeJoinRoom, RoomID: roomID, Password: password}
}

func NewLeaveRoom() LeaveRoom {
	return LeaveRoom{Type: TypeLeaveRoom}
}

func NewViewerAction(action, viewerSessionID string) ViewerAction {
	return ViewerAction{Type: action, ViewerSessionID: viewerSessionID}
}
