package domain

import "time"

// PendingViewer exists between a viewer-request event and the host's
// approve/deny decision.
type PendingViewer struct {
	SessionID   SessionID `json:"sessionId"`
	Username    string    `json:"username"`
	RequestedAt time.Time `json:"requestedAt"`
}
