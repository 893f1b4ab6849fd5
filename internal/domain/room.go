package domain

import (
	"errors"
	"strings"
)

type (
	RoomID    string
	SessionID string
)

const (
	MinRoomIDLen    = 3
	MaxRoomIDLen    = 50
	MinPasswordLen  = 4
	RoomIDPrefix    = "room-"
	RoomIDSuffixLen = 8
)

var (
	ErrRoomIDLength   = errors.New("room id must be 3-50 characters")
	ErrRoomIDCharset  = errors.New("room id may contain only letters, digits, hyphen and underscore")
	ErrPasswordLength = errors.New("room password must be at least 4 characters")
)

// Room is a named streaming session: one presenter, zero or more viewers.
type Room struct {
	ID              RoomID
	HasPassword     bool
	RequireApproval bool
	// AccessCode is issued by the server for password-protected rooms,
	// shown to the host for distribution.
	AccessCode string
}

// Security is the host's room policy. A password always forces approval;
// that is enforced before anything goes on the wire.
type Security struct {
	Password        string
	RequireApproval bool
}

func (s Security) Normalized() Security {
	if s.Password != "" {
		s.RequireApproval = true
	}
	return s
}

func (s Security) Validate() error {
	if s.Password != "" && len(s.Password) < MinPasswordLen {
		return ErrPasswordLength
	}
	return nil
}

// ValidateRoomID checks a host-supplied room id.
func ValidateRoomID(id RoomID) error {
	if len(id) < MinRoomIDLen || len(id) > MaxRoomIDLen {
		return ErrRoomIDLength
	}
	for _, r := range string(id) {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return ErrRoomIDCharset
		}
	}
	return nil
}

// NewRoomID builds a generated id from the fixed prefix and a random
// suffix. Collisions are the server's problem, not ours.
func NewRoomID(suffix string) RoomID {
	suffix = strings.ReplaceAll(suffix, "-", "")
	if len(suffix) > RoomIDSuffixLen {
		suffix = suffix[:RoomIDSuffixLen]
	}
	return RoomID(RoomIDPrefix + suffix)
}
