package syncer

import (
	"time"

	"github.com/DoyleJ11/court-queue-board/internal/court"
)

type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
)

// Message is the operator-facing text for the connectivity indicator.
func (s Status) Message() string {
	switch s {
	case StatusConnecting:
		return "Connecting to server..."
	case StatusConnected:
		return "Live"
	case StatusReconnecting:
		return "Reconnecting..."
	case StatusDisconnected:
		return "Connection lost, showing last known data"
	default:
		return string(s)
	}
}

// Snapshot is one published state of the board. Snapshots are never modified
// after publication; callers must treat Courts as read-only.
type Snapshot struct {
	Version    int
	Status     Status
	LastUpdate time.Time // zero until the first push event
	Courts     []court.Court
}

// Court looks up a court by id.
func (s Snapshot) Court(id court.ID) (court.Court, bool) {
	for _, c := range s.Courts {
		if c.ID == id {
			return c, true
		}
	}
	return court.Court{}, false
}
