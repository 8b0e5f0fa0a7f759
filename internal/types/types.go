package types

import (
	"time"

	"github.com/DoyleJ11/court-queue-board/internal/court"
	"github.com/DoyleJ11/court-queue-board/internal/syncer"
)

const (
	ClientVisible = "visible" // display came back to the foreground
	ClientRefresh = "refresh"
)

type ClientMessage struct {
	Type string `json:"type"`
}

type ServerMessage struct {
	Type  string `json:"type"` // "Snapshot" | "Error"
	Board *Board `json:"board,omitempty"`
	Error string `json:"error,omitempty"`
}

// Board is the display view of a snapshot.
type Board struct {
	Version    int           `json:"version"`
	Status     string        `json:"status"`
	StatusText string        `json:"status_text"`
	LastUpdate *time.Time    `json:"last_update,omitempty"`
	Courts     []court.Court `json:"courts"`
}

func NewBoard(s syncer.Snapshot) Board {
	b := Board{
		Version:    s.Version,
		Status:     string(s.Status),
		StatusText: s.Status.Message(),
		Courts:     s.Courts,
	}
	if b.Courts == nil {
		b.Courts = []court.Court{}
	}
	if !s.LastUpdate.IsZero() {
		t := s.LastUpdate
		b.LastUpdate = &t
	}
	return b
}

func SnapshotMessage(s syncer.Snapshot) ServerMessage {
	b := NewBoard(s)
	return ServerMessage{Type: "Snapshot", Board: &b}
}

func ErrorMessage(msg string) ServerMessage {
	return ServerMessage{Type: "Error", Error: msg}
}
