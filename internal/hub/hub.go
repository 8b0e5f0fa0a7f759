// Package hub fans synchronized snapshots out to connected displays.
package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/court-queue-board/internal/syncer"
)

type HubMsg interface{ isHubMsg() }

type Join struct {
	ClientID string
	Outbox   chan syncer.Snapshot // where this display wants snapshots
}

type Leave struct{ ClientID string }

type ShutdownHub struct{}

type GetState struct {
	Reply chan View
}

type View struct {
	Version    int
	NumClients int
}

func (Join) isHubMsg()        {}
func (Leave) isHubMsg()       {}
func (ShutdownHub) isHubMsg() {}
func (GetState) isHubMsg()    {}

type Hub struct {
	inbox   chan HubMsg
	source  <-chan syncer.Snapshot
	current syncer.Snapshot
	clients map[string]chan syncer.Snapshot
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewHub starts broadcasting every snapshot read from source, starting from initial.
func NewHub(parent context.Context, initial syncer.Snapshot, source <-chan syncer.Snapshot, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		source:  source,
		current: initial,
		clients: make(map[string]chan syncer.Snapshot),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Send posts m unless the hub has stopped.
func (h *Hub) Send(m HubMsg) {
	select {
	case h.inbox <- m:
	case <-h.ctx.Done():
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case snap, ok := <-h.source:
			if !ok {
				h.source = nil // synchronizer stopped; keep serving the last snapshot
				break
			}
			if snap.Version <= h.current.Version {
				break
			}
			h.current = snap
			h.broadcast(snap)

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Join:
				// Register display + send current snapshot immediately
				h.clients[msg.ClientID] = msg.Outbox
				h.deliver(msg.ClientID, msg.Outbox, h.current)

			case Leave:
				delete(h.clients, msg.ClientID)

			case GetState:
				msg.Reply <- View{Version: h.current.Version, NumClients: len(h.clients)}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for id, ch := range h.clients {
		close(ch) // Tell display no more snapshots
		delete(h.clients, id)
	}
	h.cancel()
}

func (h *Hub) broadcast(snap syncer.Snapshot) {
	for id, ch := range h.clients {
		h.deliver(id, ch, snap)
	}
}

func (h *Hub) deliver(id string, ch chan syncer.Snapshot, snap syncer.Snapshot) {
	select {
	case ch <- snap:
	default:
		// Display is slow/full - drop it.
		h.log.Info("dropping slow display", zap.String("client_id", id))
		close(ch)
		delete(h.clients, id)
	}
}
