package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/court-queue-board/internal/hub"
	"github.com/DoyleJ11/court-queue-board/internal/syncer"
	"github.com/DoyleJ11/court-queue-board/internal/types"
)

const closeReason = "board updates stopped, reconnect"

// Signaler receives refresh hints from displays. *syncer.Synchronizer satisfies it.
type Signaler interface {
	OnVisible()
	Refresh()
}

func Handler(h *hub.Hub, sig Signaler, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan syncer.Snapshot, 8)
		clientID := uuid.NewString()
		clog := log.With(zap.String("client_id", clientID))

		h.Send(hub.Join{ClientID: clientID, Outbox: out})
		defer h.Send(hub.Leave{ClientID: clientID})
		clog.Info("display connected")

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case <-writeCtx.Done():
					return
				case snap, ok := <-out:
					if !ok {
						// hub dropped us or shut down; either way reconnecting helps
						conn.Close(websocket.StatusTryAgainLater, closeReason)
						return
					}
					if err := write(writeCtx, conn, types.SnapshotMessage(snap)); err != nil {
						clog.Debug("websocket write failed", zap.Error(err))
						return
					}
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					clog.Info("display disconnected")
				default:
					clog.Debug("websocket read ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = write(r.Context(), conn, types.ErrorMessage("bad json"))
				continue
			}

			switch cm.Type {
			case types.ClientVisible:
				sig.OnVisible()
			case types.ClientRefresh:
				sig.Refresh()
			default:
				_ = write(r.Context(), conn, types.ErrorMessage("unknown type"))
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
