package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/court-queue-board/internal/court"
	"github.com/DoyleJ11/court-queue-board/internal/hub"
	"github.com/DoyleJ11/court-queue-board/internal/syncer"
	"github.com/DoyleJ11/court-queue-board/internal/types"
)

type fakeSignaler struct {
	visible atomic.Int32
	refresh atomic.Int32
}

func (f *fakeSignaler) OnVisible() { f.visible.Add(1) }
func (f *fakeSignaler) Refresh()   { f.refresh.Add(1) }

func dial(t *testing.T, ctx context.Context, srvURL string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srvURL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMsg(t *testing.T, ctx context.Context, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(rctx)
	require.NoError(t, err)
	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func sendJSON(t *testing.T, ctx context.Context, conn *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(raw)))
}

func setup(t *testing.T) (context.Context, chan syncer.Snapshot, *fakeSignaler, *httptest.Server) {
	t.Helper()
	ctx, source, sig, srv, _ := setupHub(t)
	return ctx, source, sig, srv
}

func setupHub(t *testing.T) (context.Context, chan syncer.Snapshot, *fakeSignaler, *httptest.Server, *hub.Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	source := make(chan syncer.Snapshot, 1)
	initial := syncer.Snapshot{
		Version: 1,
		Status:  syncer.StatusConnected,
		Courts:  []court.Court{{ID: "1", Name: "Court 1", Current: 5, Next: 6, Last: 20}},
	}
	h := hub.NewHub(ctx, initial, source, zap.NewNop())
	sig := &fakeSignaler{}
	srv := httptest.NewServer(Handler(h, sig, zap.NewNop()))
	t.Cleanup(srv.Close)
	return ctx, source, sig, srv, h
}

func TestHandler_StreamsSnapshots(t *testing.T) {
	ctx, source, _, srv := setup(t)
	conn := dial(t, ctx, srv.URL)

	first := readMsg(t, ctx, conn)
	require.Equal(t, "Snapshot", first.Type)
	require.NotNil(t, first.Board)
	assert.Equal(t, 1, first.Board.Version)
	assert.Equal(t, "connected", first.Board.Status)
	assert.Equal(t, "Live", first.Board.StatusText)
	require.Len(t, first.Board.Courts, 1)
	assert.Equal(t, 5, first.Board.Courts[0].Current)

	source <- syncer.Snapshot{
		Version: 2,
		Status:  syncer.StatusReconnecting,
		Courts:  []court.Court{{ID: "1", Name: "Court 1", Current: 6, Next: 7, Last: 20}},
	}
	next := readMsg(t, ctx, conn)
	require.NotNil(t, next.Board)
	assert.Equal(t, 2, next.Board.Version)
	assert.Equal(t, "reconnecting", next.Board.Status)
	assert.Equal(t, 6, next.Board.Courts[0].Current)
}

func TestHandler_ForwardsHints(t *testing.T) {
	ctx, _, sig, srv := setup(t)
	conn := dial(t, ctx, srv.URL)
	readMsg(t, ctx, conn)

	sendJSON(t, ctx, conn, `{"type":"visible"}`)
	sendJSON(t, ctx, conn, `{"type":"refresh"}`)
	sendJSON(t, ctx, conn, `{"type":"visible"}`)

	require.Eventually(t, func() bool {
		return sig.visible.Load() == 2 && sig.refresh.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestHandler_RejectsBadMessages(t *testing.T) {
	ctx, _, sig, srv := setup(t)
	conn := dial(t, ctx, srv.URL)
	readMsg(t, ctx, conn)

	sendJSON(t, ctx, conn, `{not json`)
	msg := readMsg(t, ctx, conn)
	assert.Equal(t, "Error", msg.Type)
	assert.Equal(t, "bad json", msg.Error)

	sendJSON(t, ctx, conn, `{"type":"LockPick"}`)
	msg = readMsg(t, ctx, conn)
	assert.Equal(t, "Error", msg.Type)
	assert.Equal(t, "unknown type", msg.Error)

	assert.Zero(t, sig.visible.Load())
	assert.Zero(t, sig.refresh.Load())
}

func TestHandler_HubShutdownClosesWithNeutralReason(t *testing.T) {
	ctx, _, _, srv, h := setupHub(t)
	conn := dial(t, ctx, srv.URL)
	readMsg(t, ctx, conn)

	h.Send(hub.ShutdownHub{})

	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(rctx)
	require.Error(t, err)

	var ce websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.StatusTryAgainLater, ce.Code)
	assert.Equal(t, closeReason, ce.Reason)
	assert.NotContains(t, ce.Reason, "slow")
}
