package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/court-queue-board/internal/api"
	"github.com/DoyleJ11/court-queue-board/internal/court"
	"github.com/DoyleJ11/court-queue-board/internal/syncer"
	"github.com/DoyleJ11/court-queue-board/internal/types"
)

// Board is the synchronized view the relay serves.
type Board interface {
	Snapshot() syncer.Snapshot
	Refresh()
	OnVisible()
}

// Courts writes operator edits to the upstream service.
type Courts interface {
	GetCourt(ctx context.Context, id court.ID) (court.Court, error)
	UpdateCourt(ctx context.Context, in court.Court) error
	FinishMatch(ctx context.Context, cur court.Court) error
	UpdateNext(ctx context.Context, cur court.Court, next, afterNext int) error
	ResetCourt(ctx context.Context, id court.ID) error
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func GetBoard(board Board) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.NewBoard(board.Snapshot()))
	}
}

func Refresh(board Board) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		board.Refresh()
		w.WriteHeader(http.StatusAccepted)
	}
}

func GetCourt(board Board, courts Courts, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := lookup(r, board, courts)
		if err != nil {
			fail(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func PutCourt(board Board, courts Courts, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in court.Court
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		// path wins over body
		in.ID = court.ID(chi.URLParam(r, "id"))
		if err := courts.UpdateCourt(r.Context(), in); err != nil {
			fail(w, r, log, err)
			return
		}
		done(w, board)
	}
}

func FinishMatch(board Board, courts Courts, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cur, err := lookup(r, board, courts)
		if err == nil {
			err = courts.FinishMatch(r.Context(), cur)
		}
		if err != nil {
			fail(w, r, log, err)
			return
		}
		done(w, board)
	}
}

type queueBody struct {
	Next      int `json:"next"`
	AfterNext int `json:"afterNext"`
}

func QueueNext(board Board, courts Courts, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body queueBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		cur, err := lookup(r, board, courts)
		if err == nil {
			err = courts.UpdateNext(r.Context(), cur, body.Next, body.AfterNext)
		}
		if err != nil {
			fail(w, r, log, err)
			return
		}
		done(w, board)
	}
}

func ResetCourt(board Board, courts Courts, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := court.ID(chi.URLParam(r, "id"))
		if err := courts.ResetCourt(r.Context(), id); err != nil {
			fail(w, r, log, err)
			return
		}
		done(w, board)
	}
}

// lookup prefers the synchronized copy and falls back to upstream for
// courts the board has not seen yet.
func lookup(r *http.Request, board Board, courts Courts) (court.Court, error) {
	id := court.ID(chi.URLParam(r, "id"))
	if c, ok := board.Snapshot().Court(id); ok {
		return c, nil
	}
	return courts.GetCourt(r.Context(), id)
}

// done answers a successful write. The push channel normally delivers the
// change; the refresh covers the case where it is down.
func done(w http.ResponseWriter, board Board) {
	board.Refresh()
	w.WriteHeader(http.StatusNoContent)
}

func fail(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		log.Warn("upstream request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, code, types.ErrorMessage(err.Error()))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, court.ErrMissingID),
		errors.Is(err, court.ErrOutOfRange),
		errors.Is(err, court.ErrInvalidLast),
		errors.Is(err, court.ErrNoChange),
		errors.Is(err, court.ErrIdle):
		return http.StatusUnprocessableEntity
	}
	var se *api.StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
