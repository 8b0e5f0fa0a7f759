package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/court-queue-board/internal/hub"
	"github.com/DoyleJ11/court-queue-board/internal/ws"
)

func SetupRoutes(h *hub.Hub, board Board, courts Courts, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(log))

	// Display routes
	r.Get("/healthz", Healthz)
	r.Get("/board", GetBoard(board))
	r.Post("/refresh", Refresh(board))
	r.Get("/ws", ws.Handler(h, board, log))

	// Operator routes
	r.Route("/courts/{id}", func(r chi.Router) {
		r.Get("/", GetCourt(board, courts, log))
		r.Put("/", PutCourt(board, courts, log))
		r.Post("/finish", FinishMatch(board, courts, log))
		r.Post("/queue", QueueNext(board, courts, log))
		r.Post("/reset", ResetCourt(board, courts, log))
	})
	return r
}

func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
