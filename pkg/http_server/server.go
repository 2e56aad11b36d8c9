package http_server

import (
	"context"
	"net/http"

	"github.com/mapic/tilecube/pkg/config"
	"github.com/mapic/tilecube/pkg/logger"
)

func NewServer(ctx context.Context, cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      withLogger(ctx, handler),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// withLogger makes the app logger reachable from every request context
// without discarding the request's own deadline or cancelation.
func withLogger(ctx context.Context, next http.Handler) http.Handler {
	l := logger.FromContext(ctx)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqCtx := logger.WithLogger(r.Context(), l)
		next.ServeHTTP(w, r.WithContext(reqCtx))
	})
}
