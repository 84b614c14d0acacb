package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"agentdesk/internal/gateway/handlers"
	"agentdesk/pkg/logger"
)

// Recovery turns a handler panic into a 500 carrying the request id. It runs
// outside RequestID, so the id is read back from the response header.
// http.ErrAbortHandler is re-raised for net/http to abort the connection.
func Recovery(next http.Handler) http.Handler {
	log := logger.Named("gateway")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			id := w.Header().Get(RequestIDHeader)
			log.Error().
				Interface("panic", rec).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("request_id", id).
				Bytes("stack", debug.Stack()).
				Msg("Handler panicked")

			msg := "internal server error"
			if id != "" {
				msg += " (request " + id + ")"
			}
			handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, msg)
		}()

		next.ServeHTTP(w, r)
	})
}
