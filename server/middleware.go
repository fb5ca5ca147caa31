package server

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"

	"github.com/vinayprograms/pagechat/errors"
	"github.com/vinayprograms/pagechat/relay"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// cors allows every origin and answers preflight requests.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)
		h.Set("Access-Control-Expose-Headers", RequestIDHeader)
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestID honors an inbound X-Request-ID or assigns one, and puts it on
// the request context for the relay.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(relay.WithRequestID(r.Context(), id)))
	})
}

// logRequests logs one line per request. Health checks are not logged.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		m := httpsnoop.CaptureMetrics(next, w, r)

		fields := map[string]interface{}{
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    m.Code,
			"bytes":     m.Written,
			"duration":  m.Duration.String(),
			"client_ip": r.RemoteAddr,
		}
		log := s.logger.WithTraceID(relay.RequestIDFrom(r.Context()))
		switch {
		case m.Code >= 500:
			log.Error("http_request", fields)
		case m.Code >= 400:
			log.Warn("http_request", fields)
		default:
			log.Info("http_request", fields)
		}
	})
}

// recovery turns a handler panic into an INTERNAL JSON response.
func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger.Error("panic_recovered", map[string]interface{}{
				"request_id": relay.RequestIDFrom(r.Context()),
				"path":       r.URL.Path,
				"panic":      fmt.Sprintf("%v", rec),
				"stack":      string(debug.Stack()),
			})
			e := errors.Internal("Internal server error.")
			writeJSON(w, http.StatusInternalServerError, ChatResponse{
				Response:  relay.Render(e),
				Code:      string(e.Code()),
				RequestID: relay.RequestIDFrom(r.Context()),
			})
		}()
		next.ServeHTTP(w, r)
	})
}
