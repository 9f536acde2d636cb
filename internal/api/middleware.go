package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/taskflow/internal/models"
)

type contextKey int

const (
	ctxKeyCaller contextKey = iota
	ctxKeyRequestID
	ctxKeyKeyID
	ctxKeyLogger
)

// callerFrom returns the authenticated user from the request context, or nil
// for anonymous requests.
func callerFrom(ctx context.Context) *models.User {
	u, _ := ctx.Value(ctxKeyCaller).(*models.User)
	return u
}

// getKeyID returns the id of the API key that authenticated the request.
func getKeyID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyKeyID).(string)
	return id
}

// getRequestID returns the request ID from the context.
func getRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// logFor returns the context-scoped logger, falling back to the default logger.
func logFor(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKeyLogger).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// loggerMiddleware creates a per-request logger with the request ID and stores it in the context.
func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := slog.Default().With("rid", getRequestID(r.Context()))
		ctx := context.WithValue(r.Context(), ctxKeyLogger, l)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessMiddleware counts requests by status class and writes one log line
// per request: Info for success, Warn for 4xx, Error for 5xx.
func accessMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.RecordRequest()
			sc := &statusCapture{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(sc, r)

			level := slog.LevelInfo
			switch {
			case sc.code >= 500:
				m.RecordError()
				level = slog.LevelError
			case sc.code >= 400:
				m.RecordClientError()
				level = slog.LevelWarn
			}
			logFor(r.Context()).Log(r.Context(), level, "req",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sc.code,
				"bytes", sc.bytes,
				"dur", time.Since(start).String(),
			)
		})
	}
}

// recoveryMiddleware catches panics and returns a 500 response.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logFor(r.Context()).Error("panic recovered", "panic", rec, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware tags each request with an ID, reusing a well-formed
// X-Request-ID sent by the client.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusCapture wraps ResponseWriter to capture the status code and body size.
type statusCapture struct {
	http.ResponseWriter
	code  int
	bytes int
}

func (sc *statusCapture) WriteHeader(code int) {
	sc.code = code
	sc.ResponseWriter.WriteHeader(code)
}

func (sc *statusCapture) Write(b []byte) (int, error) {
	n, err := sc.ResponseWriter.Write(b)
	sc.bytes += n
	return n, err
}

// authenticate resolves the Bearer token, if any. It returns ok=false after
// writing a 401 or 500; a request without an Authorization header resolves
// to a nil user.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return r, true
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid authorization format")
		return r, false
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	ak, user, err := s.keys.VerifyAPIKey(r.Context(), token)
	if err != nil {
		logFor(r.Context()).Error("verify api key", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to verify key")
		return r, false
	}
	if ak == nil || user == nil {
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or expired api key")
		return r, false
	}

	ctx := context.WithValue(r.Context(), ctxKeyCaller, user)
	ctx = context.WithValue(ctx, ctxKeyKeyID, ak.ID)
	// Enrich logger with user ID
	ctx = context.WithValue(ctx, ctxKeyLogger, logFor(ctx).With("uid", user.ID))
	return r.WithContext(ctx), true
}

// requireAuth returns an http.HandlerFunc that verifies the Bearer token
// and injects the caller into the context before calling the inner handler.
func (s *Server) requireAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "missing authorization header")
			return
		}
		r, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		handler(w, r)
	}
}

// optionalAuth lets anonymous requests through as a nil caller; the
// workflow decides what they may see. A bad token is still rejected.
func (s *Server) optionalAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		handler(w, r)
	}
}

// maxBytesMiddleware limits request body size to prevent abuse.
func maxBytesMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// chain applies middleware in order (first applied is outermost).
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
