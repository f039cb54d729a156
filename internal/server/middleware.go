package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/maruel/ksid"

	apierrors "github.com/jarq/jarq/internal/errors"
	"github.com/jarq/jarq/internal/library"
	"github.com/jarq/jarq/internal/models"
	"github.com/jarq/jarq/internal/server/ratelimit"
)

type contextKey string

const (
	keyRequestID contextKey = "requestID"
	keyUser      contextKey = "user"
)

// RequestID returns the request identifier assigned by the logging
// middleware.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(keyRequestID).(string)
	return v
}

// UserFrom returns the authenticated user.
func UserFrom(ctx context.Context) *models.User {
	u, _ := ctx.Value(keyUser).(*models.User)
	return u
}

// clientIP extracts the client IP from an HTTP request, checking
// X-Forwarded-For and X-Real-IP headers for proxied requests.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	if strings.HasPrefix(addr, "[") {
		if host, _, found := strings.Cut(addr, "]:"); found {
			return host[1:]
		}
		return strings.Trim(addr, "[]")
	}
	if host, _, found := strings.Cut(addr, ":"); found {
		return host
	}
	return addr
}

func isMutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch || method == http.MethodDelete
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// logRequests assigns a request ID, exposes it as X-Request-ID and logs one
// line per request.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := ksid.NewID().String()
		ctx := context.WithValue(r.Context(), keyRequestID, id)
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))
		slog.InfoContext(ctx, "http",
			"id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"ip", clientIP(r),
			"dur", time.Since(start).Round(time.Millisecond),
		)
	})
}

// limitWrites throttles mutating requests per client IP. A nil limiter
// disables throttling.
func limitWrites(l *ratelimit.Limiter, next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		res := l.Allow(clientIP(r))
		ratelimit.WriteHeaders(w, res)
		if !res.Allowed {
			writeError(r.Context(), w, apierrors.TooManyRequests().WithDetail("retry_after", int(res.RetryAfter.Seconds())))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitAuthFailures throttles clients whose credentials keep getting
// rejected. Only 401 responses consume tokens so a client that authenticates
// is never slowed down. A nil limiter disables throttling.
func limitAuthFailures(l *ratelimit.Limiter, next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if res := l.Peek(ip); !res.Allowed {
			ratelimit.WriteHeaders(w, res)
			writeError(r.Context(), w, apierrors.TooManyRequests().WithDetail("retry_after", int(res.RetryAfter.Seconds())))
			return
		}
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == http.StatusUnauthorized {
			l.Allow(ip)
		}
	})
}

// requireUser authenticates the request with HTTP basic auth and checks that
// the user matches the {userID} path value.
func requireUser(svc *library.Service, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		name, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="jarq"`)
			writeError(ctx, w, apierrors.Unauthorized())
			return
		}
		u, err := svc.Authenticate(ctx, name, password)
		if err != nil {
			if errors.Is(err, library.ErrUnauthorized) {
				w.Header().Set("WWW-Authenticate", `Basic realm="jarq"`)
				err = apierrors.Unauthorized()
			}
			writeError(ctx, w, err)
			return
		}
		if id := r.PathValue("userID"); id != strconv.Itoa(u.ID) {
			writeError(ctx, w, apierrors.Forbidden("Forbidden"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, keyUser, u)))
	})
}
