// Package server exposes the library over HTTP.
package server

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"

	"github.com/jarq/jarq/internal/library"
	"github.com/jarq/jarq/internal/server/handlers"
	"github.com/jarq/jarq/internal/server/ratelimit"
)

// Limiters groups the per-client rate limiters. Nil fields disable the
// corresponding throttling.
type Limiters struct {
	// Writes throttles mutating requests.
	Writes *ratelimit.Limiter
	// AuthFailures throttles clients after repeated rejected credentials.
	AuthFailures *ratelimit.Limiter
}

// NewRouter creates and configures the HTTP router.
func NewRouter(svc *library.Service, limiters Limiters) http.Handler {
	mux := http.NewServeMux()
	h := handlers.NewHandler(svc)
	ch := &contentHandler{svc: svc}
	auth := func(next http.Handler) http.Handler {
		return limitAuthFailures(limiters.AuthFailures, requireUser(svc, next))
	}

	// Public endpoints
	mux.Handle("GET /api/health", Wrap(h.Health))
	mux.Handle("POST /api/users", Wrap(h.CreateUser))
	mux.Handle("POST /api/auth/login", limitAuthFailures(limiters.AuthFailures, Wrap(h.Login)))

	// User endpoints
	const user = "/api/users/{userID}"
	mux.Handle("GET "+user, auth(Wrap(h.GetUser)))
	mux.Handle("DELETE "+user, auth(Wrap(h.RemoveUser)))

	// Address endpoints
	const address = user + "/address"
	mux.Handle("POST "+address, auth(Wrap(h.CreateAddress)))
	mux.Handle("GET "+address, auth(Wrap(h.GetAddress)))
	mux.Handle("PATCH "+address, auth(Wrap(h.UpdateAddress)))
	mux.Handle("DELETE "+address, auth(Wrap(h.RemoveAddress)))

	// Repository endpoints
	const repos = user + "/repositories"
	mux.Handle("GET "+repos, auth(Wrap(h.ListRepositories)))
	mux.Handle("POST "+repos, auth(Wrap(h.CreateRepository)))
	mux.Handle("GET "+repos+"/{repoID}", auth(Wrap(h.GetRepository)))
	mux.Handle("PATCH "+repos+"/{repoID}", auth(Wrap(h.RenameRepository)))
	mux.Handle("DELETE "+repos+"/{repoID}", auth(Wrap(h.RemoveRepository)))

	// Text endpoints
	const texts = repos + "/{repoID}/texts"
	mux.Handle("GET "+texts, auth(Wrap(h.ListTexts)))
	mux.Handle("POST "+texts, auth(Wrap(h.CreateText)))
	mux.Handle("GET "+texts+"/{textID}", auth(Wrap(h.GetText)))
	mux.Handle("DELETE "+texts+"/{textID}", auth(Wrap(h.RemoveText)))

	// Content endpoints
	const contents = texts + "/{textID}/contents"
	mux.Handle("GET "+contents, auth(Wrap(h.ListContents)))
	mux.Handle("PUT "+contents+"/{filename}", auth(http.HandlerFunc(ch.put)))
	mux.Handle("GET "+contents+"/{filename}", auth(http.HandlerFunc(ch.get)))
	mux.Handle("DELETE "+contents+"/{filename}", auth(Wrap(h.RemoveContent)))
	mux.Handle("GET "+contents+"/{filename}/history", auth(Wrap(h.ContentHistory)))

	return logRequests(gzhttp.GzipHandler(limitWrites(limiters.Writes, mux)))
}
