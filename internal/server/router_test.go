package server

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/jarq/jarq/internal/library"
	"github.com/jarq/jarq/internal/models"
	"github.com/jarq/jarq/internal/server/ratelimit"
	"github.com/jarq/jarq/internal/storage"
	"github.com/jarq/jarq/internal/storage/git"
	"github.com/jarq/jarq/internal/storage/sqldb"
)

func newTestRouter(t *testing.T, limiters Limiters) http.Handler {
	t.Helper()
	dir := t.TempDir()
	db, err := sqldb.Open(t.Context(), filepath.Join(dir, "jarq.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	root, err := storage.NewRoot(filepath.Join(dir, "repositories"))
	if err != nil {
		t.Fatal(err)
	}
	svc := library.New(db, storage.NewResolver(root), library.Options{
		History:    git.NewManager(git.Author{}),
		BcryptCost: bcrypt.MinCost,
	})
	return NewRouter(svc, limiters)
}

type client struct {
	t        *testing.T
	h        http.Handler
	name, pw string
}

func (c *client) do(method, path string, body io.Reader, hdr ...string) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if c.name != "" {
		req.SetBasicAuth(c.name, c.pw)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	return rec
}

func (c *client) json(method, path string, in, out any, want int) {
	c.t.Helper()
	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			c.t.Fatal(err)
		}
		body = bytes.NewReader(b)
	}
	rec := c.do(method, path, body)
	if rec.Code != want {
		c.t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, want, rec.Code, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			c.t.Fatalf("%s %s: decoding %q: %v", method, path, rec.Body.String(), err)
		}
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error %q: %v", rec.Body.String(), err)
	}
	return resp.Error.Code
}

func TestHealth(t *testing.T) {
	c := &client{t: t, h: newTestRouter(t, Limiters{})}
	rec := c.do("GET", "/api/health", http.NoBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if !strings.Contains(rec.Body.String(), `"history":true`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestAuth(t *testing.T) {
	h := newTestRouter(t, Limiters{})
	anon := &client{t: t, h: h}
	var alice, bob models.User
	anon.json("POST", "/api/users", map[string]string{"name": "alice", "email": "a@example.com", "password": "pw1"}, &alice, http.StatusOK)
	anon.json("POST", "/api/users", map[string]string{"name": "bob", "email": "b@example.com", "password": "pw2"}, &bob, http.StatusOK)
	if alice.ID != 1 || bob.ID != 2 {
		t.Fatalf("unexpected ids %d, %d", alice.ID, bob.ID)
	}
	anon.json("POST", "/api/auth/login", map[string]string{"name": "alice", "password": "pw1"}, nil, http.StatusOK)
	anon.json("POST", "/api/auth/login", map[string]string{"name": "alice", "password": "nope"}, nil, http.StatusUnauthorized)
	anon.json("POST", "/api/users", map[string]string{"name": "alice", "password": "x"}, nil, http.StatusBadRequest)
	anon.json("POST", "/api/users", map[string]string{"name": "carol"}, nil, http.StatusBadRequest)
	anon.json("POST", "/api/users", map[string]any{"name": "carol", "password": "x", "admin": true}, nil, http.StatusBadRequest)

	rec := anon.do("GET", "/api/users/1/repositories", http.NoBody)
	if rec.Code != http.StatusUnauthorized || rec.Header().Get("WWW-Authenticate") == "" {
		t.Errorf("expected 401 with challenge, got %d", rec.Code)
	}
	c := &client{t: t, h: h, name: "alice", pw: "pw1"}
	c.json("GET", "/api/users/2/repositories", nil, nil, http.StatusForbidden)
	c.json("GET", "/api/users/1/repositories", nil, nil, http.StatusOK)
	wrong := &client{t: t, h: h, name: "alice", pw: "pw2"}
	wrong.json("GET", "/api/users/1", nil, nil, http.StatusUnauthorized)

	var u models.User
	c.json("GET", "/api/users/1", nil, &u, http.StatusOK)
	if u.Name != "alice" || u.PasswordHash != nil {
		t.Errorf("unexpected user %+v", u)
	}
	c.json("DELETE", "/api/users/1", nil, nil, http.StatusOK)
	c.json("GET", "/api/users/1", nil, nil, http.StatusUnauthorized)
}

func TestLibraryFlow(t *testing.T) {
	h := newTestRouter(t, Limiters{})
	anon := &client{t: t, h: h}
	anon.json("POST", "/api/users", map[string]string{"name": "alice", "password": "pw"}, nil, http.StatusOK)
	c := &client{t: t, h: h, name: "alice", pw: "pw"}

	var repo models.Repository
	c.json("POST", "/api/users/1/repositories", map[string]string{"name": "novels"}, &repo, http.StatusOK)
	c.json("PATCH", "/api/users/1/repositories/1", map[string]string{"name": "fiction"}, &repo, http.StatusOK)
	if repo.Name != "fiction" {
		t.Errorf("expected fiction, got %q", repo.Name)
	}
	var repos struct {
		Repositories []models.Repository `json:"repositories"`
	}
	c.json("GET", "/api/users/1/repositories", nil, &repos, http.StatusOK)
	if len(repos.Repositories) != 1 {
		t.Errorf("expected 1 repository, got %d", len(repos.Repositories))
	}
	c.json("GET", "/api/users/1/repositories/9", nil, nil, http.StatusNotFound)
	c.json("GET", "/api/users/1/repositories/x", nil, nil, http.StatusBadRequest)

	var txt models.Text
	c.json("POST", "/api/users/1/repositories/1/texts", map[string]string{"name": "chapter"}, &txt, http.StatusOK)
	base := "/api/users/1/repositories/1/texts/1/contents"

	rec := c.do("PUT", base+"/a.md", strings.NewReader("v1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	tag1 := rec.Header().Get("ETag")
	if tag1 == "" {
		t.Fatal("missing ETag")
	}
	if rec = c.do("PUT", base+"/a.md", strings.NewReader("v2"), "If-Match", `"0"`); rec.Code != http.StatusPreconditionFailed {
		t.Errorf("stale If-Match: expected 412, got %d", rec.Code)
	}
	if rec = c.do("PUT", base+"/a.md", strings.NewReader("v2"), "If-Match", tag1); rec.Code != http.StatusOK {
		t.Fatalf("If-Match: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	tag2 := rec.Header().Get("ETag")

	rec = c.do("GET", base+"/a.md", http.NoBody)
	if rec.Code != http.StatusOK || rec.Body.String() != "v2" || rec.Header().Get("ETag") != tag2 {
		t.Errorf("GET: unexpected %d %q %s", rec.Code, rec.Body.String(), rec.Header().Get("ETag"))
	}
	if rec = c.do("GET", base+"/a.md", http.NoBody, "If-None-Match", tag2); rec.Code != http.StatusNotModified {
		t.Errorf("If-None-Match: expected 304, got %d", rec.Code)
	}

	var list struct {
		Contents []models.Content `json:"contents"`
	}
	c.json("GET", base, nil, &list, http.StatusOK)
	if len(list.Contents) != 1 || list.Contents[0].Size != 2 {
		t.Errorf("unexpected contents %+v", list.Contents)
	}

	var hist struct {
		Commits []models.Commit `json:"commits"`
	}
	c.json("GET", base+"/a.md/history?limit=10", nil, &hist, http.StatusOK)
	if len(hist.Commits) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(hist.Commits))
	}
	rec = c.do("GET", base+"/a.md?version="+hist.Commits[1].Hash, http.NoBody)
	if rec.Code != http.StatusOK || rec.Body.String() != "v1" {
		t.Errorf("version: unexpected %d %q", rec.Code, rec.Body.String())
	}

	c.json("DELETE", base+"/a.md", nil, nil, http.StatusOK)
	c.json("GET", base+"/a.md", nil, nil, http.StatusNotFound)
	c.json("DELETE", "/api/users/1/repositories/1/texts/1", nil, nil, http.StatusOK)
	c.json("DELETE", "/api/users/1/repositories/1", nil, nil, http.StatusOK)
	c.json("GET", "/api/users/1/repositories/1", nil, nil, http.StatusNotFound)
}

func TestAddress(t *testing.T) {
	h := newTestRouter(t, Limiters{})
	anon := &client{t: t, h: h}
	anon.json("POST", "/api/users", map[string]string{"name": "alice", "password": "pw1"}, nil, http.StatusOK)
	anon.json("POST", "/api/users", map[string]string{"name": "bob", "password": "pw2"}, nil, http.StatusOK)
	c := &client{t: t, h: h, name: "alice", pw: "pw1"}

	const path = "/api/users/1/address"
	c.json("GET", path, nil, nil, http.StatusNotFound)
	c.json("POST", path, map[string]string{"city": "Warsaw"}, nil, http.StatusBadRequest)
	c.json("POST", path, map[string]string{"postal_code": "00-001", "city": "Warsaw", "street": "Long", "house_no": "1", "floor": "2"}, nil, http.StatusBadRequest)
	var a models.Address
	c.json("POST", path, map[string]string{"postal_code": "00-001", "city": "Warsaw", "street": "Long", "house_no": "1"}, &a, http.StatusOK)
	if a.ID != 1 || a.UserID != 1 || a.City != "Warsaw" {
		t.Errorf("unexpected address %+v", a)
	}
	c.json("POST", path, map[string]string{"postal_code": "1", "city": "2", "street": "3", "house_no": "4"}, nil, http.StatusBadRequest)

	c.json("PATCH", path, map[string]string{"postal_code": "30-002", "apartment_no": "5"}, &a, http.StatusOK)
	if a.PostalCode != "30-002" || a.ApartmentNo != "5" || a.Street != "Long" {
		t.Errorf("unexpected address %+v", a)
	}
	c.json("PATCH", path, map[string]string{"city": ""}, nil, http.StatusBadRequest)
	c.json("GET", path, nil, &a, http.StatusOK)
	if a.City != "Warsaw" || a.PostalCode != "30-002" {
		t.Errorf("unexpected stored address %+v", a)
	}

	c.json("GET", "/api/users/2/address", nil, nil, http.StatusForbidden)

	c.json("DELETE", path, nil, nil, http.StatusOK)
	c.json("DELETE", path, nil, nil, http.StatusNotFound)
	c.json("PATCH", path, map[string]string{"city": "Krakow"}, nil, http.StatusNotFound)
}

func TestContentSecurityViolation(t *testing.T) {
	h := newTestRouter(t, Limiters{})
	anon := &client{t: t, h: h}
	anon.json("POST", "/api/users", map[string]string{"name": "alice", "password": "pw"}, nil, http.StatusOK)
	c := &client{t: t, h: h, name: "alice", pw: "pw"}
	c.json("POST", "/api/users/1/repositories", map[string]string{"name": "r"}, nil, http.StatusOK)
	c.json("POST", "/api/users/1/repositories/1/texts", map[string]string{"name": "t"}, nil, http.StatusOK)

	rec := c.do("PUT", "/api/users/1/repositories/1/texts/1/contents/a%5Cb.md", strings.NewReader("x"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := errorCode(t, rec); got != "SECURITY_VIOLATION" {
		t.Errorf("expected SECURITY_VIOLATION, got %s", got)
	}
	if strings.Contains(rec.Body.String(), "/1/1/1") {
		t.Errorf("response leaks paths: %s", rec.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	l := ratelimit.NewLimiter(1, 1)
	defer l.Close()
	c := &client{t: t, h: newTestRouter(t, Limiters{Writes: l})}
	c.json("POST", "/api/users", map[string]string{"name": "alice", "password": "pw"}, nil, http.StatusOK)
	rec := c.do("POST", "/api/users", strings.NewReader(`{"name":"bob","password":"pw"}`))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if got := errorCode(t, rec); got != "TOO_MANY_REQUESTS" {
		t.Errorf("expected TOO_MANY_REQUESTS, got %s", got)
	}
	// Reads are not throttled.
	for range 3 {
		if rec := c.do("GET", "/api/health", http.NoBody); rec.Code != http.StatusOK {
			t.Errorf("GET: expected 200, got %d", rec.Code)
		}
	}
}

func TestAuthFailureLimit(t *testing.T) {
	l := ratelimit.NewLimiter(1, 2)
	defer l.Close()
	c := &client{t: t, h: newTestRouter(t, Limiters{AuthFailures: l})}
	c.json("POST", "/api/users", map[string]string{"name": "alice", "password": "pw"}, nil, http.StatusOK)

	c.name, c.pw = "alice", "pw"
	for range 3 {
		c.json("GET", "/api/users/1", nil, nil, http.StatusOK)
	}

	c.pw = "wrong"
	for i := range 2 {
		if rec := c.do("GET", "/api/users/1", http.NoBody); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rec.Code)
		}
	}
	rec := c.do("GET", "/api/users/1", http.NoBody)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if got := errorCode(t, rec); got != "TOO_MANY_REQUESTS" {
		t.Errorf("expected TOO_MANY_REQUESTS, got %s", got)
	}

	// The client stays blocked even with the right password.
	c.pw = "pw"
	if rec := c.do("GET", "/api/users/1", http.NoBody); rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if rec := c.do("POST", "/api/auth/login", strings.NewReader(`{"name":"alice","password":"wrong"}`)); rec.Code != http.StatusTooManyRequests {
		t.Errorf("login: expected 429, got %d", rec.Code)
	}
	// Public endpoints are unaffected.
	if rec := c.do("GET", "/api/health", http.NoBody); rec.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", rec.Code)
	}
}

func TestGzip(t *testing.T) {
	c := &client{t: t, h: newTestRouter(t, Limiters{})}
	c.json("POST", "/api/users", map[string]string{"name": "alice", "password": "pw"}, nil, http.StatusOK)
	c.name, c.pw = "alice", "pw"
	body := strings.Repeat("compressible ", 200)
	c.json("POST", "/api/users/1/repositories", map[string]string{"name": "r"}, nil, http.StatusOK)
	c.json("POST", "/api/users/1/repositories/1/texts", map[string]string{"name": "t"}, nil, http.StatusOK)
	if rec := c.do("PUT", "/api/users/1/repositories/1/texts/1/contents/big.txt", strings.NewReader(body)); rec.Code != http.StatusOK {
		t.Fatalf("PUT: %d %s", rec.Code, rec.Body.String())
	}
	rec := c.do("GET", "/api/users/1/repositories/1/texts/1/contents/big.txt", http.NoBody, "Accept-Encoding", "gzip")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Errorf("expected gzip encoding, got %q", got)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Errorf("expected text/plain, got %q", got)
	}
}
