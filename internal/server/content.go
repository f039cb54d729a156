package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	apierrors "github.com/jarq/jarq/internal/errors"
	"github.com/jarq/jarq/internal/library"
)

// maxContentBody bounds uploaded content files.
const maxContentBody = 32 << 20

// etag formats a content checksum as a strong entity tag.
func etag(sum uint64) string {
	return `"` + strconv.FormatUint(sum, 16) + `"`
}

// etagMatches reports whether an If-Match or If-None-Match header value
// lists tag.
func etagMatches(header, tag string) bool {
	for v := range strings.SplitSeq(header, ",") {
		v = strings.TrimSpace(v)
		if v == "*" || v == tag {
			return true
		}
	}
	return false
}

type contentHandler struct {
	svc *library.Service
}

type contentPath struct {
	userID, repoID, textID int
	filename               string
}

func parseContentPath(r *http.Request) (contentPath, error) {
	var p contentPath
	for _, f := range []struct {
		name string
		dst  *int
	}{{"userID", &p.userID}, {"repoID", &p.repoID}, {"textID", &p.textID}} {
		n, err := strconv.Atoi(r.PathValue(f.name))
		if err != nil {
			return p, apierrors.BadRequest(f.name + " must be an integer")
		}
		*f.dst = n
	}
	p.filename = r.PathValue("filename")
	return p, nil
}

// put stores the request body as a content file. If-Match is honored
// against the current checksum.
func (h *contentHandler) put(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := parseContentPath(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxContentBody))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(ctx, w, apierrors.NewAPIError(http.StatusRequestEntityTooLarge, apierrors.ErrValidationFailed, "Content too large").WithDetail("limit", mbe.Limit))
			return
		}
		writeError(ctx, w, apierrors.BadRequest("Failed to read request body").Wrap(err))
		return
	}
	if m := r.Header.Get("If-Match"); m != "" {
		c, err := h.svc.ContentInfo(ctx, p.userID, p.repoID, p.textID, p.filename)
		if err != nil || !etagMatches(m, etag(c.Checksum)) {
			writeError(ctx, w, apierrors.PreconditionFailed("Content changed"))
			return
		}
	}
	c, err := h.svc.PutContent(ctx, p.userID, p.repoID, p.textID, p.filename, data)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	w.Header().Set("ETag", etag(c.Checksum))
	writeJSON(ctx, w, http.StatusOK, c)
}

// get serves the bytes of a content file, or of an older version with
// ?version=<commit>.
func (h *contentHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := parseContentPath(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if v := r.URL.Query().Get("version"); v != "" {
		data, err := h.svc.ContentVersion(ctx, p.userID, p.repoID, p.textID, p.filename, v)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		w.Header().Set("Content-Type", contentType(p.filename))
		_, _ = w.Write(data)
		return
	}
	c, data, err := h.svc.ReadContent(ctx, p.userID, p.repoID, p.textID, p.filename)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	tag := etag(c.Checksum)
	w.Header().Set("ETag", tag)
	w.Header().Set("Last-Modified", c.Modified.UTC().Format(http.TimeFormat))
	if etagMatches(r.Header.Get("If-None-Match"), tag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", contentType(p.filename))
	_, _ = w.Write(data)
}

func contentType(filename string) string {
	if t := mime.TypeByExtension(filepath.Ext(filename)); t != "" {
		return t
	}
	return "application/octet-stream"
}
