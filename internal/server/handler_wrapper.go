package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"

	json "github.com/goccy/go-json"

	apierrors "github.com/jarq/jarq/internal/errors"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// Wrap wraps a handler function to work as an http.Handler.
// The function must have signature: func(context.Context, In) (*Out, error)
// where In can be unmarshalled from JSON and Out is a struct.
// Path parameters are extracted into fields tagged `path:"name"` and query
// parameters into fields tagged `query:"name"`; string and int fields are
// supported.
//
// Example:
//
//	type GetRepositoryRequest struct {
//	    UserID int `path:"userID"`
//	    ID     int `path:"repoID"`
//	}
//
//	func (h *Handler) GetRepository(ctx context.Context, req GetRepositoryRequest) (*models.Repository, error)
func Wrap[In any, Out any](fn func(context.Context, In) (*Out, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
		if err2 := r.Body.Close(); err == nil {
			err = err2
		}
		if err != nil {
			slog.ErrorContext(ctx, "Failed to read request body", "err", err)
			writeError(ctx, w, apierrors.BadRequest("Failed to read request body").Wrap(err))
			return
		}
		var input In
		if len(body) > 0 {
			d := json.NewDecoder(bytes.NewReader(body))
			d.DisallowUnknownFields()
			if err := d.Decode(&input); err != nil {
				writeError(ctx, w, apierrors.BadRequest("Invalid request body").Wrap(err))
				return
			}
		}
		if err := populateParams(r, &input); err != nil {
			writeError(ctx, w, err)
			return
		}
		output, err := fn(ctx, input)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		writeJSON(ctx, w, http.StatusOK, output)
	})
}

// populateParams fills fields tagged `path:"name"` from r.PathValue and
// fields tagged `query:"name"` from the URL query.
func populateParams(r *http.Request, input any) error {
	elem := reflect.ValueOf(input).Elem()
	if elem.Kind() != reflect.Struct {
		return nil
	}
	query := r.URL.Query()
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		var name, value string
		if tag := field.Tag.Get("path"); tag != "" {
			name, value = tag, r.PathValue(tag)
		} else if tag := field.Tag.Get("query"); tag != "" {
			name, value = tag, query.Get(tag)
		} else {
			continue
		}
		if value == "" {
			continue
		}
		//nolint:exhaustive // Only string and int are supported.
		switch field.Type.Kind() {
		case reflect.String:
			elem.Field(i).SetString(value)
		case reflect.Int:
			n, err := strconv.Atoi(value)
			if err != nil {
				return apierrors.BadRequest(fmt.Sprintf("%s must be an integer", name))
			}
			elem.Field(i).SetInt(int64(n))
		default:
		}
	}
	return nil
}

// writeError converts err to an API error, logs it and writes it as JSON.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	err = apierrors.FromStorage(err)
	var ews apierrors.ErrorWithStatus
	if !errors.As(err, &ews) {
		ews = apierrors.InternalWithError("Internal error", err)
	}
	if ews.StatusCode() >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "Handler error", "err", err, "statusCode", ews.StatusCode(), "code", ews.Code())
	} else {
		slog.WarnContext(ctx, "Handler error", "err", err, "statusCode", ews.StatusCode(), "code", ews.Code())
	}
	response := map[string]any{
		"error": map[string]any{
			"code":    ews.Code(),
			"message": ews.Message(),
		},
	}
	if d := ews.Details(); len(d) > 0 {
		response["details"] = d
	}
	writeJSON(ctx, w, ews.StatusCode(), response)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", "err", err)
	}
}
