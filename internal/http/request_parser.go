// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing and validating HTTP request data:
// bounded JSON decoding and path identifiers.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"taxledger/internal/core"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

var (
	errEmptyBody   = errors.New("request body is empty")
	errInvalidPath = errors.New("invalid identifier")
)

// badRequestError marks malformed input that never reached validation.
type badRequestError struct{ err error }

func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(err error) error { return &badRequestError{err: err} }

// decodeJSON reads a single JSON object into dst. Unknown fields are
// rejected and trailing data is an error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return badRequest(errEmptyBody)
		case errors.As(err, &maxErr):
			return badRequest(fmt.Errorf("request body exceeds %d bytes", maxErr.Limit))
		}
		// Field decoders return domain errors; keep them for the 422 mapping.
		if core.ValidationError(err) {
			return err
		}
		return badRequest(fmt.Errorf("malformed JSON: %w", err))
	}
	if dec.More() {
		return badRequest(errors.New("request body must contain a single JSON object"))
	}
	return nil
}

// pathUUID parses a UUID path value.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, badRequest(fmt.Errorf("%w: %s", errInvalidPath, name))
	}
	return id, nil
}

// pathInt64 parses a positive integer path value.
func pathInt64(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest(fmt.Errorf("%w: %s", errInvalidPath, name))
	}
	return id, nil
}
