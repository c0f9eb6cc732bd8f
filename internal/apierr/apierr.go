// Package apierr defines the error taxonomy used across the cluster fabric,
// album store, task engine, and RPC surface (spec §7), and maps it onto
// HTTP status codes for the RPC layer.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for RPC status mapping and task failure policy.
type Kind string

const (
	Transport      Kind = "transport"       // peer unreachable, connect failed
	NotFound       Kind = "not_found"       // unknown album, unknown task id
	AlreadyExists  Kind = "already_exists"  // album id collision
	InvalidConfig  Kind = "invalid_config"  // bad dht_key_length, unknown geocode, malformed filter
	DecoderFailure Kind = "decoder_failure" // input unreadable, metadata missing, unsupported type
	OwnerMissing   Kind = "owner_missing"   // locate() returned no peer
	StorageFailure Kind = "storage_failure" // disk full, rename failed
)

// Error wraps an underlying cause with a Kind so callers can branch on
// taxonomy without string matching.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given kind and operation name.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Of reports the Kind of err, or "" if err does not wrap an *Error.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Skippable reports whether an error should be counted as a skipped
// record rather than a fatal task failure (spec §7 policy: decoder and
// network failures are skips; storage failures are fatal).
func Skippable(err error) bool {
	switch Of(err) {
	case DecoderFailure, OwnerMissing, Transport:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a Kind onto the status code the RPC surface returns.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Transport:
		return http.StatusServiceUnavailable
	case NotFound:
		return http.StatusNotFound
	case AlreadyExists:
		return http.StatusConflict
	case InvalidConfig, DecoderFailure, OwnerMissing:
		return http.StatusBadRequest
	case StorageFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
