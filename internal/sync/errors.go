package sync

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the failures a pass can report.
type ErrorKind int

const (
	// KindStorageRead means a cache lookup failed (not "no cache").
	KindStorageRead ErrorKind = iota + 1
	// KindStorageWrite means writing or removing a cache key failed.
	KindStorageWrite
	// KindAPIEmptyResult means the first page of a from-scratch fetch was empty.
	KindAPIEmptyResult
	// KindAPI means a page request failed after transport retries.
	KindAPI
)

// String returns the kind's name as used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case KindStorageRead:
		return "storage_read"
	case KindStorageWrite:
		return "storage_write"
	case KindAPIEmptyResult:
		return "api_empty_result"
	case KindAPI:
		return "api"
	default:
		return "unknown"
	}
}

// op names the step that failed; it selects the user-facing message.
type op string

const (
	opCheckLegacy op = "checking legacy cache"
	opClearLegacy op = "clearing legacy cache"
	opLoadCache   op = "loading cache"
	opStoreCache  op = "storing cache"
	opUpdateCache op = "updating cache"
	opLoadAPI     op = "loading reports from API"
	opUpdateAPI   op = "updating reports from API"
	opEmptyAPI    op = "loading reports from API"
)

var messages = map[op]string{
	opCheckLegacy: "Could not check reports locally, please try again.",
	opClearLegacy: "Could not clear reports locally, please try again.",
	opLoadCache:   "Could not load reports locally, please try again.",
	opStoreCache:  "Could not store reports locally, please try again.",
	opUpdateCache: "Could not update reports locally, please try again.",
	opLoadAPI:     "Could not load reports from API, please try again.",
	opUpdateAPI:   "Could not update reports from API, please try again.",
}

const emptyResultMessage = "Reports API returned an empty result, please try again."

var (
	// ErrEmptyResult is the cause of a [KindAPIEmptyResult] error.
	ErrEmptyResult = errors.New("reports API returned an empty result")

	// ErrTooManyPages is returned when pagination exceeds the page cap
	// without reaching a short page.
	ErrTooManyPages = errors.New("pagination exceeded the page cap")
)

// Error is a failure reported during a pass.
type Error struct {
	Kind ErrorKind
	Key  string // cache key involved, if any
	op   op
	Err  error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %q: %v", e.op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Message returns the human-readable text shown to users.
func (e *Error) Message() string {
	if e.Kind == KindAPIEmptyResult {
		return emptyResultMessage
	}
	if m, ok := messages[e.op]; ok {
		return m
	}
	return "Could not sync reports, please try again."
}

// IsKind reports whether err is an [*Error] of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
