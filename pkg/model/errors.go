package model

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the engine.
var (
	// ErrTransport covers network failures, timeouts and non-2xx responses.
	ErrTransport = errors.New("transport error")

	// ErrDecode indicates a payload that did not match the expected shape.
	ErrDecode = errors.New("decode error")

	// ErrInvalidRequest is returned when a caller violates a precondition.
	// It is always returned before any fetch is attempted.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrDataInvariant reports remote data that breaks an engine invariant,
	// such as two catalog items sharing one id.
	ErrDataInvariant = errors.New("data invariant violation")

	// ErrNotFound is returned when a name or id is not in the catalog.
	ErrNotFound = errors.New("item not found")

	// ErrCancelled marks work that stopped because the context was cancelled.
	ErrCancelled = errors.New("cancelled")
)

// Op names a logical remote operation.
type Op string

const (
	OpListPage     Op = "list_page"
	OpDetail       Op = "detail"
	OpVendorOffers Op = "vendor_offers"
)

// Request identifies one logical fetch.
type Request struct {
	Op       Op
	Endpoint string
	Key      string
	Page     int
}

// String renders the request identity for logs and errors.
func (r Request) String() string {
	switch r.Op {
	case OpListPage:
		return fmt.Sprintf("%s %s page=%d", r.Op, r.Endpoint, r.Page)
	case OpVendorOffers:
		return fmt.Sprintf("%s id=%s", r.Op, r.Key)
	default:
		return fmt.Sprintf("%s %s", r.Op, r.Endpoint)
	}
}

// FetchError is a failed fetch. Kind is ErrTransport or ErrDecode, so both
// errors.Is(err, ErrTransport) and errors.Is(err, <cause>) work.
type FetchError struct {
	Request Request
	Kind    error
	Err     error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Request, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause.
func (e *FetchError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// KindOf classifies an error into the taxonomy. Unknown errors are
// reported as transport errors.
func KindOf(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDecode):
		return ErrDecode
	case errors.Is(err, ErrInvalidRequest):
		return ErrInvalidRequest
	case errors.Is(err, ErrDataInvariant):
		return ErrDataInvariant
	case errors.Is(err, ErrCancelled):
		return ErrCancelled
	default:
		return ErrTransport
	}
}

// KindLabel returns a short metric/log label for an error kind.
func KindLabel(err error) string {
	switch KindOf(err) {
	case nil:
		return "none"
	case ErrDecode:
		return "decode"
	case ErrInvalidRequest:
		return "invalid_request"
	case ErrDataInvariant:
		return "invariant"
	case ErrCancelled:
		return "cancelled"
	default:
		return "transport"
	}
}
