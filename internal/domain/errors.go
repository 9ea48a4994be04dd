package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation indicates a locally rejected intent that was never sent
	ErrValidation = errors.New("validation rejected")
	// ErrNoDocument indicates a question asked before any successful upload
	ErrNoDocument = errors.New("no document uploaded for this session")
	// ErrUploadInFlight indicates an upload is already running for the session
	ErrUploadInFlight = errors.New("upload already in progress")
	// ErrQueryInFlight indicates a query is already running for the session
	ErrQueryInFlight = errors.New("query already in progress")
	// ErrIndexOutOfRange indicates a pending file position that does not exist
	ErrIndexOutOfRange = errors.New("pending file index out of range")
	// ErrSessionDiscarded indicates the session was reset while a call was in flight
	ErrSessionDiscarded = errors.New("session discarded while request was in flight")
)

// Gateway operations, used to tag failures
const (
	OpHealth = "health"
	OpUpload = "upload"
	OpQuery  = "query"
	OpDelete = "delete session"
)

// TransportError means no response was received from the backend
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: backend not reachable: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServiceError is a non-2xx backend response with optional detail
type ServiceError struct {
	Op     string
	Status int
	Detail string
}

func (e *ServiceError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: backend returned %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.Status, e.Detail)
}

// Unwrap maps statuses with a domain meaning onto the matching sentinel
func (e *ServiceError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	}
	return nil
}

// FailureDetail extracts the server-provided detail from a gateway failure.
// It returns "" when the failure carries none
func FailureDetail(err error) string {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Detail
	}
	return ""
}

// IsGatewayFailure reports whether err came back from the backend call
func IsGatewayFailure(err error) bool {
	var svcErr *ServiceError
	var trErr *TransportError
	return errors.As(err, &svcErr) || errors.As(err, &trErr)
}
