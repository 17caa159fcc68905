package apperrors

import "fmt"

// ErrNotFound represents an error when a requested resource is not found.
type ErrNotFound struct {
	Resource string
	ID       interface{}
}

// Error implements the error interface.
func (e *ErrNotFound) Error() string {
	if e.ID != nil {
		return fmt.Sprintf("%s with ID %v not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is allows for error checking with errors.Is().
func (e *ErrNotFound) Is(target error) bool {
	_, ok := target.(*ErrNotFound)
	return ok
}

// NewNotFoundError creates a new ErrNotFound.
func NewNotFoundError(resource string, id interface{}) *ErrNotFound {
	return &ErrNotFound{
		Resource: resource,
		ID:       id,
	}
}

// NewDownloadNotFoundError creates a specific error for when a download id is unknown.
func NewDownloadNotFoundError(id string) *ErrNotFound {
	return &ErrNotFound{
		Resource: "download",
		ID:       id,
	}
}

// ErrValidation is returned synchronously when a request is rejected before any
// work starts: empty or unparseable URL, missing id, unsupported media kind.
type ErrValidation struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ErrValidation) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is allows for error checking with errors.Is().
func (e *ErrValidation) Is(target error) bool {
	_, ok := target.(*ErrValidation)
	return ok
}

// NewValidationError creates a new ErrValidation.
func NewValidationError(field, reason string) *ErrValidation {
	return &ErrValidation{
		Field:  field,
		Reason: reason,
	}
}

// ErrTransient is a network-level failure that is worth retrying: connection
// reset, timeout, stalled body, or a 5xx answer from the CDN.
type ErrTransient struct {
	URL    string
	Status int   // zero when the failure happened below HTTP
	Err    error // underlying cause, may be nil
}

// Error implements the error interface.
func (e *ErrTransient) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transient failure fetching %s: server returned %d", e.URL, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("transient failure fetching %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("transient failure fetching %s", e.URL)
}

// Is allows for error checking with errors.Is().
func (e *ErrTransient) Is(target error) bool {
	_, ok := target.(*ErrTransient)
	return ok
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *ErrTransient) Unwrap() error {
	return e.Err
}

// NewTransientError creates a new ErrTransient from a low-level cause.
func NewTransientError(url string, err error) *ErrTransient {
	return &ErrTransient{
		URL: url,
		Err: err,
	}
}

// NewTransientStatusError creates a new ErrTransient from a retryable HTTP status.
func NewTransientStatusError(url string, status int) *ErrTransient {
	return &ErrTransient{
		URL:    url,
		Status: status,
	}
}

// ErrProtocol is returned when the server answered with a status the client
// must not retry, such as 403 or 404.
type ErrProtocol struct {
	URL    string
	Status int
}

// Error implements the error interface.
func (e *ErrProtocol) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.Status, e.URL)
}

// Is allows for error checking with errors.Is().
func (e *ErrProtocol) Is(target error) bool {
	_, ok := target.(*ErrProtocol)
	return ok
}

// NewProtocolError creates a new ErrProtocol.
func NewProtocolError(url string, status int) *ErrProtocol {
	return &ErrProtocol{
		URL:    url,
		Status: status,
	}
}

// ErrFilesystem is a local I/O failure: directory creation, temp-file writes,
// the final rename, or insufficient free space.
type ErrFilesystem struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ErrFilesystem) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("filesystem %s failed for %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("filesystem %s failed for %s", e.Op, e.Path)
}

// Is allows for error checking with errors.Is().
func (e *ErrFilesystem) Is(target error) bool {
	_, ok := target.(*ErrFilesystem)
	return ok
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *ErrFilesystem) Unwrap() error {
	return e.Err
}

// NewFilesystemError creates a new ErrFilesystem.
func NewFilesystemError(op, path string, err error) *ErrFilesystem {
	return &ErrFilesystem{
		Op:   op,
		Path: path,
		Err:  err,
	}
}
