package client

import (
	"fmt"
	"net/http"
)

// TransportError is returned when a request never produced an HTTP response
// (connection refused, timeout, cancelled context).
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// BackendError is a non-2xx answer from the backend. Message is the body's
// "error" field, or the status text when the body carries none.
type BackendError struct {
	Path    string
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: backend returned %d: %s", e.Path, e.Status, e.Message)
}

func newBackendError(path string, resp *Response) *BackendError {
	return &BackendError{
		Path:    path,
		Status:  resp.Status,
		Message: resp.ErrorMessage(http.StatusText(resp.Status)),
	}
}
