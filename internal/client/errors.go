package client

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport wraps failures that never produced an HTTP response.
	ErrTransport = errors.New("transport failure")
	// ErrMissingSelection is returned when a call needs a chat or workspace id and got none.
	ErrMissingSelection = errors.New("missing selection")
	// ErrNotSignedIn is returned when no access token is available.
	ErrNotSignedIn = errors.New("not signed in")
)

// StatusError is a non-2xx response, decoded from the server's {code, error} body when possible.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
	return fmt.Sprintf("status %d: %s: %s", e.Status, e.Code, e.Message)
}

// IsStatus reports whether err is a StatusError with the given status.
func IsStatus(err error, status int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Status == status
}
