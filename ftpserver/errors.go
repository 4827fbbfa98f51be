package ftpserver

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is returned when a path escapes the session's home jail.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound is returned when a required path does not exist.
	ErrNotFound = errors.New("not found")
)

// NetworkError is a wrapper for errors on the control or data sockets.
type NetworkError struct {
	str string
	err error
}

func newNetworkError(str string, err error) NetworkError {
	return NetworkError{str: str, err: err}
}

func (e NetworkError) Error() string {
	return fmt.Sprintf("network error: %s: %v", e.str, e.err)
}

func (e NetworkError) Unwrap() error {
	return e.err
}

// FileAccessError is a wrapper for filesystem errors inside a session.
type FileAccessError struct {
	str string
	err error
}

func newFileAccessError(str string, err error) FileAccessError {
	return FileAccessError{str: str, err: err}
}

func (e FileAccessError) Error() string {
	return fmt.Sprintf("file access error: %s: %v", e.str, e.err)
}

func (e FileAccessError) Unwrap() error {
	return e.err
}
