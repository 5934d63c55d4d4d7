package ftpwalk

import (
	"errors"
	"fmt"
	"io/fs"
)

// ProtocolError represents an FTP protocol error with full context of the
// command/response conversation. This provides detailed debugging information
// beyond simple error messages.
type ProtocolError struct {
	// Command is the FTP command that was sent (e.g., "CWD /pub")
	Command string

	// Response is the raw response received from the server (e.g., "550 No such directory")
	Response string

	// Code is the numeric FTP response code (e.g., 550)
	Code int
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ftpwalk: %s failed: %s (code %d)", e.Command, e.Response, e.Code)
}

// Is reports fs.ErrNotExist for 550 replies. Servers answer 550 to CWD when
// the path does not exist or is not an accessible directory, so this is the
// closest mapping onto the standard error values.
func (e *ProtocolError) Is(target error) bool {
	return target == fs.ErrNotExist && e.Code == 550
}

// Is2xx returns true if the error code is in the 2xx range (success).
func (e *ProtocolError) Is2xx() bool {
	return e.Code >= 200 && e.Code < 300
}

// Is3xx returns true if the error code is in the 3xx range (intermediate).
func (e *ProtocolError) Is3xx() bool {
	return e.Code >= 300 && e.Code < 400
}

// Is4xx returns true if the error code is in the 4xx range (temporary failure).
func (e *ProtocolError) Is4xx() bool {
	return e.Code >= 400 && e.Code < 500
}

// Is5xx returns true if the error code is in the 5xx range (permanent failure).
func (e *ProtocolError) Is5xx() bool {
	return e.Code >= 500 && e.Code < 600
}

// IsTemporary returns true if the error is a temporary failure (4xx).
// This can be used to implement retry logic.
func (e *ProtocolError) IsTemporary() bool {
	return e.Is4xx()
}

// IsPermanent returns true if the error is a permanent failure (5xx).
func (e *ProtocolError) IsPermanent() bool {
	return e.Is5xx()
}

// WalkError records an error encountered during a tree traversal together
// with the URL of the directory being processed when it occurred.
type WalkError struct {
	// Op is the operation that failed: "parse", "connect", "login", "cwd",
	// "list" or "mlsd"
	Op string

	// URL is the directory URL the walker was working on
	URL string

	// Err is the underlying error
	Err error
}

// Error implements the error interface.
func (e *WalkError) Error() string {
	return "ftpwalk: " + e.Op + " " + e.URL + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *WalkError) Unwrap() error {
	return e.Err
}

// ParseError is returned when a listing line does not conform to the
// expected format. The walker fails fast on malformed lines rather than
// silently skipping them, so traversals stay deterministic.
type ParseError struct {
	// Line is the raw listing line that could not be parsed
	Line string

	// Reason describes what was wrong with it
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("ftpwalk: malformed listing line %q: %s", e.Line, e.Reason)
}

// IsNotExist reports whether err indicates a remote path that does not exist
// or is not accessible, i.e. a 550 reply to a change-directory request.
// It unwraps WalkError and ProtocolError layers.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// errClosed marks operations cut short because the walker was closed.
var errClosed = errors.New("walker is closed")
