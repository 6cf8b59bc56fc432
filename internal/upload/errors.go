package upload

import (
	"errors"
	"fmt"
)

// ErrAlreadyUploading is returned when a second upload is attempted for a
// measurement whose previous upload attempt has not completed or failed
// (spec.md §4.7, §5).
var ErrAlreadyUploading = errors.New("upload: already uploading")

// Transport wraps a non-HTTP network failure: I/O, TLS, DNS. Transient by
// nature — retried with backoff up to MaxAttempts (spec.md §7).
type Transport struct {
	Cause error
}

func (e *Transport) Error() string { return fmt.Sprintf("upload: transport: %v", e.Cause) }
func (e *Transport) Unwrap() error { return e.Cause }

// HttpStatus wraps an HTTP response the protocol did not expect at this
// point in the exchange.
type HttpStatus struct {
	Code int
}

func (e *HttpStatus) Error() string { return fmt.Sprintf("upload: unexpected http status %d", e.Code) }

// AuthRequired signals a 401 that persisted across the single allowed
// refresh-and-retry (spec.md §4.7 step 2).
type AuthRequired struct{}

func (e *AuthRequired) Error() string { return "upload: authentication required" }

// ServerRejected wraps a non-transient 4xx (other than 401/404/409): the
// session is abandoned and kept for manual inspection.
type ServerRejected struct {
	Code int
	Body string
}

func (e *ServerRejected) Error() string {
	return fmt.Sprintf("upload: server rejected upload (status %d): %s", e.Code, e.Body)
}
