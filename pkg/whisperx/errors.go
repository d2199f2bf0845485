package whisperx

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrNoResult = errors.New("result not ready")
	ErrNoJob    = errors.New("no job hash given and no current job")
)

// TransportError means the request never produced a usable response: the connection
// failed, was reset past the retry budget or timed out.
type TransportError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure after %d attempt(s): %s", e.Op, e.Attempts, e.Err.Error())
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError means the server answered but the answer is unusable: non-JSON body,
// an embedded error field (usually a bad api key) or an unexpected status code.
type ProtocolError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ProtocolError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %d: %s", e.Op, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

const (
	ErrCodeUnknown = iota
	ErrCodeTransport
	ErrCodeProtocol
	ErrCodeNotFound
	ErrCodeNoResult
)

func ErrCode(e error) int {
	var transportErr *TransportError
	var protocolErr *ProtocolError

	switch {
	case errors.As(e, &transportErr):
		return ErrCodeTransport
	case errors.As(e, &protocolErr):
		return ErrCodeProtocol
	case errors.Is(e, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(e, ErrNoResult):
		return ErrCodeNoResult
	default:
		return ErrCodeUnknown
	}
}

func errCodeLabel(err error) string {
	switch ErrCode(err) {
	case ErrCodeTransport:
		return "transport"
	case ErrCodeProtocol:
		return "protocol"
	case ErrCodeNotFound:
		return "not_found"
	case ErrCodeNoResult:
		return "no_result"
	default:
		return "unknown"
	}
}
