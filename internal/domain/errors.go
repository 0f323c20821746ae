package domain

import (
	"errors"
	"strconv"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// ConnectionError represents a handshake or transport failure on the feed connection
type ConnectionError struct {
	Op        string // Operation that failed (e.g., "dial", "read")
	Endpoint  string // Endpoint without query string
	Err       error  // Underlying error
	Retriable bool   // Whether a redial may succeed
}

func (e *ConnectionError) Error() string {
	if e.Endpoint == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Endpoint + ": " + e.Err.Error()
}

func (e *ConnectionError) IsRetriable() bool {
	return e.Retriable
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NewConnectionError creates a new retriable connection error
func NewConnectionError(op, endpoint string, err error) *ConnectionError {
	return &ConnectionError{Op: op, Endpoint: endpoint, Err: err, Retriable: true}
}

// NewFatalConnectionError creates a non-retriable connection error
func NewFatalConnectionError(op, endpoint string, err error) *ConnectionError {
	return &ConnectionError{Op: op, Endpoint: endpoint, Err: err, Retriable: false}
}

// DecodeKind tags the stage at which a frame failed to decode.
type DecodeKind uint8

const (
	// KindEncoding means the payload is not valid UTF-8.
	KindEncoding DecodeKind = iota + 1
	// KindMalformed means the text does not match the envelope shape.
	KindMalformed
)

func (k DecodeKind) String() string {
	switch k {
	case KindEncoding:
		return "encoding"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// DecodeError is a per-frame decode failure. The frame is discarded.
type DecodeError struct {
	Kind DecodeKind
	Err  error
}

func (e *DecodeError) Error() string {
	return "decode " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrInvalidEncoding:
		return e.Kind == KindEncoding
	case ErrMalformedPayload:
		return e.Kind == KindMalformed
	}
	return false
}

// StorageError is a failed insert of a single trade into the sink.
type StorageError struct {
	Symbol string
	Err    error
}

func (e *StorageError) Error() string {
	return "store trade [" + e.Symbol + "]: " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// WriteError is a failed outbound write of a subscribe directive.
type WriteError struct {
	Symbol string
	Err    error
}

func (e *WriteError) Error() string {
	return "write subscribe [" + e.Symbol + "]: " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// IsRetriable is always true: the next subscription tick writes again.
func (e *WriteError) IsRetriable() bool {
	return true
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// HandshakeStatusError carries the HTTP status of a rejected websocket upgrade.
type HandshakeStatusError struct {
	StatusCode int
}

func (e *HandshakeStatusError) Error() string {
	return "handshake rejected with status " + strconv.Itoa(e.StatusCode)
}

var (
	// ErrConnectionFailed is returned when websocket connection fails. It's usually retriable.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrSessionClosed is returned when writing to or reading from a finished session.
	ErrSessionClosed = errors.New("session closed")

	// ErrInvalidEncoding matches any DecodeError of kind KindEncoding.
	ErrInvalidEncoding = errors.New("invalid utf-8 payload")

	// ErrMalformedPayload matches any DecodeError of kind KindMalformed.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrUnsupportedSink is returned when a storage DSN names an unknown scheme.
	ErrUnsupportedSink = errors.New("unsupported sink")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
