package midgard

import "errors"

var (
	// ErrUnsupportedNetwork is returned for network ids missing from the registry.
	ErrUnsupportedNetwork = errors.New("unsupported network")

	// ErrUnsupportedSchema is returned for schema tags no parser exists for.
	ErrUnsupportedSchema = errors.New("unsupported schema version")
)

// RetriableError is implemented by errors that may succeed on a later attempt.
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

// NetworkError wraps a failed request to Midgard.
type NetworkError struct {
	Op        string // endpoint or step that failed, e.g. "get pools"
	Err       error
	Retriable bool
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func newNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

func newFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError is a construction-time failure. Never retriable.
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
