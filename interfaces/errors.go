package interfaces

import "fmt"

// ConfigError reports a fatal configuration problem: a missing or
// unreadable root seed, or a missing/unparsable app manifest. It aborts
// the current app's command sequence; sibling fan-out jobs are unaffected.
type ConfigError struct {
	Op  string
	Err error
}

// NewConfigError wraps err with the operation that failed.
func NewConfigError(op string, err error) *ConfigError {
	return &ConfigError{Op: op, Err: err}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
