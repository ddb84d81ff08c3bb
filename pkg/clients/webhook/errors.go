package webhook

import (
	"errors"
	"fmt"
)

// ConfigurationError means the destination is not set up. Resubmitting
// won't help until an operator fixes the configuration.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "webhook configuration missing: " + e.Reason
}

// TransportError means the request could not be sent (Err set) or the
// remote answered with a non-2xx status (StatusCode set).
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("webhook request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("failed to submit form, please try again later: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsConfiguration reports whether err is a ConfigurationError
func IsConfiguration(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// IsRetryable reports whether resubmitting the same draft may succeed
func IsRetryable(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
