package llm

import (
	"fmt"
	"time"
)

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	// Message is the provider's error.message, empty if the body was not
	// a structured error.
	Message string
	Type    string
	// Body holds a truncated copy of an unstructured error body.
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Message != "" && e.Type != "":
		return fmt.Sprintf("llmclient: upstream %d: %s (%s)", e.StatusCode, e.Message, e.Type)
	case e.Message != "":
		return fmt.Sprintf("llmclient: upstream %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("llmclient: upstream %d: %s", e.StatusCode, e.Body)
	}
}
