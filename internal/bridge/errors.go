package bridge

import (
	"errors"
	"net/http"
	"time"

	"github.com/Flashl3opard/structify/internal/llm"
)

// Kind classifies a conversion failure.
type Kind string

const (
	KindInvalidInput  Kind = "invalid_input"
	KindConfiguration Kind = "configuration"
	KindUpstream      Kind = "upstream"
	KindTransport     Kind = "transport"
	KindParse         Kind = "parse"
)

// Envelope messages seen by HTTP callers.
const (
	MsgPromptRequired  = "Prompt is required"
	MsgPromptTooLarge  = "Prompt is too large"
	MsgConfiguration   = "Server configuration error"
	MsgUpstream        = "Groq API error"
	MsgUnparseable     = "Could not parse AI response as JSON"
	MsgInternalFailure = "Internal Server Error"
)

var (
	// ErrEmptyPrompt is wrapped by InvalidInput errors for a missing prompt.
	ErrEmptyPrompt = errors.New("bridge: prompt is empty")

	// ErrMissingCredential is wrapped by Configuration errors.
	ErrMissingCredential = errors.New("bridge: API key is not configured")

	// ErrUnparseable is wrapped by Parse errors.
	ErrUnparseable = errors.New("bridge: response is not a JSON array")
)

// Error is the single error type returned by Convert.
type Error struct {
	Kind Kind
	// Status is the upstream HTTP status for KindUpstream.
	Status  int
	Message string
	Details string
	// RetryAfter is the upstream's Retry-After hint, if any.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := "bridge: " + string(e.Kind) + ": " + e.Message
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// HTTPStatus maps the error to the status the inbound endpoint answers with.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUpstream:
		if e.Status >= 400 && e.Status <= 599 {
			return e.Status
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Envelope is the uniform JSON error body.
type Envelope struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (e *Error) Envelope() Envelope {
	return Envelope{Error: e.Message, Details: e.Details}
}

// AsError returns err as *Error, classifying foreign errors as transport
// failures. It returns nil for a nil err.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	return fromClientError(err)
}

// KindOf returns the kind of err, or "" for nil.
func KindOf(err error) Kind {
	if be := AsError(err); be != nil {
		return be.Kind
	}
	return ""
}

// PromptRequired is the InvalidInput error for an empty prompt. Callers that
// screen requests before converting answer with it directly.
func PromptRequired() *Error {
	return invalidInput(MsgPromptRequired, ErrEmptyPrompt)
}

func invalidInput(msg string, err error) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg, Err: err}
}

func configurationError() *Error {
	return &Error{Kind: KindConfiguration, Message: MsgConfiguration, Err: ErrMissingCredential}
}

func parseError(cause error) *Error {
	err := ErrUnparseable
	if cause != nil {
		err = errors.Join(ErrUnparseable, cause)
	}
	return &Error{Kind: KindParse, Message: MsgUnparseable, Err: err}
}

// fromClientError maps llm client failures onto bridge kinds.
func fromClientError(err error) *Error {
	var serr *llm.StatusError
	if errors.As(err, &serr) {
		return &Error{
			Kind:       KindUpstream,
			Status:     serr.StatusCode,
			Message:    MsgUpstream,
			Details:    serr.Message,
			RetryAfter: serr.RetryAfter,
			Err:        err,
		}
	}
	if errors.Is(err, llm.ErrRequestTooLarge) {
		return invalidInput(MsgPromptTooLarge, err)
	}

	msg := err.Error()
	if msg == "" {
		msg = MsgInternalFailure
	}
	return &Error{Kind: KindTransport, Message: msg, Err: err}
}
