package proto

// Error is a categorized protocol error. Errors with the same Code match
// each other under errors.Is, so callers can test against the sentinels
// below regardless of message or cause.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Error codes
const (
	ErrCodeConfiguration = "CONFIGURATION"
	ErrCodeConnection    = "CONNECTION"
	ErrCodeMalformed     = "MALFORMED_COMMAND"
	ErrCodeUnsupported   = "UNSUPPORTED_COMMAND"
	ErrCodeSerialization = "SERIALIZATION"
)

var (
	ErrConfiguration      = &Error{Code: ErrCodeConfiguration, Message: "invalid configuration"}
	ErrConnection         = &Error{Code: ErrCodeConnection, Message: "connection failed"}
	ErrMalformedCommand   = &Error{Code: ErrCodeMalformed, Message: "malformed command"}
	ErrUnsupportedCommand = &Error{Code: ErrCodeUnsupported, Message: "unsupported command"}
	ErrSerialization      = &Error{Code: ErrCodeSerialization, Message: "serialization failed"}
)

// NewError builds an error in the category of code.
func NewError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}
