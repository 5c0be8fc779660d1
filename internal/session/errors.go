package session

import "fmt"

// DocumentError is the typed error surface of the session. Status carries
// HTTP-ish semantics so API layers can distinguish "does not exist" from
// "exists but the operation is not allowed in the current state".
type DocumentError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DocumentError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func notFound(format string, args ...any) *DocumentError {
	return &DocumentError{Status: 404, Code: "NOT_FOUND", Message: fmt.Sprintf(format, args...)}
}

func invalidState(format string, args ...any) *DocumentError {
	return &DocumentError{Status: 409, Code: "INVALID_STATE", Message: fmt.Sprintf(format, args...)}
}

func referentialIntegrity(format string, args ...any) *DocumentError {
	return &DocumentError{Status: 409, Code: "REFERENTIAL_INTEGRITY", Message: fmt.Sprintf(format, args...)}
}

func concurrentUpdate(format string, args ...any) *DocumentError {
	return &DocumentError{Status: 409, Code: "CONCURRENT_UPDATE", Message: fmt.Sprintf(format, args...)}
}

func configurationError(format string, args ...any) *DocumentError {
	return &DocumentError{Status: 500, Code: "CONFIGURATION", Message: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is the session's not-found error.
func IsNotFound(err error) bool {
	de, ok := err.(*DocumentError)
	return ok && de.Code == "NOT_FOUND"
}
