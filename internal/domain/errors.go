package domain

import (
	"errors"
	"strings"
)

// ErrorMarker prefixes every user-visible error string.
const ErrorMarker = "Error:"

var (
	// ErrConnectivity covers an unreachable or misconfigured vector store or completion API.
	ErrConnectivity = errors.New("connectivity error")
	// ErrAuthentication covers a missing or rejected API key.
	ErrAuthentication = errors.New("authentication error")
)

// ErrorKind names the class of a pipeline failure.
type ErrorKind string

const (
	KindConnectivity   ErrorKind = "connectivity"
	KindAuthentication ErrorKind = "authentication"
	KindGeneric        ErrorKind = "generic"
)

// Classify maps an error onto the taxonomy. Unknown errors are generic.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, ErrConnectivity):
		return KindConnectivity
	default:
		return KindGeneric
	}
}

// UserMessage renders err as a string fit for display to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(ErrorMarker)
	b.WriteString(" ")
	b.WriteString(err.Error())
	switch Classify(err) {
	case KindAuthentication:
		b.WriteString(" (check your OpenAI API key)")
	case KindConnectivity:
		b.WriteString(" (check the Qdrant and OpenAI endpoints)")
	}
	return b.String()
}
