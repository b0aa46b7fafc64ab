package remote

import (
	"errors"
	"fmt"
)

// Kind classifies a failed remote call for the sync engine's retry policy.
type Kind int

const (
	// KindTransport means no usable response arrived (connection refused,
	// DNS failure, timeout). Always retriable.
	KindTransport Kind = iota

	// KindClient means the backend definitively rejected the request
	// (4xx). Retrying the identical payload will fail again.
	KindClient

	// KindServer means the backend failed transiently (5xx). Retriable,
	// handled the same as a transport failure.
	KindServer
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is a classified remote call failure.
type Error struct {
	Kind       Kind
	Op         string // the mutation operation, e.g. "create_goal"
	StatusCode int    // zero for transport failures
	Message    string // response body excerpt, if any
	Err        error  // underlying error, if any
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote %s: %s error (status %d): %s", e.Op, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the classification from an error. Unclassified errors
// are treated as transport failures, the conservative retriable default.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindTransport
}

// IsClient reports whether err is a definitive client-side rejection.
func IsClient(err error) bool {
	return err != nil && KindOf(err) == KindClient
}
