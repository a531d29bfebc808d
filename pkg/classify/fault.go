package classify

import (
	"fmt"
)

// Fault is the single error shape failures are normalized into before they are
// classified and recorded
type Fault struct {
	Message string
	Kind    Kind
	Cause   error
}

// Error implements the error interface
func (f *Fault) Error() string {
	return f.Message
}

// Unwrap returns the underlying error, if the fault was built from one
func (f *Fault) Unwrap() error {
	return f.Cause
}

// messager matches values shaped like {message: "..."}
type messager interface {
	Message() string
}

// Normalize turns whatever an operation failed with into a Fault.
// Strings, errors, Stringers and Message() carriers keep their text; anything
// else is formatted with %v. Nil yields nil.
func Normalize(v any) *Fault {
	switch val := v.(type) {
	case nil:
		return nil
	case *Fault:
		return val
	case error:
		return &Fault{Message: val.Error(), Kind: Error(val), Cause: val}
	case string:
		return &Fault{Message: val, Kind: Classify(val)}
	case messager:
		msg := val.Message()
		return &Fault{Message: msg, Kind: Classify(msg)}
	case fmt.Stringer:
		msg := val.String()
		return &Fault{Message: msg, Kind: Classify(msg)}
	default:
		msg := fmt.Sprintf("%v", val)
		return &Fault{Message: msg, Kind: Classify(msg)}
	}
}

// NewFault creates a Fault with an explicit kind
func NewFault(kind Kind, message string, cause error) *Fault {
	return &Fault{Message: message, Kind: kind, Cause: cause}
}
