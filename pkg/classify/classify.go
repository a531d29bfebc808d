// Package classify maps failure messages onto a small taxonomy used for diagnostics.
//
// Classification is advisory: every kind stays retryable, the kind only explains
// to the user why a load failed.
package classify

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Kind is the category of a failure
type Kind string

const (
	// None means no failure has been recorded
	None Kind = ""
	// Network covers transport and fetch failures
	Network Kind = "network"
	// Auth covers token and authorization failures
	Auth Kind = "auth"
	// Timeout covers requests that ran out of time
	Timeout Kind = "timeout"
	// CORS covers cross-origin rejections
	CORS Kind = "cors"
	// Other is everything unrecognized
	Other Kind = "other"
)

// String returns the string representation of Kind
func (k Kind) String() string {
	if k == None {
		return "none"
	}
	return string(k)
}

// Kinds lists every classification result in rule order
var Kinds = []Kind{Network, Auth, Timeout, CORS, Other}

type rule struct {
	kind  Kind
	terms []string
}

// Order matters: "network timeout" is a network failure.
var rules = []rule{
	{kind: Network, terms: []string{"network", "fetch", "connection"}},
	{kind: Auth, terms: []string{"token", "auth", "jwt"}},
	{kind: Timeout, terms: []string{"timeout"}},
	{kind: CORS, terms: []string{"cors", "origin"}},
}

// Classify returns the kind of a failure message.
// Matching is a case-insensitive substring search; it is total and deterministic.
func Classify(message string) Kind {
	lower := strings.ToLower(message)
	for _, r := range rules {
		for _, term := range r.terms {
			if strings.Contains(lower, term) {
				return r.kind
			}
		}
	}
	return Other
}

// Error classifies an error by its message, falling back to its type when the
// text is not recognized. Nil yields None.
func Error(err error) Kind {
	if err == nil {
		return None
	}

	var fault *Fault
	if errors.As(err, &fault) {
		return fault.Kind
	}

	if kind := Classify(err.Error()); kind != Other {
		return kind
	}
	return typeKind(err)
}

// typeKind checks structured error types that carry no recognizable text
func typeKind(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Timeout
		}
		return Network
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Network
	}

	return Other
}
