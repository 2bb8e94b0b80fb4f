package classify

import (
	"strings"
)

// Class is the outcome of classifying a delivery error.
type Class string

const (
	// Transient failures may self-resolve; the record stays retryable.
	Transient Class = "transient"
	// Permanent failures will not be fixed by retrying.
	Permanent Class = "permanent"
)

// Classifier decides whether a raw provider error is worth retrying.
// Implementations must be deterministic and side-effect free.
type Classifier interface {
	Classify(errorMessage string) Class
}

// Func adapts a plain function to the Classifier interface.
type Func func(errorMessage string) Class

func (fn Func) Classify(errorMessage string) Class {
	return fn(errorMessage)
}

// permanentPatterns match conditions that will not change on retry:
// bad addresses, unknown recipients, auth failures, explicit blocks.
var permanentPatterns = []string{
	"invalid email",
	"invalid recipient",
	"invalid address",
	"address not found",
	"recipient not found",
	"domain not found",
	"no such user",
	"user unknown",
	"mailbox not found",
	"mailbox unavailable",
	"unauthorized",
	"forbidden",
	"invalid api key",
	"401",
	"403",
	"blocked",
}

// transientPatterns match conditions that may clear up on their own.
var transientPatterns = []string{
	"timeout",
	"timed out",
	"rate limit",
	"too many requests",
	"502",
	"503",
	"504",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"connection reset",
	"connection refused",
	"socket",
	"temporarily unavailable",
}

// SubstringClassifier classifies raw error text by case-insensitive
// substring matching against fixed pattern lists. Permanent patterns are
// checked first: when a message matches both lists the result is Permanent,
// so irrecoverable errors are never retried. Messages matching neither list
// default to Transient.
type SubstringClassifier struct {
	permanent []string
	transient []string
}

// NewSubstringClassifier returns a classifier with the default pattern lists.
func NewSubstringClassifier() *SubstringClassifier {
	return &SubstringClassifier{
		permanent: permanentPatterns,
		transient: transientPatterns,
	}
}

func (c *SubstringClassifier) Classify(errorMessage string) Class {
	msg := strings.ToLower(errorMessage)

	for _, p := range c.permanent {
		if strings.Contains(msg, p) {
			return Permanent
		}
	}

	for _, p := range c.transient {
		if strings.Contains(msg, p) {
			return Transient
		}
	}

	// Unknown errors are assumed recoverable.
	return Transient
}
