package worker

import (
	"errors"
	"reflect"
	"strings"
)

// maxCauseChain bounds how many errors of a cause chain are inspected
const maxCauseChain = 64

// transientMarkers are matched case-insensitively against every message of
// the cause chain.
var transientMarkers = []string{
	"deadlock",
	"lock wait timeout",
	"server has gone away",
	"gone away",
	"connection refused",
	"timed out",
	"timeout",
	"temporarily unavailable",
	"throttl",
	"too many requests",
	"service unavailable",
}

// FailureClassifier decides whether a processing failure is worth redelivering
type FailureClassifier struct {
	markers []string
}

func NewFailureClassifier() *FailureClassifier {
	return &FailureClassifier{markers: transientMarkers}
}

// IsRetriable reports whether any error in err's cause chain carries a
// transient failure marker.
func (c *FailureClassifier) IsRetriable(err error) bool {
	for _, e := range causeChain(err) {
		msg := strings.ToLower(e.Error())
		for _, marker := range c.markers {
			if strings.Contains(msg, marker) {
				return true
			}
		}
	}
	return false
}

// causeChain flattens err and its wrapped causes breadth first. Pointer errors
// already visited are skipped so a self-referencing chain terminates.
func causeChain(err error) []error {
	if err == nil {
		return nil
	}

	var (
		chain []error
		seen  []error
		queue = []error{err}
	)

	for len(queue) > 0 && len(chain) < maxCauseChain {
		e := queue[0]
		queue = queue[1:]
		if e == nil || visited(seen, e) {
			continue
		}
		seen = append(seen, e)
		chain = append(chain, e)

		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			queue = append(queue, u.Unwrap()...)
		default:
			if next := errors.Unwrap(e); next != nil {
				queue = append(queue, next)
			}
		}
	}
	return chain
}

// visited compares pointer errors by identity. Value errors may hold
// non-comparable fields and are never deduplicated.
func visited(seen []error, e error) bool {
	if reflect.TypeOf(e).Kind() != reflect.Pointer {
		return false
	}
	for _, s := range seen {
		if reflect.TypeOf(s) == reflect.TypeOf(e) && s == e {
			return true
		}
	}
	return false
}
