package timeparse

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// ErrInvalidTimezone is returned when the timezone is not a resolvable IANA zone id.
var ErrInvalidTimezone = errors.New("unknown timezone")

// ErrTimeInPast is returned when the resolved timestamp is not strictly after
// the reference time.
var ErrTimeInPast = errors.New("resolved time is in the past")

// Examples are suggested to the user when a phrase cannot be parsed.
var Examples = []string{
	"in 10 minutes",
	"tomorrow at 9am",
	"next friday at 15:00",
	"march 3 at noon",
}

// UnparseableError means the phrase produced no candidate interpretation.
type UnparseableError struct {
	Input string
}

func (e *UnparseableError) Error() string {
	return fmt.Sprintf("could not understand %q, try something like: %s", e.Input, strings.Join(Examples, ", "))
}

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// Resolve turns a natural-language time phrase into an absolute timestamp in
// the given IANA timezone, relative to ref. A zero ref means "now".
// Deterministic for a fixed ref, so tests can pin the reference time.
func Resolve(input, timezone string, ref time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimezone, timezone)
	}
	if ref.IsZero() {
		ref = time.Now()
	}
	ref = ref.In(loc)

	result, err := parser.Parse(input, ref)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", input, err)
	}
	if result == nil {
		return time.Time{}, &UnparseableError{Input: input}
	}
	if !result.Time.After(ref) {
		return time.Time{}, fmt.Errorf("%w: %s resolves to %s", ErrTimeInPast, input, result.Time.Format(time.RFC3339))
	}
	return result.Time, nil
}
