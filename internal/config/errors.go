package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound is returned when the stream configuration file does not exist.
	ErrConfigNotFound = errors.New("stream config not found")
	// ErrMediaNotFound is returned when a configured video or audio file is missing.
	ErrMediaNotFound = errors.New("media file not found")
	// ErrStreamKeyPlaceholder is returned when the stream key was never filled in.
	ErrStreamKeyPlaceholder = errors.New("stream key is still the placeholder")
	// ErrMissingKey is returned when a required key is absent or empty.
	ErrMissingKey = errors.New("missing required key")
	// ErrInvalidValue is returned when a value is out of range.
	ErrInvalidValue = errors.New("invalid value")
)

// ValidationError describes one problem with the stream configuration.
type ValidationError struct {
	Key  string // dotted path such as "youtube.stream_key"
	Err  error  // one of the sentinels above
	Hint string // remediation shown to the operator
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Key, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Remediations collects the operator hints attached to err, in order.
func Remediations(err error) []string {
	switch e := err.(type) {
	case nil:
		return nil
	case *ValidationError:
		if e.Hint == "" {
			return nil
		}
		return []string{e.Hint}
	case interface{ Unwrap() []error }:
		var hints []string
		for _, inner := range e.Unwrap() {
			hints = append(hints, Remediations(inner)...)
		}
		return hints
	default:
		return Remediations(errors.Unwrap(err))
	}
}
