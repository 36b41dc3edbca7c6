package core

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is matched by every *ConfigError.
	ErrConfiguration = errors.New("configuration error")
	// ErrTargetNotFound is matched by every *TargetNotFoundError.
	ErrTargetNotFound = errors.New("target not found")
	// ErrStaleSettings reports a settings snapshot taken from a different system definition.
	ErrStaleSettings = errors.New("system settings do not match the current system state")
)

// ConfigError describes an inconsistent chip, box, wiring or params definition.
type ConfigError struct {
	Subject string
	Reason  string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("configuration error: %s: %s", e.Subject, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConfiguration}
	}
	return []error{ErrConfiguration, e.Err}
}

func configErrorf(subject, format string, args ...any) error {
	return &ConfigError{Subject: subject, Reason: fmt.Sprintf(format, args...)}
}

// TargetNotFoundError is returned when a target label is not resolvable.
type TargetNotFoundError struct {
	Label string
}

func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("target %q not found", e.Label)
}

func (e *TargetNotFoundError) Is(target error) bool { return target == ErrTargetNotFound }

// EntityType names the kind of entity an ErrNotFound refers to.
type EntityType string

const (
	EntityBox      EntityType = "box"
	EntityPort     EntityType = "port"
	EntityQubit    EntityType = "qubit"
	EntityMux      EntityType = "mux"
	EntitySettings EntityType = "system settings"
)

// ErrNotFound is returned when a box, port, qubit, mux or snapshot lookup fails.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// IsNotFound reports whether err carries an ErrNotFound for the given entity.
func IsNotFound(err error, entity EntityType) bool {
	var nf ErrNotFound
	return errors.As(err, &nf) && nf.Entity == entity
}
