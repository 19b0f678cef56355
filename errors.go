package memocache

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidScope       = errors.New("memocache: invalid scope")
	ErrNotFound           = errors.New("memocache: key not found")
	ErrRecursion          = errors.New("memocache: maximum recursion depth exceeded")
	ErrBadArguments       = errors.New("memocache: arguments do not match function")
	ErrUnknownDependency  = errors.New("memocache: unknown dependency")
	ErrUnknownPlaceholder = errors.New("memocache: unknown path placeholder")
	ErrRejected           = errors.New("memocache: provider rejected write")
)

// StateError reports a host whose state cannot be exported.
type StateError struct {
	Host string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("memocache: cannot get state of %s: no BaseState and not a struct", e.Host)
}

// PersistError wraps a provider or codec failure of a persisted property.
type PersistError struct {
	Property string
	Op       string // "load", "encode", "save", "delete"
	Path     string
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("memocache: %s %q for property %s: %v", e.Op, e.Path, e.Property, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
