package hotswap

import (
	"errors"
	"fmt"
)

var (
	ErrClassNotFound    = errors.New("class not found")
	ErrArchiveNotFound  = errors.New("archive path is not registered")
	ErrNotActive        = errors.New("context is not active")
	ErrNotFound         = errors.New("not found")
	ErrUnsupportedBean  = errors.New("bean kind is not supported for reloading")
	ErrNotManagedBean   = errors.New("class is not a managed bean")
	ErrDuplicateBean    = errors.New("bean is already defined for class")
	ErrRegistryIsNil    = errors.New("registry is nil")
	ErrClassTypeIsNil   = errors.New("class type is nil")
	ErrInvalidClassType = errors.New("class type must be a struct or pointer to struct")
)

// ClassNotFoundError reports a class name that a loader could not resolve.
type ClassNotFoundError struct {
	Loader string
	Name   string
}

func (e ClassNotFoundError) Error() string {
	return fmt.Sprintf("class %q not found in loader %q", e.Name, e.Loader)
}

func (e ClassNotFoundError) Unwrap() error {
	return ErrClassNotFound
}

// ReconcileError reports a failure of one bean within a reconciliation batch.
type ReconcileError struct {
	BeanID string
	Action Action
	Err    error
}

func (e ReconcileError) Error() string {
	return fmt.Sprintf("reconcile bean %s (%s): %v", e.BeanID, e.Action, e.Err)
}

func (e ReconcileError) Unwrap() error {
	return e.Err
}
