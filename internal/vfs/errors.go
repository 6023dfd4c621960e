package vfs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrParentDeleted   = errors.New("parent folder deleted")
	ErrDeleted         = errors.New("resource deleted")
	ErrConsistency     = errors.New("consistency violation")
	ErrStore           = errors.New("store failure")
	ErrNonEmptyFolder  = errors.New("folder not empty")
	ErrMoveConflict    = errors.New("online resource already exists")
	ErrInvalidResource = errors.New("invalid resource")
)

// NotFoundError reports an absent resource, folder or property definition.
type NotFoundError struct {
	Kind string // "resource", "folder", "property definition", ...
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AlreadyExistsError reports a path collision with a live resource.
type AlreadyExistsError struct {
	Path string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("resource already exists: %s", e.Path)
}

func (e *AlreadyExistsError) Is(target error) bool { return target == ErrAlreadyExists }

// ParentDeletedError reports a create below a soft-deleted folder.
type ParentDeletedError struct {
	Path string
}

func (e *ParentDeletedError) Error() string {
	return fmt.Sprintf("parent folder of %s is deleted", e.Path)
}

func (e *ParentDeletedError) Is(target error) bool { return target == ErrParentDeleted }

// DeletedResourceError reports a read of a soft-deleted resource without
// includeDeleted.
type DeletedResourceError struct {
	Path string
}

func (e *DeletedResourceError) Error() string {
	return fmt.Sprintf("resource is deleted: %s", e.Path)
}

func (e *DeletedResourceError) Is(target error) bool { return target == ErrDeleted }

// ConsistencyError reports stored data that violates an integrity rule.
type ConsistencyError struct {
	Msg string
}

func (e *ConsistencyError) Error() string { return "consistency violation: " + e.Msg }

func (e *ConsistencyError) Is(target error) bool { return target == ErrConsistency }

// StoreError wraps a failed query.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

// NonEmptyFolderError lists the children blocking a folder removal.
type NonEmptyFolderError struct {
	Path     string
	Children []string
}

func (e *NonEmptyFolderError) Error() string {
	names := make([]string, len(e.Children))
	for i, c := range e.Children {
		names[i] = "[" + c + "]"
	}
	return fmt.Sprintf("cannot delete non-empty folder %s: %s", e.Path, strings.Join(names, ", "))
}

func (e *NonEmptyFolderError) Is(target error) bool { return target == ErrNonEmptyFolder }

// MoveConflictError reports a move onto a path still occupied online by a
// different resource, which now lives offline at MovedTo.
type MoveConflictError struct {
	Source      string
	Destination string
	MovedTo     string
}

func (e *MoveConflictError) Error() string {
	return fmt.Sprintf("cannot move %s to %s: the online resource at that path was moved to %s and must be published first",
		e.Source, e.Destination, e.MovedTo)
}

func (e *MoveConflictError) Is(target error) bool { return target == ErrMoveConflict }

// InvalidResourceError reports a resource failing path or length validation.
type InvalidResourceError struct {
	Path   string
	Reason string
}

func (e *InvalidResourceError) Error() string {
	return fmt.Sprintf("invalid resource %s: %s", e.Path, e.Reason)
}

func (e *InvalidResourceError) Is(target error) bool { return target == ErrInvalidResource }
