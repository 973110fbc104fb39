package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated indicates the request carried no actor.
	ErrUnauthenticated = errors.New("actor required")
	// ErrPermissionDenied indicates the actor lacks a permission.
	ErrPermissionDenied = errors.New("permission denied")
)
