package auth

import "errors"

var (
	// ErrTenantMismatch indicates the resource belongs to a different tenant.
	ErrTenantMismatch = errors.New("auth: tenant mismatch")
	// ErrNotFound indicates the checked resource does not exist.
	ErrNotFound = errors.New("auth: resource not found")
)
