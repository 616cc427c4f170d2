package bookgate

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrInvalidInput indicates a request failed validation
	ErrInvalidInput = errors.New("invalid input")

	// ErrResourceNotFound indicates a resource was not found
	ErrResourceNotFound = errors.New("resource not found")

	// ErrCodeNotFound indicates an activation code was not found
	ErrCodeNotFound = errors.New("activation code not found")

	// ErrGrantNotFound indicates an activation grant was not found
	ErrGrantNotFound = errors.New("activation grant not found")

	// ErrFileNotFound indicates a requested resource file does not exist
	ErrFileNotFound = errors.New("file not found")

	// ErrCodeExists indicates an activation code value is already taken
	ErrCodeExists = errors.New("activation code already exists")

	// ErrAlreadyRedeemed indicates the user has already redeemed this code
	ErrAlreadyRedeemed = errors.New("code already redeemed by user")

	// ErrForbidden indicates the user's role does not match the resource's audience
	ErrForbidden = errors.New("role not permitted for resource")

	// ErrCapacityExceeded indicates the code's activation limit has been reached
	ErrCapacityExceeded = errors.New("activation limit reached")

	// ErrCodeExpired indicates the code's expiry date has passed
	ErrCodeExpired = errors.New("activation code expired")

	// ErrCodeInactive indicates the code has been deactivated
	ErrCodeInactive = errors.New("activation code inactive")

	// ErrCodeOrphaned indicates a code references a resource that no longer exists
	ErrCodeOrphaned = errors.New("activation code references missing resource")
)

// ResourceError represents an error related to resource operations
type ResourceError struct {
	ResourceID uuid.UUID
	Op         string
	Err        error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource operation %s failed for resource %s: %v", e.Op, e.ResourceID, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// CodeError represents an error related to activation code operations
type CodeError struct {
	CodeID uuid.UUID
	Op     string
	Err    error
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("code operation %s failed for code %s: %v", e.Op, e.CodeID, e.Err)
}

func (e *CodeError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
