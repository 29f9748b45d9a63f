package constants

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrReference         = errors.New("reference error")
	ErrTransitionFailure = errors.New("transition failure")
)

// Error codes carried by MappingError
const (
	ErrCodeGroupNameRule     = "GROUP_NAME_RULE"
	ErrCodeInvalidGroupType  = "INVALID_GROUP_TYPE"
	ErrCodeMalformedID       = "MALFORMED_ID"
	ErrCodeInvalidFilter     = "INVALID_FILTER"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeMappingNotFound   = "MAPPING_NOT_FOUND"
	ErrCodeSectorNotFound    = "SECTOR_NOT_FOUND"
	ErrCodeTransitionAborted = "TRANSITION_ABORTED"
)

// MappingError is the error type returned by the sector mapping core.
type MappingError struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *MappingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind of this error.
func (e *MappingError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

func NewValidationError(code, format string, args ...any) *MappingError {
	return &MappingError{Kind: ErrValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...any) *MappingError {
	return &MappingError{Kind: ErrNotFound, Code: ErrCodeMappingNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewReferenceError(format string, args ...any) *MappingError {
	return &MappingError{Kind: ErrReference, Code: ErrCodeSectorNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewTransitionFailure wraps the error that aborted a transition run.
func NewTransitionFailure(err error, format string, args ...any) *MappingError {
	return &MappingError{
		Kind:    ErrTransitionFailure,
		Code:    ErrCodeTransitionAborted,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}
