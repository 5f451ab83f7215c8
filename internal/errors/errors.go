package errors

import (
	"errors"
	"fmt"
)

type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Message string
	Details []ValidationDetail
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(message string, details ...ValidationDetail) *ValidationError {
	return &ValidationError{
		Message: message,
		Details: details,
	}
}

func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{Message: message}
}

func IsNotFoundError(err error) (*NotFoundError, bool) {
	var nfe *NotFoundError
	if errors.As(err, &nfe) {
		return nfe, true
	}
	return nil, false
}

// InvalidTransitionError always carries both sides of the rejected change.
type InvalidTransitionError struct {
	Entity    string
	Current   string
	Requested string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition from %s to %s", e.Entity, e.Current, e.Requested)
}

func NewInvalidTransitionError(entity, current, requested string) *InvalidTransitionError {
	return &InvalidTransitionError{
		Entity:    entity,
		Current:   current,
		Requested: requested,
	}
}

func IsInvalidTransitionError(err error) (*InvalidTransitionError, bool) {
	var ite *InvalidTransitionError
	if errors.As(err, &ite) {
		return ite, true
	}
	return nil, false
}

type AlreadyInStateError struct {
	Entity string
	State  string
}

func (e *AlreadyInStateError) Error() string {
	return fmt.Sprintf("%s is already %s", e.Entity, e.State)
}

func NewAlreadyInStateError(entity, state string) *AlreadyInStateError {
	return &AlreadyInStateError{Entity: entity, State: state}
}

func IsAlreadyInStateError(err error) (*AlreadyInStateError, bool) {
	var aise *AlreadyInStateError
	if errors.As(err, &aise) {
		return aise, true
	}
	return nil, false
}

type RetryExhaustedError struct {
	Message    string
	RetryCount int
	MaxRetries int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s (%d/%d retries used)", e.Message, e.RetryCount, e.MaxRetries)
}

func NewRetryExhaustedError(message string, retryCount, maxRetries int) *RetryExhaustedError {
	return &RetryExhaustedError{
		Message:    message,
		RetryCount: retryCount,
		MaxRetries: maxRetries,
	}
}

func IsRetryExhaustedError(err error) (*RetryExhaustedError, bool) {
	var ree *RetryExhaustedError
	if errors.As(err, &ree) {
		return ree, true
	}
	return nil, false
}

// TransportError is recoverable: it drives retry bookkeeping and is recorded
// on job or notification status instead of being returned to the creator.
type TransportError struct {
	Code    string
	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

func NewTransportError(code, message string, cause error) *TransportError {
	return &TransportError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func IsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

func IsConflictError(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}

func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{
		Message: message,
		Cause:   cause,
	}
}
