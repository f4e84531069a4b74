package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// NotFoundError is raised once at service entry when a tenant (or a record
// scoped to one) does not exist. It surfaces to the caller and is never retried.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func NewNotFoundError(message string) error {
	return &NotFoundError{Message: message}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ValidationError rejects bad input (locked mutations, unknown departments,
// future-dated transactions). It never triggers cache invalidation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(message string) error {
	return &ValidationError{Message: message}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
