package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrProductNotFound     = errors.New("product not found")
	ErrAttributeNotFound   = errors.New("attribute not found")
	ErrStatusPersistence   = errors.New("operation status was not persisted")
	ErrOperationKeyCollide = errors.New("operation key collision")
)

// ErrorKind classifies pipeline failures
type ErrorKind string

const (
	ErrorKindShape               ErrorKind = "shape"
	ErrorKindValidation          ErrorKind = "validation"
	ErrorKindTransientInfra      ErrorKind = "transient_infra"
	ErrorKindPermanentProcessing ErrorKind = "permanent_processing"
	ErrorKindStatusPersistence   ErrorKind = "status_persistence"
	ErrorKindScheduling          ErrorKind = "scheduling"
)

// Error codes written to bulk_operations.error_code
const (
	ErrorCodeShape               = 100
	ErrorCodeValidation          = 200
	ErrorCodeTransientInfra      = 300
	ErrorCodePermanentProcessing = 400
	ErrorCodeStatusPersistence   = 500
	ErrorCodeScheduling          = 600
)

func (k ErrorKind) code() int {
	switch k {
	case ErrorKindShape:
		return ErrorCodeShape
	case ErrorKindValidation:
		return ErrorCodeValidation
	case ErrorKindTransientInfra:
		return ErrorCodeTransientInfra
	case ErrorKindStatusPersistence:
		return ErrorCodeStatusPersistence
	case ErrorKindScheduling:
		return ErrorCodeScheduling
	default:
		return ErrorCodePermanentProcessing
	}
}

// PipelineError tags an error with its taxonomy kind
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind) + " error"
	}
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Code returns the numeric error code persisted for this failure
func (e *PipelineError) Code() int {
	return e.Kind.code()
}

// NewShapeError reports a malformed payload
func NewShapeError(message string) error {
	return &PipelineError{Kind: ErrorKindShape, Message: message}
}

// WrapProcessingError reports a permanent processing failure around err
func WrapProcessingError(message string, err error) error {
	return &PipelineError{Kind: ErrorKindPermanentProcessing, Message: message, Err: err}
}

// ErrorCodeOf extracts the persisted error code of err, if it carries one
func ErrorCodeOf(err error) *int {
	var pe *PipelineError
	if errors.As(err, &pe) {
		code := pe.Code()
		return &code
	}
	return nil
}
