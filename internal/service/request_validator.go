package service

import (
	"strings"

	"github.com/gallerysync/api/internal/model"
)

const (
	maxFilePathLength = 1024
	maxLabelLength    = 255
	minPosition       = -100000
	maxPosition       = 100000
)

// Validation messages reported back per rejected item
const (
	MsgMissingFilePath  = "Missing file_path"
	MsgFilePathTooLong  = "file_path is too long"
	MsgLabelTooLong     = "label is too long"
	MsgPositionOutRange = "position is out of allowed range"
)

// ValidateImage checks the bounds of a normalized image. Roles are not
// checked here; unknown roles are dropped at reconciliation time.
func ValidateImage(image model.ImageRecord) error {
	path := strings.TrimSpace(image.FilePath)
	switch {
	case path == "":
		return validationError(MsgMissingFilePath)
	case len(path) > maxFilePathLength:
		return validationError(MsgFilePathTooLong)
	case len(image.Label) > maxLabelLength:
		return validationError(MsgLabelTooLong)
	case image.Position < minPosition || image.Position > maxPosition:
		return validationError(MsgPositionOutRange)
	}
	return nil
}

func validationError(msg string) error {
	return &model.PipelineError{Kind: model.ErrorKindValidation, Message: msg}
}

// NormalizeSKU trims surrounding whitespace
func NormalizeSKU(sku string) string {
	return strings.TrimSpace(sku)
}

// NormalizeRequestID returns the trimmed request id, or nil when it is
// absent, empty or not a scalar.
func NormalizeRequestID(raw any) *string {
	s, ok := scalarString(raw)
	if !ok {
		return nil
	}
	if _, isBool := raw.(bool); isBool {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
