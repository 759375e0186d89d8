package services

import (
	"errors"
	"fmt"
)

// Error codes carried in API responses and upload results.
const (
	CodeValidation    = "validation_error"
	CodeQuotaExceeded = "quota_exceeded"
	CodeProcessing    = "processing_error"
	CodeStorage       = "storage_error"
	CodeNotFound      = "not_found"
	CodeInternal      = "internal_error"
)

// ValidationError rejects a file or metadata before any side effect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// QuotaExceededError means the user's stored bytes already reach the cap.
type QuotaExceededError struct {
	UserID     string
	UsedBytes  int64
	QuotaBytes int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("storage quota exceeded: %d of %d bytes used", e.UsedBytes, e.QuotaBytes)
}

// ProcessingError means the codec failed on a file that passed validation.
type ProcessingError struct {
	Err error
}

func (e *ProcessingError) Error() string { return fmt.Sprintf("image processing failed: %v", e.Err) }
func (e *ProcessingError) Unwrap() error { return e.Err }

// StorageError wraps a filesystem or object storage failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// NotFoundError references a media id with no row.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Resource, e.ID) }

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// ErrorCode maps an error onto its API code.
func ErrorCode(err error) string {
	var (
		validationErr *ValidationError
		quotaErr      *QuotaExceededError
		processingErr *ProcessingError
		storageErr    *StorageError
		notFoundErr   *NotFoundError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return CodeValidation
	case errors.As(err, &quotaErr):
		return CodeQuotaExceeded
	case errors.As(err, &processingErr):
		return CodeProcessing
	case errors.As(err, &storageErr):
		return CodeStorage
	case errors.As(err, &notFoundErr):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

// PublicMessage is the client-facing text for err. Storage and internal failures are
// reduced to a fixed message; their detail belongs in the logs.
func PublicMessage(err error) string {
	switch ErrorCode(err) {
	case "":
		return ""
	case CodeStorage:
		return "storage failure"
	case CodeInternal:
		return "internal server error"
	default:
		return err.Error()
	}
}
