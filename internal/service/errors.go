package service

import (
	"errors"
	"fmt"

	"github.com/issuetrack/backend/internal/access"
	"github.com/issuetrack/backend/internal/store"
)

// Error kinds surfaced to the HTTP layer. Match them with errors.Is.
var (
	ErrValidation       = errors.New("validation failed")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrProjectNotFound  = fmt.Errorf("project %w", ErrNotFound)
	ErrDuplicateKey     = errors.New("duplicate key")
	ErrVersionConflict  = errors.New("version conflict")
)

// CodedError carries a five-digit code whose first three digits are the
// HTTP status, e.g. 40301. Error() renders "40301:message".
type CodedError struct {
	Code int
	Msg  string
	Kind error
}

func (e *CodedError) Error() string { return fmt.Sprintf("%05d:%s", e.Code, e.Msg) }

func (e *CodedError) Unwrap() error { return e.Kind }

func (e *CodedError) HTTPStatus() int { return e.Code / 100 }

func coded(code int, kind error, format string, args ...interface{}) error {
	return &CodedError{Code: code, Msg: fmt.Sprintf(format, args...), Kind: kind}
}

func validation(format string, args ...interface{}) error {
	return coded(40001, ErrValidation, format, args...)
}

// denied turns an access decision into a coded error.
func denied(err error) error {
	switch {
	case errors.Is(err, access.ErrDefaultColumn):
		return coded(40003, ErrValidation, "%s", err.Error())
	case errors.Is(err, access.ErrColumnNotFound):
		return coded(40403, ErrNotFound, "%s", err.Error())
	case errors.Is(err, access.ErrNotMember):
		return coded(40404, ErrNotFound, "%s", err.Error())
	case errors.Is(err, access.ErrAlreadyMember):
		return coded(40302, ErrPermissionDenied, "%s", err.Error())
	}
	return coded(40301, ErrPermissionDenied, "%s", err.Error())
}

// fromStore maps persistence errors onto service kinds; onMissing is
// returned for store.ErrNotFound.
func fromStore(err error, onMissing error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return onMissing
	case errors.Is(err, store.ErrDuplicateKey):
		return coded(40901, ErrDuplicateKey, "%s", "duplicate key")
	case errors.Is(err, store.ErrVersionConflict):
		return coded(40903, ErrVersionConflict, "%s", "project was modified concurrently, retry")
	}
	return err
}

var (
	errProjectMissing = &CodedError{Code: 40402, Msg: "project not found", Kind: ErrProjectNotFound}
	errUserMissing    = &CodedError{Code: 40401, Msg: "user not found", Kind: ErrNotFound}
	errIssueMissing   = &CodedError{Code: 40405, Msg: "issue not found", Kind: ErrNotFound}
)
