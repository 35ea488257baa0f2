// Package apperrors defines the coded error taxonomy every session
// operation reports through. Nothing crosses the session boundary as an
// uncoded fault: handlers map anything else to CodeInternal.
package apperrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeNoSession            Code = "NO_SESSION"
	CodeAborted              Code = "ABORTED"
	CodeInvalidSignature     Code = "INVALID_SIGNATURE"
	CodeFileTooLarge         Code = "FILE_TOO_LARGE"
	CodeDecompressionFailure Code = "DECOMPRESSION_FAILURE"
	CodeMissingChunk         Code = "MISSING_CHUNK"
	CodeTimeout              Code = "TIMEOUT"
	CodeInvalidRequest       Code = "INVALID_REQUEST"
	CodeInternal             Code = "INTERNAL"
)

// Error is a coded session error. ChunkIndex is -1 unless the error
// concerns a specific chunk (CodeMissingChunk).
type Error struct {
	Code       Code
	Message    string
	ChunkIndex int
}

func (e *Error) Error() string {
	if e.ChunkIndex >= 0 {
		return fmt.Sprintf("%s: %s (chunk %d)", e.Code, e.Message, e.ChunkIndex)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on code equality so callers can use errors.Is against the
// exported constructors' results or any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), ChunkIndex: -1}
}

func NoSession(sessionID string) *Error {
	return newError(CodeNoSession, "unknown session %q", sessionID)
}

func Aborted(sessionID string) *Error {
	return newError(CodeAborted, "session %q is aborted", sessionID)
}

func InvalidSignature() *Error {
	return newError(CodeInvalidSignature, "first chunk does not carry a valid file signature")
}

func FileTooLarge(size, limit uint64) *Error {
	return newError(CodeFileTooLarge, "cumulative size %d exceeds limit %d", size, limit)
}

func DecompressionFailure(err error) *Error {
	return newError(CodeDecompressionFailure, "chunk payload could not be decoded: %v", err)
}

func MissingChunk(index int) *Error {
	e := newError(CodeMissingChunk, "chunk %d was never stored", index)
	e.ChunkIndex = index
	return e
}

func Timeout(msg string) *Error {
	return newError(CodeTimeout, "%s", msg)
}

// InvalidRequest covers transport-level validation: a request body the
// handler could not bind, before any session operation runs.
func InvalidRequest(err error) *Error {
	return newError(CodeInvalidRequest, "invalid request: %v", err)
}

func Internal(msg string) *Error {
	return newError(CodeInternal, "%s", msg)
}

// CodeOf extracts the taxonomy code from err, or CodeInternal when err
// carries no code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
