package dataType

import (
	"errors"
	"fmt"
)

// Error codes shared with the harness.
const (
	CodeTimeout                = 0
	CodeNodeNotFound           = 1
	CodeNotSupported           = 10
	CodeTemporarilyUnavailable = 11
	CodeMalformedRequest       = 12
	CodeCrash                  = 13
	CodeAbort                  = 14
	CodeKeyDoesNotExist        = 20
	CodeKeyAlreadyExists       = 21
	CodePreconditionFailed     = 22
	CodeTxnConflict            = 30
)

const TypeError = "error"

// ProtocolError is an error that travels on the wire as an "error" body.
type ProtocolError struct {
	Code int    `json:"code"`
	Text string `json:"text"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("error %d: %s", e.Code, e.Text)
}

// Body renders the error as a reply body.
func (e *ProtocolError) Body() ErrorBody {
	return ErrorBody{Type: TypeError, Code: e.Code, Text: e.Text}
}

type ErrorBody struct {
	Type string `json:"type"`
	Code int    `json:"code"`
	Text string `json:"text"`
}

func NewProtocolError(code int, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Text: fmt.Sprintf(format, args...)}
}

func Crash(format string, args ...any) *ProtocolError {
	return NewProtocolError(CodeCrash, format, args...)
}

func MalformedRequest(format string, args ...any) *ProtocolError {
	return NewProtocolError(CodeMalformedRequest, format, args...)
}

func TemporarilyUnavailable(format string, args ...any) *ProtocolError {
	return NewProtocolError(CodeTemporarilyUnavailable, format, args...)
}

// ErrorFromMessage decodes an "error" reply into a ProtocolError.
func ErrorFromMessage(msg Message) *ProtocolError {
	var body ErrorBody
	if err := msg.DecodeBody(&body); err != nil {
		return Crash("undecodable error reply: %v", err)
	}
	return &ProtocolError{Code: body.Code, Text: body.Text}
}

// ErrorCode returns the protocol code carried by err, if any.
func ErrorCode(err error) (int, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return 0, false
}
