// Package apperr defines the error taxonomy shared by all components.
// Only the outermost HTTP handlers translate these into client-visible
// status codes and bodies.
package apperr

import "fmt"

type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindUpstream
	KindRender
)

// Numeric error codes surfaced to clients alongside the message.
const (
	CodeMissingInformation = 1
	CodeNoSuchCube         = 2
	CodeNoSuchMask         = 3
	CodeNoSuchLayer        = 4
	CodeEmptyDatasetList   = 5
	CodeInvalidMaskType    = 6
	CodeInvalidTopology    = 7
	CodeInvalidDatasetID   = 8
	CodeInvalidQueryType   = 9
	CodeNoSuchJob          = 10
	CodeUpstreamFailure    = 20
	CodeRenderFailure      = 30
	CodeNoMaskExtent       = 85
	CodeNoDatasetExtent    = 86
)

type Error struct {
	Kind Kind
	Code int
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(code int, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Msg: msg}
}

func NotFound(code int, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Msg: msg}
}

func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Code: CodeUpstreamFailure, Msg: msg, Err: err}
}

func Render(msg string, err error) *Error {
	return &Error{Kind: KindRender, Code: CodeRenderFailure, Msg: msg, Err: err}
}

func MissingInformation() *Error {
	return Validation(CodeMissingInformation, "missing information")
}
