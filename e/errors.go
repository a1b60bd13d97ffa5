package e

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies an error so the command layer can report it. A Kind is itself
// an error, so errors.Is(err, KindFormat) works on any wrapped ExtendedError.
type Kind string

const (
	KindUnknown   Kind = ""
	KindConfig    Kind = "ConfigError"
	KindIO        Kind = "IOError"
	KindFormat    Kind = "FormatError"
	KindExecution Kind = "ExecutionError"
	KindConflict  Kind = "ConflictError"
)

// Error returns the kind name
func (k Kind) Error() string {
	return string(k)
}

// ExtendedError is our custom error
type ExtendedError struct {
	InnerError error
	Message    string
	Kind       Kind
	original   error
}

// Error returns the string of the inner error
func (e *ExtendedError) Error() string {
	return fmt.Sprintf("%+v", e.InnerError)
}

// Unwrap returns the originating error, so the standard errors package can
// inspect it
func (e *ExtendedError) Unwrap() error {
	return e.original
}

// Is reports whether the target is the kind of this error
func (e *ExtendedError) Is(tgt error) bool {
	k, ok := tgt.(Kind)
	return ok && e.Kind != KindUnknown && e.Kind == k
}

// AsError calls errors.As on the original error with the specified target error.
// If it is the target error, it will set the target as the original error value
// and return true, otherwise it returns false
func (e *ExtendedError) AsError(tgt interface{}) bool {
	return e.original != nil && errors.As(e.original, tgt)
}

// NewStr creates a new error string based on the code and message
func NewStr(code string, msgList ...string) (s string) {
	if len(msgList) == 0 {
		return code
	}
	return fmt.Sprintf("%s: %s", code, strings.Join(msgList, "|"))
}

// AsExtendedError helper function that returns the error as an ExtendedError
// if it is one. Otherwise it returns nil
func AsExtendedError(err error) (ee *ExtendedError) {
	if errors.As(err, &ee) {
		return ee
	}
	return nil
}

// KindOf returns the kind of the error, or KindUnknown
func KindOf(err error) Kind {
	if ee := AsExtendedError(err); ee != nil {
		return ee.Kind
	}
	return KindUnknown
}

// UserMessage returns the message meant for the user. Falls back to the error
// string when no message was set.
func UserMessage(err error) string {
	if ee := AsExtendedError(err); ee != nil && ee.Message != "" {
		return ee.Message
	}
	return err.Error()
}

// Cause returns the originating error of an extended error, nil when the error
// was created by N/NK
func Cause(err error) error {
	if ee := AsExtendedError(err); ee != nil {
		return ee.original
	}
	return err
}

// editErrorMessageForPQIOError returns an edited message for the error if it is a pg io error
// this is so the logs do not consider it like a new error if it is triggered within a short period of time
func editErrorMessageForPQIOError(errorMsg string) string {
	re := regexp.MustCompile(`block [\d]+`)

	return re.ReplaceAllString(errorMsg, "block X")
}

// ContainsError checks if the error contains the specified error message
func ContainsError(err error, msg string) bool {
	return err != nil && strings.Contains(err.Error(), msg)
}

// N creates a new error with the code and message, the message is also used
// as the user message
func N(code, msg string) error {
	return WrapWithMsg(nil, code, msg, msg)
}

// NK same as N, also classifying the error
func NK(kind Kind, code, msg string) error {
	ee := Wrap(nil, code, msg)
	ee.Message = NewStr(code, msg)
	ee.Kind = kind
	return ee
}

// W wraps the error with the code and optional debug messages
func W(err error, code string, debugMessages ...string) error {
	return Wrap(err, code, debugMessages...)
}

// WWM wraps the error and sets the user message
func WWM(err error, code, msg string, debugMessages ...string) error {
	return WrapWithMsg(err, code, msg, debugMessages...)
}

// WK wraps the error, sets the user message and classifies it. An error that
// already carries a kind keeps it, as the innermost classification is the most
// precise one.
func WK(err error, kind Kind, code, msg string, debugMessages ...string) error {
	ee := Wrap(err, code, debugMessages...)
	ee.Message = NewStr(code, msg)
	if ee.Kind == KindUnknown {
		ee.Kind = kind
	}
	return ee
}

// WrapWithMsg calls Wrap, then sets the extended error's message to
// the passed message.
func WrapWithMsg(err error, code, msg string, debugMessages ...string) error {
	ee := Wrap(err, code, debugMessages...)
	ee.Message = NewStr(code, msg)
	return ee
}

// Wrap checks if the passed error has been wrapped before by this func
// and either wraps the original error as an ExtendedError or adds the
// debug message to the already existing ExtendedError's InnerError.
// This function always returns an extended error.
func Wrap(err error, code string, debugMessages ...string) (ee *ExtendedError) {
	msg := NewStr(code, debugMessages...)

	// If the error is already an extended error, then just update the
	// inner error
	if ee = AsExtendedError(err); ee != nil {
		ee.InnerError = fmt.Errorf("[%s]%+v", msg, ee.InnerError)
		return ee
	}

	ee = &ExtendedError{
		original: err,
	}

	if err == nil {
		ee.InnerError = pkgerrors.New(msg)
		ee.Message = msg
	} else {
		var pkgerr error
		if IsPQError(err, PQErr58030IOError) {
			msg = editErrorMessageForPQIOError(err.Error())
			pkgerr = pkgerrors.Wrap(err, msg)
		} else {
			pkgerr = pkgerrors.Wrap(err, "")
		}

		ee.InnerError = fmt.Errorf("[%s]%+v", msg, pkgerr)
		ee.Message = NewStr(code, MsgUnknownInternalServerError)
	}

	return ee
}
