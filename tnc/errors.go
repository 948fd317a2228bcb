package tnc

import (
	"errors"
	"fmt"
)

// ErrorType classifies harness errors
type ErrorType int

const (
	ErrorTypeVersionMismatch ErrorType = iota
	ErrorTypeInitialization
	ErrorTypeCapabilityAbsent
	ErrorTypeOutOfMemory
	ErrorTypeUnsupportedDeliveryPath
	ErrorTypeRecommendationFailure
	ErrorTypeInvalidParameter
	ErrorTypeIllegalOperation
	ErrorTypeCanceled
)

// Error is the typed error returned by the exchange engine and the coordinator
type Error struct {
	Type    ErrorType
	Message string
}

// NewError creates an Error of the given type
func NewError(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Errorf creates an Error with a formatted message
func Errorf(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	switch e.Type {
	case ErrorTypeVersionMismatch:
		return fmt.Sprintf("no common interface version: %s", e.Message)
	case ErrorTypeInitialization:
		return fmt.Sprintf("plugin initialization failed: %s", e.Message)
	case ErrorTypeCapabilityAbsent:
		return fmt.Sprintf("capability not supported: %s", e.Message)
	case ErrorTypeOutOfMemory:
		return fmt.Sprintf("out of memory: %s", e.Message)
	case ErrorTypeUnsupportedDeliveryPath:
		return fmt.Sprintf("delivery path not supported: %s", e.Message)
	case ErrorTypeRecommendationFailure:
		return fmt.Sprintf("recommendation failed: %s", e.Message)
	case ErrorTypeInvalidParameter:
		return fmt.Sprintf("invalid parameter: %s", e.Message)
	case ErrorTypeIllegalOperation:
		return fmt.Sprintf("illegal operation: %s", e.Message)
	case ErrorTypeCanceled:
		return fmt.Sprintf("handshake canceled: %s", e.Message)
	default:
		return fmt.Sprintf("unknown error: %s", e.Message)
	}
}

// Is matches any *Error of the same type, so the sentinels below work with errors.Is
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type
}

// Sentinels for errors.Is
var (
	ErrVersionMismatch         = &Error{Type: ErrorTypeVersionMismatch}
	ErrInitialization          = &Error{Type: ErrorTypeInitialization}
	ErrCapabilityAbsent        = &Error{Type: ErrorTypeCapabilityAbsent}
	ErrOutOfMemory             = &Error{Type: ErrorTypeOutOfMemory}
	ErrUnsupportedDeliveryPath = &Error{Type: ErrorTypeUnsupportedDeliveryPath}
	ErrRecommendationFailure   = &Error{Type: ErrorTypeRecommendationFailure}
	ErrInvalidParameter        = &Error{Type: ErrorTypeInvalidParameter}
	ErrIllegalOperation        = &Error{Type: ErrorTypeIllegalOperation}
	ErrCanceled                = &Error{Type: ErrorTypeCanceled}
)

// Result is an IF-IMC/IF-IMV result code
type Result uint32

const (
	ResultSuccess            Result = 0
	ResultNotInitialized     Result = 1
	ResultAlreadyInitialized Result = 2
	ResultNoCommonVersion    Result = 3
	ResultCantRetry          Result = 4
	ResultWontRetry          Result = 5
	ResultInvalidParameter   Result = 6
	ResultCantRespond        Result = 7
	ResultIllegalOperation   Result = 8
	ResultOther              Result = 9
	ResultFatal              Result = 10

	ResultExceededMaxRoundTrips  Result = 0x00559700
	ResultExceededMaxMessageSize Result = 0x00559701
	ResultNoLongMessageTypes     Result = 0x00559702
	ResultNoSOHSupport           Result = 0x00559703
)

// ResultOf maps an error onto the closest result code
func ResultOf(err error) Result {
	if err == nil {
		return ResultSuccess
	}
	var e *Error
	if !errors.As(err, &e) {
		return ResultOther
	}
	switch e.Type {
	case ErrorTypeVersionMismatch:
		return ResultNoCommonVersion
	case ErrorTypeInvalidParameter:
		return ResultInvalidParameter
	case ErrorTypeIllegalOperation:
		return ResultIllegalOperation
	case ErrorTypeOutOfMemory:
		return ResultExceededMaxMessageSize
	case ErrorTypeInitialization:
		return ResultFatal
	default:
		return ResultOther
	}
}
