// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation_error"
	ErrorTypeMissingMedia ErrorType = "missing_media"
	ErrorTypeNetwork      ErrorType = "network_error"
	ErrorTypeJobFailed    ErrorType = "job_failed"
	ErrorTypeBusy         ErrorType = "busy"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeForbidden    ErrorType = "forbidden"
)

// AppError 应用程序错误结构，Message 始终面向用户
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// UserMessage 返回不含底层原因的消息
func (e *AppError) UserMessage() string {
	return e.Message
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewMissingMediaError 创建缺少素材错误
func NewMissingMediaError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeMissingMedia, message, originalError)
}

// NewNetworkError 创建后端通信错误
func NewNetworkError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNetwork, message, originalError)
}

// NewJobFailedError 创建渲染任务失败错误
func NewJobFailedError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeJobFailed, message, originalError)
}

// NewBusyError 创建操作进行中错误
func NewBusyError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeBusy, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewForbiddenError 创建禁止错误
func NewForbiddenError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeForbidden, message, originalError)
}

func isType(err error, t ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == t
	}
	return false
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// IsMissingMediaError 检查是否为缺少素材错误
func IsMissingMediaError(err error) bool { return isType(err, ErrorTypeMissingMedia) }

// IsNetworkError 检查是否为后端通信错误
func IsNetworkError(err error) bool { return isType(err, ErrorTypeNetwork) }

// IsJobFailedError 检查是否为渲染任务失败错误
func IsJobFailedError(err error) bool { return isType(err, ErrorTypeJobFailed) }

// IsBusyError 检查是否为操作进行中错误
func IsBusyError(err error) bool { return isType(err, ErrorTypeBusy) }

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsForbiddenError 检查是否为禁止错误
func IsForbiddenError(err error) bool { return isType(err, ErrorTypeForbidden) }

// TypeOf 返回错误链中 AppError 的类型，没有则返回空
func TypeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ""
}

// MessageOf 返回面向用户的错误消息
func MessageOf(err error) string {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeMissingMedia:
		return "MISSING_MEDIA"
	case ErrorTypeNetwork:
		return "NETWORK_ERROR"
	case ErrorTypeJobFailed:
		return "JOB_FAILED"
	case ErrorTypeBusy:
		return "BUSY"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeForbidden:
		return "FORBIDDEN"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误，保留已有 AppError 的类型
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError.Err,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}
