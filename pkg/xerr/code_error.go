package xerr

import (
	"context"
	"errors"
	"fmt"
)

// CodeError 自定义错误结构，Code 即对外 HTTP 状态码
type CodeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error 实现 error 接口
func (e *CodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CodeError) Unwrap() error { return e.Cause }

// Is 同 Code 视为同类错误
func (e *CodeError) Is(target error) bool {
	t, ok := target.(*CodeError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// New 创建新的 CodeError
func New(code int, msg string) *CodeError {
	return &CodeError{Code: code, Message: msg}
}

// Wrap 创建带底层原因的 CodeError
func Wrap(code int, msg string, cause error) *CodeError {
	return &CodeError{Code: code, Message: msg, Cause: cause}
}

// 常用通用错误码
const (
	OK                  = 200
	BadRequest          = 400
	NotFound            = 404
	RequestTooLarge     = 413
	InternalServerError = 500
	BadGateway          = 502
	ServiceUnavailable  = 503
	GatewayTimeout      = 504
)

// 常用预定义错误
var (
	ErrServerError       = New(InternalServerError, "internal server error")
	ErrParam             = New(BadRequest, "invalid request parameters")
	ErrNotFound          = New(NotFound, "not found")
	ErrTimeout           = New(GatewayTimeout, "request timed out")
	ErrCollectionDropped = New(ServiceUnavailable, "vector store collection has been deleted, restart the application")
)

func Validation(msg string) *CodeError { return New(BadRequest, msg) }

func NotFoundf(format string, args ...any) *CodeError {
	return New(NotFound, fmt.Sprintf(format, args...))
}

// Upstream 外部依赖（embedding / LLM / 向量库）失败
func Upstream(msg string, cause error) *CodeError {
	if cause != nil && (errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, ErrTimeout)) {
		return Wrap(GatewayTimeout, msg, cause)
	}
	var ce *CodeError
	if errors.As(cause, &ce) && ce.Code != InternalServerError {
		return Wrap(ce.Code, msg, cause)
	}
	return Wrap(BadGateway, msg, cause)
}

func Internal(msg string, cause error) *CodeError { return Wrap(InternalServerError, msg, cause) }

// From 将任意错误归类为 CodeError
func From(err error) *CodeError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(GatewayTimeout, ErrTimeout.Message, err)
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(ServiceUnavailable, "request canceled", err)
	}
	return Wrap(InternalServerError, ErrServerError.Message, err)
}

// StatusOf 返回错误对应的 HTTP 状态码
func StatusOf(err error) int {
	if err == nil {
		return OK
	}
	return From(err).Code
}
