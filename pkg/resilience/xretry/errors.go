package xretry

import "errors"

var (
	ErrNilRetryer = errors.New("xretry: nil retryer")
	ErrNilContext = errors.New("xretry: nil context")
	ErrNilFunc    = errors.New("xretry: nil func")
)

// RetryableError 可声明自身是否可重试的错误。
type RetryableError interface {
	error
	Retryable() bool
}

// PermanentError 不可重试的错误。
type PermanentError struct {
	Err error
}

// NewPermanentError 包装为不可重试错误。
func NewPermanentError(err error) *PermanentError {
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

func (e *PermanentError) Retryable() bool { return false }

// TemporaryError 明确可重试的错误。
type TemporaryError struct {
	Err error
}

// NewTemporaryError 包装为可重试错误。
func NewTemporaryError(err error) *TemporaryError {
	return &TemporaryError{Err: err}
}

func (e *TemporaryError) Error() string {
	if e.Err == nil {
		return "temporary error"
	}
	return e.Err.Error()
}

func (e *TemporaryError) Unwrap() error { return e.Err }

func (e *TemporaryError) Retryable() bool { return true }

// IsRetryable 未声明 Retryable 的普通错误默认可重试，nil 不可重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return true
}

// IsPermanent 与 IsRetryable 相反（nil 返回 false）。
func IsPermanent(err error) bool {
	return err != nil && !IsRetryable(err)
}
