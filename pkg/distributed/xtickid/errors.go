package xtickid

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout 在等待预算内没有可用的号
	ErrTimeout = errors.New("xtickid: generate timeout")

	// ErrClosed Allocator 已关闭
	ErrClosed = errors.New("xtickid: allocator closed")

	// ErrProvider 计数器提供者失败
	ErrProvider = errors.New("xtickid: provider failed")

	ErrInvalidBatch = errors.New("xtickid: batch size must be positive")

	ErrNilProvider = errors.New("xtickid: provider is nil")

	ErrEmptyName = errors.New("xtickid: tick name is empty")
)

// ProviderError 最近一次补充号段失败的原因。
type ProviderError struct {
	Name string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("xtickid: provider %q: %v", e.Name, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }
