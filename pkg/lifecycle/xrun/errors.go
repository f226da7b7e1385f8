package xrun

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrSignal 收到退出信号，可用 errors.Is 判断
	ErrSignal = errors.New("received signal")
	// ErrNilFunc 任务函数为 nil
	ErrNilFunc = errors.New("xrun: nil func")
	// ErrInvalidInterval Ticker 间隔必须为正
	ErrInvalidInterval = errors.New("xrun: interval must be positive")
)

// SignalError 携带具体信号的取消原因。
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	if e.Signal == nil {
		return "received signal <nil>"
	}
	return fmt.Sprintf("received signal %s", e.Signal)
}

func (e *SignalError) Is(target error) bool { return target == ErrSignal }

func (e *SignalError) Unwrap() error { return ErrSignal }
