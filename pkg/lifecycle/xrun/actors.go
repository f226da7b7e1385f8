package xrun

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultSignals Run 默认监听的退出信号。
func DefaultSignals() []os.Signal {
	return []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}
}

// testSigChanKey 测试通过 ctx 注入信号，避免向测试进程发送真实信号。
type testSigChanKey struct{}

func testSigChan(ctx context.Context) <-chan os.Signal {
	c, _ := ctx.Value(testSigChanKey{}).(<-chan os.Signal)
	return c
}

func withTestSigChan(ctx context.Context, c <-chan os.Signal) context.Context {
	return context.WithValue(ctx, testSigChanKey{}, c)
}

// Ticker 按 interval 周期执行 fn，fn 返回错误即退出。clock 为 nil 时使用真实时钟。
// immediate 为 true 时先执行一次。
func Ticker(clock clockwork.Clock, interval time.Duration, immediate bool, fn func(ctx context.Context) error) func(ctx context.Context) error {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return func(ctx context.Context) error {
		if interval <= 0 {
			return ErrInvalidInterval
		}
		if fn == nil {
			return ErrNilFunc
		}
		if immediate {
			if err := fn(ctx); err != nil {
				return err
			}
		}
		ticker := clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if err := fn(ctx); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// WaitForDone 阻塞直到 ctx 取消，用于让 Run 等待信号。
func WaitForDone() func(ctx context.Context) error {
	return func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
}
