package xdlock

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrLockTimeout 在等待预算内没有获得锁
	ErrLockTimeout = errors.New("xdlock: lock timeout")

	ErrNilClient = errors.New("xdlock: redis client is nil")

	ErrNilIDSource = errors.New("xdlock: id source is nil")

	// ErrNoNodeID TryLock 时本节点尚未持有集群 ID
	ErrNoNodeID = errors.New("xdlock: node id not allocated")

	ErrNilFunc = errors.New("xdlock: function is nil")

	// ErrEmptyKeys 未指定任何 key
	ErrEmptyKeys = errors.New("xdlock: keys must not be empty")

	ErrEmptyKey = errors.New("xdlock: key must not be empty")

	// ErrInvalidKey key 含有释放通知的分隔符 ","
	ErrInvalidKey = errors.New("xdlock: key must not contain ','")

	ErrKeyTooLong = errors.New("xdlock: key exceeds maximum length of 512 bytes")

	// ErrClosed Mutex 已关闭
	ErrClosed = errors.New("xdlock: mutex closed")

	// ErrScriptResult 加锁脚本返回了无法识别的结果
	ErrScriptResult = errors.New("xdlock: unexpected script result")
)

// LockTimeoutError RunInLock 未能在 Timeout 内获得 Keys。
type LockTimeoutError struct {
	Keys    []string
	Timeout time.Duration
	// Err 超时前最后一次尝试的错误，可能为 nil
	Err error
}

func (e *LockTimeoutError) Error() string {
	msg := fmt.Sprintf("xdlock: lock [%s] not acquired within %s", strings.Join(e.Keys, ","), e.Timeout)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LockTimeoutError) Unwrap() error { return e.Err }

func (e *LockTimeoutError) Is(target error) bool { return target == ErrLockTimeout }
