package xetcd

import "errors"

var (
	ErrNilConfig = errors.New("xetcd: config is nil")

	ErrNoEndpoints = errors.New("xetcd: no endpoints configured")

	ErrInvalidEndpoint = errors.New("xetcd: invalid endpoint format, expected host:port")

	ErrKeyNotFound = errors.New("xetcd: key not found")

	ErrClientClosed = errors.New("xetcd: client is closed")

	ErrEmptyKey = errors.New("xetcd: key is empty")

	// ErrCASConflict 比较交换期间 key 被其他客户端修改（内部重试用）
	ErrCASConflict = errors.New("xetcd: compare-and-swap conflict")

	// ErrNotCounter 计数器 key 的值不是十进制整数
	ErrNotCounter = errors.New("xetcd: value is not an integer counter")

	// ErrUnhealthy 健康检查失败
	ErrUnhealthy = errors.New("xetcd: health check failed")
)

// IsKeyNotFound 判断是否为 key 不存在。
func IsKeyNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}
