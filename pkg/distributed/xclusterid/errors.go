package xclusterid

import "errors"

var (
	// ErrClosed Allocator 已关闭
	ErrClosed = errors.New("xclusterid: allocator closed")

	// ErrExhausted 所有 ID 都被锁定，暂无可用 ID
	ErrExhausted = errors.New("xclusterid: no id available")

	// ErrLeaseBusy 在 AcquireTimeout 内没有获得 ID 的租约
	ErrLeaseBusy = errors.New("xclusterid: lease is held by another node")

	ErrNilStore = errors.New("xclusterid: store is nil")

	ErrNilClient = errors.New("xclusterid: etcd client is nil")

	// ErrInvalidBitNum BitNum 超出 [1, 16]
	ErrInvalidBitNum = errors.New("xclusterid: bit num must be within [1, 16]")
)
