package xclusterid

import "context"

// Store ID 租约的存储后端。
type Store interface {
	// List 列出所有候选节点，按 ID 升序。
	List(ctx context.Context) ([]Node, error)

	// Acquire 获取 id 的独占租约，ctx 到期仍未获得时返回 ErrLeaseBusy。
	Acquire(ctx context.Context, id int) (Lease, error)

	// Touch 写入 id 的心跳时间戳（毫秒）。
	Touch(ctx context.Context, id int, ts int64) error

	// Healthy 存储当前是否可达。
	Healthy(ctx context.Context) bool
}

// Lease 一个已获得的 ID 租约。
type Lease interface {
	// Done 租约丢失（会话过期、连接断开）或被释放后关闭。
	Done() <-chan struct{}

	Release(ctx context.Context) error
}
