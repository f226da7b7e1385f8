package xid

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// ClusterIDSource 节点 ID 来源，*xclusterid.Allocator 满足该接口。
type ClusterIDSource interface {
	Get(ctx context.Context) (int, error)
	BitNum() int
}

const (
	// DefaultMaxWaitDuration NewWithRetry 的最长等待
	DefaultMaxWaitDuration = 500 * time.Millisecond

	// DefaultRetryInterval sonyflake 的时间精度
	DefaultRetryInterval = 10 * time.Millisecond

	// DefaultClusterIDTimeout 创建生成器时等待节点 ID 的时间
	DefaultClusterIDTimeout = 30 * time.Second
)

type options struct {
	machineID        func() (uint16, error)
	checkMachineID   func(uint16) bool
	maxWaitDuration  time.Duration
	retryInterval    time.Duration
	clusterIDTimeout time.Duration
	clock            clockwork.Clock
}

// Option Generator 选项。
type Option func(*options)

// WithMachineID 自定义机器 ID。不设置时使用 sonyflake 默认的私有 IP 低 16 位。
func WithMachineID(fn func() (uint16, error)) Option {
	return func(o *options) {
		o.machineID = fn
	}
}

// WithCheckMachineID 创建时校验机器 ID，返回 false 则 NewGenerator 失败。
func WithCheckMachineID(fn func(uint16) bool) Option {
	return func(o *options) {
		o.checkMachineID = fn
	}
}

// WithClusterID 以节点 ID 作为机器 ID，并要求其小于 2^src.BitNum()。
// NewGenerator 会阻塞到拿到节点 ID 或超过 WithClusterIDTimeout。
func WithClusterID(src ClusterIDSource) Option {
	return func(o *options) {
		if src == nil {
			o.machineID = func() (uint16, error) { return 0, ErrNilSource }
			return
		}
		// 选项全部应用后才会调用，能读到之后设置的超时
		o.machineID = func() (uint16, error) {
			ctx, cancel := context.WithTimeout(context.Background(), o.clusterIDTimeout)
			defer cancel()
			id, err := src.Get(ctx)
			if err != nil {
				return 0, err
			}
			return uint16(id), nil
		}
		limit := 1 << src.BitNum()
		o.checkMachineID = func(id uint16) bool { return int(id) < limit }
	}
}

// WithClusterIDTimeout 默认 30s。
func WithClusterIDTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.clusterIDTimeout = d
		}
	}
}

// WithMaxWaitDuration NewWithRetry 的最长等待，0 表示不重试。
func WithMaxWaitDuration(d time.Duration) Option {
	return func(o *options) {
		o.maxWaitDuration = d
	}
}

// WithRetryInterval NewWithRetry 两次重试之间的等待时间。
func WithRetryInterval(d time.Duration) Option {
	return func(o *options) {
		o.retryInterval = d
	}
}

// WithClock 注入重试等待使用的时钟。
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}
