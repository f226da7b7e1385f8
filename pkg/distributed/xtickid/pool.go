package xtickid

import "sync/atomic"

// Pool 半开号段 [min, max)，Take 可并发调用。
type Pool struct {
	next atomic.Int64
	max  int64
}

// NewPool 创建号段 [lo, hi)，lo 大于 hi 时得到空号段。
func NewPool(lo, hi int64) *Pool {
	p := &Pool{max: hi}
	p.next.Store(min(lo, hi))
	return p
}

// Take 取出下一个号，号段耗尽时返回 false。
func (p *Pool) Take() (int64, bool) {
	for {
		cur := p.next.Load()
		if cur >= p.max {
			return 0, false
		}
		if p.next.CompareAndSwap(cur, cur+1) {
			return cur, true
		}
	}
}

// Drained 是否已耗尽。
func (p *Pool) Drained() bool {
	return p.next.Load() >= p.max
}

// Remaining 剩余可用数量。
func (p *Pool) Remaining() int64 {
	return max(p.max-p.next.Load(), 0)
}
