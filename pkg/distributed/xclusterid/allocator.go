package xclusterid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/omeyang/xcluster/pkg/observability/xlog"
)

// Allocator 后台分配并持有一个集群 ID，并发安全。
//
// 状态迁移与心跳都只在后台 goroutine 中执行，心跳前会确认仍持有同一租约，
// 不会为已失效的 ID 写心跳。
type Allocator struct {
	store   Store
	cfg     *Config
	opts    *options
	logger  xlog.Logger
	metrics *metrics

	mu      sync.Mutex
	state   State
	id      int
	lease   Lease
	changed chan struct{} // 状态变化时关闭并替换
	closed  bool

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// New 创建 Allocator 并立即开始分配。cfg 为 nil 时使用 DefaultConfig()。
func New(store Store, cfg *Config, opts ...Option) (*Allocator, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	logger := o.logger
	if logger == nil {
		logger = xlog.Default()
	}
	m, err := newMetrics(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("xclusterid: create metrics: %w", err)
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	a := &Allocator{
		store:   store,
		cfg:     cfg,
		opts:    o,
		logger:  logger.With(xlog.Component("xclusterid"), slog.String("path", cfg.Path)),
		metrics: m,
		state:   StateNone,
		id:      -1,
		changed: make(chan struct{}),
		cancel:  cancel,
	}
	a.wg.Add(1)
	go a.run(ctx)
	return a, nil
}

// Get 返回持有的 ID，未持有时阻塞。RECOVERING 状态下返回恢复中的旧 ID。
func (a *Allocator) Get(ctx context.Context) (int, error) {
	for {
		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			return -1, ErrClosed
		}
		if a.state != StateNone {
			id := a.id
			a.mu.Unlock()
			return id, nil
		}
		wait := a.changed
		a.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return -1, ctx.Err()
		}
	}
}

// ID 非阻塞，未持有时返回 -1。
func (a *Allocator) ID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.id
}

// BitNum 返回 ID 位数，ID 取值范围为 [0, 2^BitNum)。
func (a *Allocator) BitNum() int { return a.cfg.BitNum }

// Status 返回当前状态，非阻塞。
func (a *Allocator) Status() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Close 停止后台分配并释放租约，阻塞中与之后的 Get 返回 ErrClosed。可重复调用。
func (a *Allocator) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.changed)
		a.changed = make(chan struct{})
		a.mu.Unlock()

		a.cancel()
		a.wg.Wait()

		a.mu.Lock()
		lease := a.lease
		a.lease = nil
		a.state, a.id = StateNone, -1
		a.mu.Unlock()
		if lease != nil {
			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.AcquireTimeout)
			defer cancel()
			a.closeErr = lease.Release(ctx)
		}
	})
	return a.closeErr
}

// ----------------------------------------------------------------------------
// 后台状态机
// ----------------------------------------------------------------------------

func (a *Allocator) run(ctx context.Context) {
	defer a.wg.Done()
	for ctx.Err() == nil {
		var wait time.Duration
		switch a.Status() {
		case StateNone:
			a.allocate(ctx)
			wait = a.cfg.RetryInterval
		case StateLocked:
			a.heartbeat(ctx)
			wait = a.cfg.HeartbeatInterval
		case StateRecovering:
			a.recover(ctx)
			wait = a.cfg.RecoverInterval
		}
		a.sleep(ctx, wait)
	}
}

// sleep 持有租约期间租约丢失会提前结束等待，并立即进入 RECOVERING。
func (a *Allocator) sleep(ctx context.Context, d time.Duration) {
	a.mu.Lock()
	var lost <-chan struct{}
	if a.state == StateLocked && a.lease != nil {
		lost = a.lease.Done()
	}
	a.mu.Unlock()

	timer := a.opts.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.Chan():
	case <-ctx.Done():
	case <-lost:
		a.logger.Warn(ctx, "lease lost, recovering", xlog.NodeID(a.ID()))
		a.transition(ctx, StateRecovering, a.ID(), nil, false)
	}
}

func (a *Allocator) allocate(ctx context.Context) {
	lctx, cancel := a.bounded(ctx)
	nodes, err := a.store.List(lctx)
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Error(ctx, "list nodes failed", xlog.Err(err))
		}
		return
	}
	id, err := pickID(nodes, a.cfg.BitNum)
	if err != nil {
		a.logger.Warn(ctx, "no available id, retry later", xlog.Err(err), slog.Int("nodes", len(nodes)))
		return
	}
	lease, err := a.acquire(ctx, id)
	if err != nil {
		a.logger.Debug(ctx, "acquire id failed", xlog.NodeID(id), xlog.Err(err))
		return
	}
	// 确认持有前先写时间戳
	tctx, cancel := a.bounded(ctx)
	defer cancel()
	if err := a.store.Touch(tctx, id, a.now()); err != nil {
		a.logger.Error(ctx, "write timestamp failed", xlog.NodeID(id), xlog.Err(err))
		a.releaseLease(ctx, lease)
		return
	}
	a.transition(ctx, StateLocked, id, lease, true)
}

func (a *Allocator) heartbeat(ctx context.Context) {
	a.mu.Lock()
	id, lease := a.id, a.lease
	a.mu.Unlock()
	if lease == nil || isDone(lease) {
		// 由随后的 sleep 切换到 RECOVERING
		return
	}
	// 存储暂时不可达时本轮跳过，不影响随后的 sleep 观察租约丢失
	hctx, cancel := a.bounded(ctx)
	defer cancel()
	if !a.store.Healthy(hctx) {
		a.logger.Debug(ctx, "store unhealthy, skip heartbeat", xlog.NodeID(id))
		return
	}
	if err := a.store.Touch(hctx, id, a.now()); err != nil && ctx.Err() == nil {
		a.logger.Warn(ctx, "heartbeat failed", xlog.NodeID(id), xlog.Err(err))
	}
}

func (a *Allocator) recover(ctx context.Context) {
	id := a.ID()
	lease, err := a.acquire(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		a.logger.Warn(ctx, "relock old id failed, duplicate id is possible until it is taken over",
			xlog.NodeID(id), xlog.Err(err))
		a.transition(ctx, StateNone, -1, nil, true)
		return
	}
	a.logger.Info(ctx, "old id relocked", xlog.NodeID(id))
	a.transition(ctx, StateLocked, id, lease, true)
	a.heartbeat(ctx)
}

// acquire 先释放旧租约，再在 AcquireTimeout 内获取 id。
func (a *Allocator) acquire(ctx context.Context, id int) (Lease, error) {
	a.mu.Lock()
	old := a.lease
	a.lease = nil
	a.mu.Unlock()
	if old != nil {
		a.releaseLease(ctx, old)
	}

	actx, cancel := context.WithTimeout(ctx, a.cfg.AcquireTimeout)
	defer cancel()
	lease, err := a.store.Acquire(actx, id)
	if err != nil {
		if !errors.Is(err, ErrLeaseBusy) && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: id %d: %w", ErrLeaseBusy, id, err)
		}
		return nil, err
	}
	return lease, nil
}

// bounded 单次存储调用的等待上限为 AcquireTimeout。
func (a *Allocator) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.cfg.AcquireTimeout)
}

func (a *Allocator) releaseLease(ctx context.Context, lease Lease) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.AcquireTimeout)
	defer cancel()
	if err := lease.Release(rctx); err != nil {
		a.logger.Debug(ctx, "release lease failed", xlog.Err(err))
	}
}

// transition setLease 为 false 时保留当前租约。
func (a *Allocator) transition(ctx context.Context, to State, id int, lease Lease, setLease bool) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		if setLease && lease != nil {
			a.releaseLease(ctx, lease)
		}
		return
	}
	a.state, a.id = to, id
	if setLease {
		a.lease = lease
	}
	close(a.changed)
	a.changed = make(chan struct{})
	a.mu.Unlock()

	a.logger.Info(ctx, "cluster id changed", slog.String(xlog.KeyState, to.String()), xlog.NodeID(id))
	a.metrics.recordTransition(ctx, to)
	if a.opts.onChange != nil {
		a.opts.onChange(to, id)
	}
}

func (a *Allocator) now() int64 {
	return a.opts.clock.Now().UnixMilli()
}

func isDone(l Lease) bool {
	select {
	case <-l.Done():
		return true
	default:
		return false
	}
}
