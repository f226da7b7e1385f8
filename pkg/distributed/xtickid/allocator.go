package xtickid

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omeyang/xcluster/pkg/observability/xlog"
	"github.com/omeyang/xcluster/pkg/resilience/xretry"
)

// Allocator 双缓冲号段分配器，并发安全。
//
// 普通的 Take 在读锁下完成（号段内部原子推进），只有切换号段与安装新号段需要写锁。
// 补充由每个实例独占的后台 goroutine 执行，loading 保证同一时刻最多一次补充。
type Allocator struct {
	provider Provider
	opts     *options
	logger   xlog.Logger
	metrics  *metrics
	retryer  *xretry.Retryer

	mu      sync.RWMutex
	current *Pool
	next    *Pool
	ready   chan struct{} // 安装新号段时关闭并替换，唤醒全部等待者
	lastErr error
	closed  bool

	loading   atomic.Bool
	refillCh  chan struct{}
	done      chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New 创建分配器并立即开始预取第一个号段。
func New(provider Provider, opts ...Option) (*Allocator, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.batch <= 0 {
		return nil, ErrInvalidBatch
	}
	logger := o.logger
	if logger == nil {
		logger = xlog.Default()
	}
	m, err := newMetrics(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("xtickid: create metrics: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Allocator{
		provider: provider,
		opts:     o,
		logger:   logger.With(xlog.Component("xtickid"), slog.String("tick", provider.Name())),
		metrics:  m,
		retryer: xretry.NewRetryer(
			xretry.WithRetryPolicy(xretry.NewAlwaysRetry()),
			xretry.WithBackoffPolicy(xretry.NewExponentialBackoff(
				xretry.WithInitialDelay(o.backoffMin),
				xretry.WithMaxDelay(o.backoffMax),
			)),
			xretry.WithTimer(o.clock),
		),
		ready:    make(chan struct{}),
		refillCh: make(chan struct{}, 1),
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	a.wg.Add(1)
	go a.refillLoop(ctx)

	a.mu.RLock()
	a.checkLoadLocked()
	a.mu.RUnlock()
	return a, nil
}

// Name 计数器名称。
func (a *Allocator) Name() string {
	return a.provider.Name()
}

// Generate 取下一个号，最多等待 MaxWait。
func (a *Allocator) Generate(ctx context.Context) (int64, error) {
	return a.GenerateTimeout(ctx, a.opts.maxWait)
}

// GenerateTimeout 取下一个号，timeout 内没有可用号返回 ErrTimeout。
// 两个号段都已用尽且最近一次补充失败时立即返回 *ProviderError（匹配 ErrProvider），
// 不等待 timeout；后台补充仍按退避继续，成功后恢复取号。
func (a *Allocator) GenerateTimeout(ctx context.Context, timeout time.Duration) (int64, error) {
	v, ok, _, err := a.tryTake()
	if err != nil || ok {
		return v, err
	}
	if err := a.providerError(); err != nil {
		return 0, err
	}
	if timeout <= 0 {
		return 0, a.timeoutError(timeout)
	}

	timer := a.opts.clock.NewTimer(timeout)
	defer timer.Stop()
	for {
		v, ok, wait, err := a.tryTake()
		if err != nil {
			return 0, err
		}
		if ok {
			return v, nil
		}
		if err := a.providerError(); err != nil {
			return 0, err
		}
		select {
		case <-wait:
		case <-timer.Chan():
			return 0, a.timeoutError(timeout)
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-a.done:
			return 0, ErrClosed
		}
	}
}

// Close 停止后台补充，阻塞中与之后的 Generate 返回 ErrClosed。可重复调用。
func (a *Allocator) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		a.mu.Unlock()
		close(a.done)
		a.cancel()
		a.wg.Wait()
	})
	return nil
}

// tryTake 未取到号时返回本轮应等待的 ready 通道，在同一把锁内获取以免丢失唤醒。
func (a *Allocator) tryTake() (int64, bool, <-chan struct{}, error) {
	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return 0, false, nil, ErrClosed
	}
	if a.current != nil {
		if v, ok := a.current.Take(); ok {
			a.checkLoadLocked()
			a.mu.RUnlock()
			return v, true, nil, nil
		}
	}
	if a.next == nil {
		a.checkLoadLocked()
		wait := a.ready
		a.mu.RUnlock()
		return 0, false, wait, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, false, nil, ErrClosed
	}
	if (a.current == nil || a.current.Drained()) && a.next != nil {
		a.current, a.next = a.next, nil
	}
	if a.current != nil {
		if v, ok := a.current.Take(); ok {
			a.checkLoadLocked()
			return v, true, nil, nil
		}
	}
	a.checkLoadLocked()
	return 0, false, a.ready, nil
}

// checkLoadLocked 调用方持有读锁或写锁。两个槽都可用时不预取。
func (a *Allocator) checkLoadLocked() {
	if a.closed {
		return
	}
	if a.current != nil && !a.current.Drained() && a.next != nil {
		return
	}
	if !a.loading.CompareAndSwap(false, true) {
		return
	}
	select {
	case a.refillCh <- struct{}{}:
	default:
	}
}

func (a *Allocator) refillLoop(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.refillCh:
		}
		a.refill(ctx)
	}
}

// refill 失败按指数退避一直重试，直到成功或 Close。
func (a *Allocator) refill(ctx context.Context) {
	name := a.provider.Name()
	high, err := xretry.DoWithResult(ctx, a.retryer, func(ctx context.Context) (int64, error) {
		start := a.opts.clock.Now()
		m, err := a.provider.Acquire(ctx, a.opts.batch)
		a.metrics.recordRefill(ctx, name, err, a.opts.clock.Since(start))
		if err != nil {
			a.setLastErr(err)
			if ctx.Err() == nil {
				a.logger.Warn(ctx, "refill failed, retrying", xlog.Err(err))
			}
			// 熔断等不可重试错误在这里同样退避重试
			return 0, xretry.NewTemporaryError(err)
		}
		return m, nil
	})
	if err != nil {
		a.loading.Store(false)
		return
	}
	a.install(ctx, high)
}

func (a *Allocator) install(ctx context.Context, high int64) {
	pool := NewPool(high-a.opts.batch, high)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.loading.Store(false)
	a.lastErr = nil
	switch {
	case a.current == nil || a.current.Drained():
		if a.next != nil {
			a.current, a.next = a.next, pool
		} else {
			a.current = pool
		}
	case a.next == nil:
		a.next = pool
	default:
		a.logger.Warn(ctx, "both slots occupied, range dropped",
			slog.Int64("min", high-a.opts.batch), slog.Int64("max", high))
	}
	close(a.ready)
	a.ready = make(chan struct{})
	a.logger.Debug(ctx, "range installed", slog.Int64("max", high))

	a.checkLoadLocked()
}

// setLastErr 记录补充失败并唤醒等待者，使其立即得到 ProviderError。
func (a *Allocator) setLastErr(err error) {
	a.mu.Lock()
	a.lastErr = err
	close(a.ready)
	a.ready = make(chan struct{})
	a.mu.Unlock()
}

func (a *Allocator) providerError() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastErr == nil {
		return nil
	}
	return &ProviderError{Name: a.provider.Name(), Err: a.lastErr}
}

func (a *Allocator) timeoutError(timeout time.Duration) error {
	a.mu.RLock()
	last := a.lastErr
	a.mu.RUnlock()
	if last != nil {
		return fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, &ProviderError{Name: a.provider.Name(), Err: last})
	}
	return fmt.Errorf("%w after %s", ErrTimeout, timeout)
}
