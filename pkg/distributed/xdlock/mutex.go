package xdlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xcluster/pkg/lifecycle/xrun"
	"github.com/omeyang/xcluster/pkg/observability/xlog"
)

// maxKeyLength 单个 key 的最大长度（不含前缀）
const maxKeyLength = 512

// Mutex 多 key 分布式互斥锁，并发安全。
//
// 本进程持有的 key 记录在 held 中；正在执行加锁脚本的 key 记录在 pending 中，
// 两者都会让同进程的后续 TryLock 直接失败而不访问 Redis。
type Mutex struct {
	client  redis.UniversalClient
	ids     IDSource
	cfg     *Config
	opts    *options
	logger  xlog.Logger
	metrics *metrics
	tracer  trace.Tracer
	monitor *Monitor
	scripts *scripts

	mu      sync.Mutex
	held    map[string]string // key -> token
	pending map[string]struct{}
	closed  bool

	done      chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewMutex 创建 Mutex 并启动心跳与释放通知订阅。cfg 为 nil 时使用 DefaultConfig()。
func NewMutex(client redis.UniversalClient, ids IDSource, cfg *Config, opts ...Option) (*Mutex, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if ids == nil {
		return nil, ErrNilIDSource
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

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
	o.logger = logger
	m, err := newMetrics(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("xdlock: create metrics: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	mu := &Mutex{
		client:  client,
		ids:     ids,
		cfg:     cfg,
		opts:    o,
		logger:  logger.With(xlog.Component("xdlock")),
		metrics: m,
		tracer:  getTracer(o.tracerProvider),
		monitor: newMonitor(client, cfg.Channel, o, m),
		scripts: getScripts(),
		held:    make(map[string]string),
		pending: make(map[string]struct{}),
		done:    make(chan struct{}),
		cancel:  cancel,
	}

	mu.wg.Add(1)
	go func() {
		defer mu.wg.Done()
		_ = xrun.Ticker(o.clock, cfg.FlushInterval, false, mu.flush)(ctx)
	}()
	return mu, nil
}

// Monitor 释放通知的订阅者。
func (m *Mutex) Monitor() *Monitor { return m.monitor }

// TryLock 尝试一次性获取全部 keys，不等待。
//
// 任一 key 已被本进程持有或正在获取时直接返回 false，不访问 Redis。
// key 被其他节点持有时返回 (false, nil)，Redis 错误原样返回。
// IDSource 能非阻塞读取 ID 时（如 xclusterid.Allocator），未持有 ID 返回 ErrNoNodeID。
func (m *Mutex) TryLock(ctx context.Context, keys []string) (bool, error) {
	ok, err := m.tryLock(ctx, keys, m.peekID(ctx))
	m.metrics.recordAcquire(ctx, opTry, ok)
	return ok, err
}

// Lock 在 timeout 内反复尝试获取全部 keys。
//
// 两次尝试之间等待释放通知，最长等待 FlushInterval 后也会重试，
// 以发现持有者崩溃后因 TTL 过期而空出的 key。
// 超时返回 (false, nil)；若最后一次尝试出错则返回该错误。ctx 取消时返回 ctx.Err()。
func (m *Mutex) Lock(ctx context.Context, keys []string, timeout time.Duration) (ok bool, err error) {
	ctx, span := startSpan(ctx, m.tracer, spanNameLock, trace.WithAttributes(
		attribute.StringSlice(attrKeys, keys),
		attribute.Int64(attrTimeout, timeout.Milliseconds()),
	))
	start := m.opts.clock.Now()
	defer func() {
		span.SetAttributes(attribute.Bool(attrAcquired, ok))
		setSpanError(span, err)
		span.End()
		m.metrics.recordAcquire(ctx, opLock, ok)
		m.metrics.recordLockDuration(ctx, ok, m.opts.clock.Since(start))
	}()
	return m.lock(ctx, keys, timeout)
}

func (m *Mutex) lock(ctx context.Context, keys []string, timeout time.Duration) (bool, error) {
	if err := validateKeys(keys); err != nil {
		return false, err
	}
	keys = uniqueKeys(keys)

	// 先登记再尝试，尝试失败到开始等待之间发生的释放不会丢失
	w := NewWaiter()
	m.monitor.AddListener(keys, w)
	defer m.monitor.DelListener(keys, w)

	if timeout <= 0 {
		ok, err := m.tryLock(ctx, keys, m.peekID(ctx))
		if ok || errors.Is(err, ErrClosed) {
			return ok, err
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, err
	}

	deadline := m.opts.clock.NewTimer(timeout)
	defer deadline.Stop()

	// 截止时间到达或 Mutex 关闭后取消 idCtx，等待节点 ID 的调用随之返回
	idCtx, cancelID := context.WithCancel(ctx)
	defer cancelID()
	expired := make(chan struct{})
	go func() {
		select {
		case <-deadline.Chan():
			close(expired)
			cancelID()
		case <-m.done:
			cancelID()
		case <-idCtx.Done():
		}
	}()
	waitID := func() (int, error) { return m.ids.Get(idCtx) }

	var lastErr error
	for {
		ok, err := m.tryLock(ctx, keys, waitID)
		switch {
		case ok:
			return true, nil
		case errors.Is(err, ErrClosed):
			return false, err
		case ctx.Err() != nil:
			return false, ctx.Err()
		}
		lastErr = err

		select {
		case <-expired:
			return false, lastErr
		default:
		}
		poll := m.opts.clock.NewTimer(m.cfg.FlushInterval)
		select {
		case <-w.C():
		case <-poll.Chan():
		case <-expired:
			poll.Stop()
			return false, lastErr
		case <-ctx.Done():
			poll.Stop()
			return false, ctx.Err()
		case <-m.done:
			poll.Stop()
			return false, ErrClosed
		}
		poll.Stop()
	}
}

// peekID 单次尝试使用的节点 ID，能非阻塞读取时不等待分配。
func (m *Mutex) peekID(ctx context.Context) func() (int, error) {
	return func() (int, error) {
		if r, ok := m.ids.(nodeIDReader); ok {
			if id := r.ID(); id >= 0 {
				return id, nil
			}
			return -1, ErrNoNodeID
		}
		return m.ids.Get(ctx)
	}
}

// tryLock 先取节点 ID 再登记 pending，等待 ID 期间不占用 key。
func (m *Mutex) tryLock(ctx context.Context, keys []string, nodeID func() (int, error)) (bool, error) {
	if err := validateKeys(keys); err != nil {
		return false, err
	}
	keys = uniqueKeys(keys)
	if m.isClosed() {
		return false, ErrClosed
	}

	id, err := nodeID()
	if err != nil {
		if errors.Is(err, ErrNoNodeID) {
			return false, err
		}
		return false, fmt.Errorf("xdlock: get node id: %w", err)
	}
	token := tokenOf(id)

	reserved, err := m.reserve(keys)
	if err != nil || !reserved {
		return false, err
	}

	res, err := m.scripts.acquire.Run(ctx, m.client, m.prefixed(keys), token, m.cfg.TTL.Milliseconds()).Result()
	if err != nil {
		m.unreserve(keys)
		return false, err
	}
	reply, isString := res.(string)
	if !isString {
		m.unreserve(keys)
		return false, fmt.Errorf("%w: %T", ErrScriptResult, res)
	}
	if strings.EqualFold(reply, scriptOK) {
		m.commit(keys, token)
		return true, nil
	}
	m.unreserve(keys)
	if conflict, found := strings.CutPrefix(reply, m.cfg.Prefix); found && slices.Contains(keys, conflict) {
		m.logger.Debug(ctx, "lock conflict", slog.String("key", conflict), xlog.Keys(keys))
	} else {
		m.logger.Warn(ctx, "unexpected acquire reply", slog.String("reply", reply), xlog.Keys(keys))
	}
	return false, nil
}

// Unlock 释放本进程持有的 keys，未持有的 key 被忽略，可重复调用。
//
// 删除 Redis key 失败只记录日志，key 会在 TTL 后过期。仍广播释放通知。
func (m *Mutex) Unlock(ctx context.Context, keys []string) error {
	if err := validateKeys(keys); err != nil {
		return err
	}
	byToken := m.forget(uniqueKeys(keys))
	if len(byToken) == 0 {
		return nil
	}

	var released []string
	for token, ks := range byToken {
		if err := m.scripts.release.Run(ctx, m.client, m.prefixed(ks), token).Err(); err != nil {
			m.logger.Warn(ctx, "release failed, leaving keys to ttl", xlog.Err(err), xlog.Keys(ks))
		}
		released = append(released, ks...)
	}
	slices.Sort(released)
	m.metrics.recordRelease(ctx, len(released))
	m.monitor.Publish(ctx, released)
	return nil
}

// Held 本进程当前持有的 key（不含前缀），升序。
func (m *Mutex) Held() []string {
	m.mu.Lock()
	keys := make([]string, 0, len(m.held))
	for k := range m.held {
		keys = append(keys, k)
	}
	m.mu.Unlock()
	slices.Sort(keys)
	return keys
}

// Close 停止心跳与订阅，阻塞中的 Lock 返回 ErrClosed。
// 已持有的 key 不主动删除，在 TTL 后过期。可重复调用。
func (m *Mutex) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.done)
		m.cancel()
	})

	stopped := make(chan struct{})
	go func() {
		m.wg.Wait()
		m.monitor.Close()
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ----------------------------------------------------------------------------
// 心跳与本地持有集合
// ----------------------------------------------------------------------------

// flush 心跳：一次 pipeline 把所有已持有 key 续期到 TTL。
func (m *Mutex) flush(ctx context.Context) error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.held))
	for k := range m.held {
		keys = append(keys, m.cfg.Prefix+k)
	}
	m.mu.Unlock()
	if len(keys) == 0 {
		return nil
	}

	_, err := m.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range keys {
			p.PExpire(ctx, k, m.cfg.TTL)
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		m.logger.Warn(ctx, "heartbeat failed", xlog.Err(err), slog.Int("keys", len(keys)))
	}
	return nil
}

func (m *Mutex) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// reserve 所有 key 都空闲时把它们标记为 pending。
func (m *Mutex) reserve(keys []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	for _, k := range keys {
		if _, ok := m.held[k]; ok {
			return false, nil
		}
		if _, ok := m.pending[k]; ok {
			return false, nil
		}
	}
	for _, k := range keys {
		m.pending[k] = struct{}{}
	}
	return true, nil
}

func (m *Mutex) unreserve(keys []string) {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.pending, k)
	}
	m.mu.Unlock()
}

func (m *Mutex) commit(keys []string, token string) {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.pending, k)
		m.held[k] = token
	}
	m.mu.Unlock()
}

// forget 从 held 中移除 keys，按 token 分组返回实际持有的部分。
func (m *Mutex) forget(keys []string) map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var byToken map[string][]string
	for _, k := range keys {
		token, ok := m.held[k]
		if !ok {
			continue
		}
		delete(m.held, k)
		if byToken == nil {
			byToken = make(map[string][]string)
		}
		byToken[token] = append(byToken[token], k)
	}
	return byToken
}

func (m *Mutex) prefixed(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = m.cfg.Prefix + k
	}
	return out
}

func validateKeys(keys []string) error {
	if len(keys) == 0 {
		return ErrEmptyKeys
	}
	for _, k := range keys {
		switch {
		case k == "":
			return ErrEmptyKey
		case len(k) > maxKeyLength:
			return ErrKeyTooLong
		case strings.Contains(k, keySeparator):
			return fmt.Errorf("%w: %q", ErrInvalidKey, k)
		}
	}
	return nil
}

// uniqueKeys 去重并保持首次出现的顺序。
func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
