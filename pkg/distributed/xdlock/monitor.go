package xdlock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xcluster/pkg/observability/xlog"
	"github.com/omeyang/xcluster/pkg/resilience/xretry"
)

// subscribeRetryInterval 订阅失败后的重试间隔
const subscribeRetryInterval = time.Second

// keySeparator 释放通知中 key 的分隔符
const keySeparator = ","

// Waiter 一次性的唤醒信号，Fire 多次只保留一个信号。
type Waiter struct {
	ch chan struct{}
}

// NewWaiter 创建等待者，多次通知合并为一次。
func NewWaiter() *Waiter {
	return &Waiter{ch: make(chan struct{}, 1)}
}

// Fire 不阻塞，返回本次是否投递了信号。
func (w *Waiter) Fire() bool {
	select {
	case w.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// C 收到释放通知时可读。
func (w *Waiter) C() <-chan struct{} { return w.ch }

// Monitor 订阅释放通知并唤醒等待的 Waiter。
//
// 订阅在后台建立，失败按固定间隔一直重试，NewMonitor 不会因 Redis 不可用而阻塞或失败。
// 订阅建立之前发生的远端释放会丢失，等待方依靠超时兜底。
type Monitor struct {
	client  redis.UniversalClient
	channel string
	logger  xlog.Logger
	metrics *metrics
	clock   clockwork.Clock

	mu      sync.Mutex
	waiters map[string]map[*Waiter]struct{}

	ready     chan struct{}
	readyOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewMonitor 创建并启动 Monitor。
func NewMonitor(client redis.UniversalClient, channel string, opts ...Option) (*Monitor, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if channel == "" {
		channel = DefaultChannel
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	m, err := newMetrics(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("xdlock: create metrics: %w", err)
	}
	return newMonitor(client, channel, o, m), nil
}

func newMonitor(client redis.UniversalClient, channel string, o *options, m *metrics) *Monitor {
	logger := o.logger
	if logger == nil {
		logger = xlog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	mon := &Monitor{
		client:  client,
		channel: channel,
		logger:  logger.With(xlog.Component("xdlock.monitor"), slog.String("channel", channel)),
		metrics: m,
		clock:   o.clock,
		waiters: make(map[string]map[*Waiter]struct{}),
		ready:   make(chan struct{}),
		cancel:  cancel,
	}
	mon.wg.Add(1)
	go mon.run(ctx)
	return mon
}

// AddListener 在每个 key 上登记 w。
func (m *Monitor) AddListener(keys []string, w *Waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		set, ok := m.waiters[k]
		if !ok {
			set = make(map[*Waiter]struct{})
			m.waiters[k] = set
		}
		set[w] = struct{}{}
	}
}

// DelListener 撤销 AddListener，key 上没有等待者时回收条目。
func (m *Monitor) DelListener(keys []string, w *Waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		set, ok := m.waiters[k]
		if !ok {
			continue
		}
		delete(set, w)
		if len(set) == 0 {
			delete(m.waiters, k)
		}
	}
}

// Publish 先唤醒本地等待者再发布到频道。发布失败只记录日志。
func (m *Monitor) Publish(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	m.notify(ctx, keys, sourceLocal)
	payload := strings.Join(keys, keySeparator)
	if err := m.client.Publish(ctx, m.channel, payload).Err(); err != nil {
		m.logger.Warn(ctx, "publish release failed", xlog.Err(err), xlog.Keys(keys))
	}
}

// Ready 首次订阅成功后关闭。
func (m *Monitor) Ready() <-chan struct{} { return m.ready }

// Close 停止订阅循环，可重复调用。已登记的等待者不会被唤醒。
func (m *Monitor) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		m.wg.Wait()
	})
}

// notify 被唤醒的 Waiter 数计入 wakeup 指标。同一 Waiter 在多个 key 上只计一次。
func (m *Monitor) notify(ctx context.Context, keys []string, source string) {
	m.mu.Lock()
	fired := 0
	for _, k := range keys {
		for w := range m.waiters[k] {
			if w.Fire() {
				fired++
			}
		}
	}
	m.mu.Unlock()
	m.metrics.recordWakeup(ctx, source, fired)
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()
	retryer := xretry.NewRetryer(
		xretry.WithRetryPolicy(xretry.NewAlwaysRetry()),
		xretry.WithBackoffPolicy(xretry.NewFixedBackoff(subscribeRetryInterval)),
		xretry.WithTimer(m.clock),
	)
	for ctx.Err() == nil {
		ps, err := xretry.DoWithResult(ctx, retryer, m.subscribe)
		if err != nil {
			return
		}
		m.readyOnce.Do(func() { close(m.ready) })
		m.logger.Debug(ctx, "subscribed")
		m.consume(ctx, ps)
		if err := ps.Close(); err != nil {
			m.logger.Debug(ctx, "close pubsub", xlog.Err(err))
		}
	}
}

func (m *Monitor) subscribe(ctx context.Context) (*redis.PubSub, error) {
	ps := m.client.Subscribe(ctx, m.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		if ctx.Err() == nil {
			m.logger.Warn(ctx, "subscribe failed, retrying", xlog.Err(err))
		}
		return nil, err
	}
	return ps, nil
}

// consume 消息通道关闭时返回，由 run 重新订阅。
func (m *Monitor) consume(ctx context.Context, ps *redis.PubSub) {
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				m.logger.Warn(ctx, "subscription channel closed, resubscribing")
				return
			}
			m.notify(ctx, strings.Split(msg.Payload, keySeparator), sourceRemote)
		}
	}
}
