package xdlock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/omeyang/xcluster/pkg/observability/xlog"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func newTestMutex(t *testing.T, rdb redis.UniversalClient, id int, cfg *Config, opts ...Option) *Mutex {
	t.Helper()
	opts = append([]Option{WithLogger(xlog.Discard())}, opts...)
	m, err := NewMutex(rdb, StaticID(id), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func waitReady(t *testing.T, m *Mutex) {
	t.Helper()
	select {
	case <-m.Monitor().Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not subscribe")
	}
}

type errIDSource struct{ err error }

func (s errIDSource) Get(context.Context) (int, error) { return 0, s.err }

// pendingIDSource 模拟 ID 尚未分配：Get 阻塞到 ctx 结束，ID 返回 -1。
type pendingIDSource struct{}

func (pendingIDSource) Get(ctx context.Context) (int, error) {
	<-ctx.Done()
	return -1, ctx.Err()
}

type peekingIDSource struct{ pendingIDSource }

func (peekingIDSource) ID() int { return -1 }

func TestNewMutex_Errors(t *testing.T) {
	_, rdb := newMiniRedis(t)

	_, err := NewMutex(nil, StaticID(1), nil)
	require.ErrorIs(t, err, ErrNilClient)
	_, err = NewMutex(rdb, nil, nil)
	require.ErrorIs(t, err, ErrNilIDSource)
	_, err = NewMutex(rdb, StaticID(1), &Config{TTL: time.Second, FlushInterval: time.Second})
	require.Error(t, err)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "dlock:", cfg.Prefix)
	assert.Equal(t, "#dlock:sync", cfg.Channel)
	assert.Equal(t, 5*time.Second, cfg.TTL)
	assert.Equal(t, time.Second, cfg.FlushInterval)
	assert.Equal(t, 3*time.Second, cfg.RunTimeout)

	filled := (&Config{}).withDefaults()
	assert.Equal(t, DefaultTTL, filled.TTL)
	assert.Equal(t, DefaultChannel, filled.Channel)
	assert.Equal(t, DefaultPrefix, filled.Prefix)
}

func TestTryLock_PartialConfigKeepsPrefix(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	m := newTestMutex(t, rdb, 1, &Config{TTL: 10 * time.Second, FlushInterval: 4 * time.Second})

	ok, err := m.TryLock(context.Background(), []string{"user:1"})
	require.NoError(t, err)
	require.True(t, ok)

	assert.True(t, mr.Exists("dlock:user:1"))
	assert.False(t, mr.Exists("user:1"))
	assert.Equal(t, []string{"dlock:user:1"}, mr.Keys())
}

func TestTryLock_SetsAllKeysWithToken(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	m := newTestMutex(t, rdb, 7, nil)
	ctx := context.Background()

	ok, err := m.TryLock(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.True(t, ok)

	for _, k := range []string{"dlock:a", "dlock:b"} {
		v, err := mr.Get(k)
		require.NoError(t, err)
		assert.Equal(t, "7", v)
		assert.Equal(t, DefaultTTL, mr.TTL(k))
	}
	assert.Equal(t, []string{"a", "b"}, m.Held())
}

func TestTryLock_HeldKeyShortCircuits(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	m := newTestMutex(t, rdb, 1, nil)
	ctx := context.Background()

	ok, err := m.TryLock(ctx, []string{"a"})
	require.NoError(t, err)
	require.True(t, ok)

	// Redis 不可用时，持有中的 key 仍直接失败而不报错，证明没有访问 Redis
	mr.SetError("ERR down")
	ok, err = m.TryLock(ctx, []string{"x", "a"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.TryLock(ctx, []string{"z"})
	require.Error(t, err)
	mr.SetError("")
}

func TestTryLock_ConflictTouchesNothing(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	m1 := newTestMutex(t, rdb, 1, nil)
	m2 := newTestMutex(t, rdb, 2, nil)
	ctx := context.Background()

	ok, err := m1.TryLock(ctx, []string{"b"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m2.TryLock(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.False(t, ok)

	assert.False(t, mr.Exists("dlock:a"))
	assert.False(t, mr.Exists("dlock:c"))
	v, _ := mr.Get("dlock:b")
	assert.Equal(t, "1", v)
	assert.Empty(t, m2.Held())
}

func TestTryLock_SameTokenReacquires(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	m := newTestMutex(t, rdb, 3, nil)

	// 本进程重启前留下的 key：token 相同，可以直接接管
	require.NoError(t, mr.Set("dlock:a", "3"))
	ok, err := m.TryLock(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTryLock_ConcurrentInProcess(t *testing.T) {
	_, rdb := newMiniRedis(t)
	m := newTestMutex(t, rdb, 1, nil)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.TryLock(context.Background(), []string{"k"})
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestTryLock_InvalidKeys(t *testing.T) {
	_, rdb := newMiniRedis(t)
	m := newTestMutex(t, rdb, 1, nil)
	ctx := context.Background()

	_, err := m.TryLock(ctx, nil)
	require.ErrorIs(t, err, ErrEmptyKeys)
	_, err = m.TryLock(ctx, []string{""})
	require.ErrorIs(t, err, ErrEmptyKey)
	_, err = m.TryLock(ctx, []string{"a,b"})
	require.ErrorIs(t, err, ErrInvalidKey)
	_, err = m.TryLock(ctx, []string{strings.Repeat("k", maxKeyLength+1)})
	require.ErrorIs(t, err, ErrKeyTooLong)
}

func TestTryLock_IDSourceError(t *testing.T) {
	_, rdb := newMiniRedis(t)
	errNoID := errors.New("no id yet")
	m, err := NewMutex(rdb, errIDSource{err: errNoID}, nil, WithLogger(xlog.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	ok, err := m.TryLock(context.Background(), []string{"a"})
	require.ErrorIs(t, err, errNoID)
	assert.False(t, ok)

	// 失败后预留被撤销
	assert.Empty(t, m.pending)
}

func TestTryLock_NoNodeIDFailsFast(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	m, err := NewMutex(rdb, peekingIDSource{}, nil, WithLogger(xlog.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	ok, err := m.TryLock(context.Background(), []string{"a"})
	require.ErrorIs(t, err, ErrNoNodeID)
	assert.False(t, ok)
	assert.Empty(t, mr.Keys())
}

func TestLock_NodeIDWaitBoundedByTimeout(t *testing.T) {
	_, rdb := newMiniRedis(t)
	m, err := NewMutex(rdb, pendingIDSource{}, nil, WithLogger(xlog.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	done := make(chan error, 1)
	start := time.Now()
	go func() {
		done <- m.RunInLock(context.Background(), []string{"a"}, func(context.Context) error {
			return errors.New("must not run")
		}, WithRunTimeout(200*time.Millisecond))
	}()

	// 等待 ID 期间不占用 key
	time.Sleep(50 * time.Millisecond)
	m.mu.Lock()
	assert.Empty(t, m.pending)
	m.mu.Unlock()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrLockTimeout)
		var lte *LockTimeoutError
		require.ErrorAs(t, err, &lte)
		assert.Equal(t, 200*time.Millisecond, lte.Timeout)
		assert.Less(t, time.Since(start), 2*time.Second)
	case <-time.After(5 * time.Second):
		t.Fatal("RunInLock ignored its timeout while waiting for node id")
	}
}

func TestLock_CloseWhileWaitingNodeID(t *testing.T) {
	_, rdb := newMiniRedis(t)
	m, err := NewMutex(rdb, pendingIDSource{}, nil, WithLogger(xlog.Discard()))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.Lock(context.Background(), []string{"a"}, time.Minute)
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, m.Close(context.Background()))

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not wake Lock waiting for node id")
	}
}

func TestUnlock_IdempotentAndOwnerSafe(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	m := newTestMutex(t, rdb, 1, nil)
	ctx := context.Background()

	ok, err := m.TryLock(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.True(t, ok)

	// a 过期后被节点 9 获取
	require.NoError(t, mr.Set("dlock:a", "9"))

	require.NoError(t, m.Unlock(ctx, []string{"a", "b"}))
	v, _ := mr.Get("dlock:a")
	assert.Equal(t, "9", v)
	assert.False(t, mr.Exists("dlock:b"))
	assert.Empty(t, m.Held())

	require.NoError(t, m.Unlock(ctx, []string{"a", "b"}))
	require.NoError(t, m.Unlock(ctx, []string{"never-held"}))
}

func TestUnlock_RedisDownStillForgets(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	m := newTestMutex(t, rdb, 1, nil)
	ctx := context.Background()

	ok, err := m.TryLock(ctx, []string{"a"})
	require.NoError(t, err)
	require.True(t, ok)

	mr.SetError("ERR down")
	require.NoError(t, m.Unlock(ctx, []string{"a"}))
	mr.SetError("")
	assert.Empty(t, m.Held())
}

func TestHeartbeat_RenewsHeldKeys(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	clock := clockwork.NewFakeClock()
	m := newTestMutex(t, rdb, 1, nil, WithClock(clock))
	ctx := context.Background()

	ok, err := m.TryLock(ctx, []string{"a"})
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(4 * time.Second)
	require.Equal(t, time.Second, mr.TTL("dlock:a"))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	clock.Advance(DefaultFlushInterval)

	assert.Eventually(t, func() bool {
		return mr.TTL("dlock:a") == DefaultTTL
	}, 5*time.Second, 5*time.Millisecond)
}

func TestLock_WokenByRelease(t *testing.T) {
	_, rdb := newMiniRedis(t)
	// 轮询间隔放大到 4s，1s 内拿到锁只能来自释放通知
	cfg := &Config{TTL: 10 * time.Second, FlushInterval: 4 * time.Second}
	m1 := newTestMutex(t, rdb, 1, cfg)
	m2 := newTestMutex(t, rdb, 2, cfg)
	waitReady(t, m2)
	ctx := context.Background()

	ok, err := m1.TryLock(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.True(t, ok)

	type result struct {
		ok  bool
		err error
		at  time.Time
	}
	done := make(chan result, 1)
	go func() {
		ok, err := m2.Lock(ctx, []string{"b", "c"}, 3*time.Second)
		done <- result{ok, err, time.Now()}
	}()

	time.Sleep(50 * time.Millisecond)
	released := time.Now()
	require.NoError(t, m1.Unlock(ctx, []string{"a", "b"}))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.True(t, r.ok)
		assert.Less(t, r.at.Sub(released), time.Second)
	case <-time.After(5 * time.Second):
		t.Fatal("Lock did not return")
	}
	assert.Equal(t, []string{"b", "c"}, m2.Held())
}

func TestLock_LocalWaiterWokenBeforePublish(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	cfg := &Config{TTL: 10 * time.Second, FlushInterval: 4 * time.Second}
	m := newTestMutex(t, rdb, 1, cfg)
	ctx := context.Background()

	ok, err := m.TryLock(ctx, []string{"a"})
	require.NoError(t, err)
	require.True(t, ok)

	done := make(chan bool, 1)
	go func() {
		ok, _ := m.Lock(ctx, []string{"a"}, 3*time.Second)
		done <- ok
	}()
	time.Sleep(50 * time.Millisecond)
	assert.True(t, mr.Exists("dlock:a"))
	require.NoError(t, m.Unlock(ctx, []string{"a"}))

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("local waiter not woken")
	}
}

func TestLock_Timeout(t *testing.T) {
	_, rdb := newMiniRedis(t)
	m1 := newTestMutex(t, rdb, 1, nil)
	m2 := newTestMutex(t, rdb, 2, nil)
	ctx := context.Background()

	ok, err := m1.TryLock(ctx, []string{"a"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m2.Lock(ctx, []string{"a"}, 100*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m2.Lock(ctx, []string{"a"}, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLock_ContextCanceled(t *testing.T) {
	_, rdb := newMiniRedis(t)
	m1 := newTestMutex(t, rdb, 1, nil)
	m2 := newTestMutex(t, rdb, 2, nil)

	ok, err := m1.TryLock(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	ok, err = m2.Lock(ctx, []string{"a"}, 10*time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
}

func TestLock_CloseWakesWaiter(t *testing.T) {
	_, rdb := newMiniRedis(t)
	m1 := newTestMutex(t, rdb, 1, nil)
	m2 := newTestMutex(t, rdb, 2, nil)
	ctx := context.Background()

	ok, err := m1.TryLock(ctx, []string{"a"})
	require.NoError(t, err)
	require.True(t, ok)

	done := make(chan error, 1)
	go func() {
		_, err := m2.Lock(ctx, []string{"a"}, 10*time.Second)
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, m2.Close(ctx))

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not wake Lock")
	}

	_, err = m2.TryLock(ctx, []string{"b"})
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, m2.Close(ctx))
}

func TestMutex_MetricsAndSpans(t *testing.T) {
	_, rdb := newMiniRedis(t)
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	m := newTestMutex(t, rdb, 1, nil, WithMeterProvider(mp), WithTracerProvider(tp))
	ctx := context.Background()

	require.NoError(t, m.RunInLock(ctx, []string{"a"}, func(context.Context) error { return nil }))
	ok, err := m.TryLock(ctx, []string{"b"})
	require.NoError(t, err)
	require.True(t, ok)
	w := NewWaiter()
	m.Monitor().AddListener([]string{"b"}, w)
	require.NoError(t, m.Unlock(ctx, []string{"b"}))
	<-w.C()
	m.Monitor().DelListener([]string{"b"}, w)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			names[md.Name] = true
		}
	}
	assert.True(t, names[metricNameAcquireTotal])
	assert.True(t, names[metricNameAcquireDuration])
	assert.True(t, names[metricNameReleaseTotal])
	assert.True(t, names[metricNameWakeupTotal])

	spans := map[string]bool{}
	for _, s := range sr.Ended() {
		spans[s.Name()] = true
	}
	assert.True(t, spans[spanNameRunInLock])
	assert.True(t, spans[spanNameLock])
}
