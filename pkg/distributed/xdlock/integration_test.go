//go:build integration

package xdlock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xcluster/internal/testenv"
	"github.com/omeyang/xcluster/pkg/observability/xlog"
)

func TestIntegration_CrossNodeExclusion(t *testing.T) {
	client := testenv.Redis(t)
	cfg := DefaultConfig()
	cfg.Prefix = fmt.Sprintf("dlock-it-%d:", time.Now().UnixNano())

	const nodes = 4
	mutexes := make([]*Mutex, nodes)
	for i := range nodes {
		m, err := NewMutex(client, StaticID(i), cfg, WithLogger(xlog.Discard()))
		require.NoError(t, err)
		t.Cleanup(func() { _ = m.Close(context.Background()) })
		mutexes[i] = m
	}

	var inFlight, violations, runs atomic.Int32
	var wg sync.WaitGroup
	for _, m := range mutexes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				err := m.RunInLock(context.Background(), []string{"x", "y"}, func(context.Context) error {
					if inFlight.Add(1) > 1 {
						violations.Add(1)
					}
					time.Sleep(2 * time.Millisecond)
					inFlight.Add(-1)
					runs.Add(1)
					return nil
				}, WithRunTimeout(30*time.Second))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, nodes*10, runs.Load())
	assert.Zero(t, violations.Load())
}

func TestIntegration_ExpiredHolderIsTakenOver(t *testing.T) {
	client := testenv.Redis(t)
	cfg := &Config{
		Prefix:        fmt.Sprintf("dlock-exp-%d:", time.Now().UnixNano()),
		TTL:           500 * time.Millisecond,
		FlushInterval: 100 * time.Millisecond,
	}
	crashed, err := NewMutex(client, StaticID(1), cfg, WithLogger(xlog.Discard()))
	require.NoError(t, err)
	ok, err := crashed.TryLock(context.Background(), []string{"job"})
	require.NoError(t, err)
	require.True(t, ok)
	// 停止心跳且不释放，模拟进程崩溃
	require.NoError(t, crashed.Close(context.Background()))

	m, err := NewMutex(client, StaticID(2), cfg, WithLogger(xlog.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	ok, err = m.Lock(context.Background(), []string{"job"}, 3*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
