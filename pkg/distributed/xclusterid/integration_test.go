//go:build integration

package xclusterid

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xcluster/internal/testenv"
	"github.com/omeyang/xcluster/pkg/observability/xlog"
	"github.com/omeyang/xcluster/pkg/storage/xetcd"
)

func newEtcdClient(t *testing.T) *xetcd.Client {
	t.Helper()
	c, err := xetcd.NewClient(&xetcd.Config{Endpoints: testenv.EtcdEndpoints(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestIntegration_DistinctIDsAndTakeover(t *testing.T) {
	client := newEtcdClient(t)
	cfg := &Config{
		BitNum:     2,
		Path:       fmt.Sprintf("/xclusterid-it/%d", time.Now().UnixNano()),
		SessionTTL: 5,
	}

	const full = 4
	allocators := make([]*Allocator, full)
	seen := map[int]bool{}
	for i := range full {
		a, err := NewEtcdAllocator(client, cfg, WithLogger(xlog.Discard()))
		require.NoError(t, err)
		t.Cleanup(func() { _ = a.Close() })
		allocators[i] = a
	}
	for _, a := range allocators {
		id, err := getWithin(t, a, 30*time.Second)
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}

	extra, err := NewEtcdAllocator(client, cfg, WithLogger(xlog.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = extra.Close() })
	_, err = getWithin(t, extra, 3*time.Second)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateNone, extra.Status())

	freed := allocators[1].ID()
	require.NoError(t, allocators[1].Close())

	id, err := getWithin(t, extra, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, freed, id)
}

func TestIntegration_StoreListsLockedNodes(t *testing.T) {
	client := newEtcdClient(t)
	path := fmt.Sprintf("/xclusterid-store/%d", time.Now().UnixNano())
	store, err := NewEtcdStore(client, path, WithStoreLogger(xlog.Discard()))
	require.NoError(t, err)
	ctx := context.Background()

	lease, err := store.Acquire(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, store.Touch(ctx, 3, 42))
	require.NoError(t, store.Touch(ctx, 7, 43))

	nodes, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Node{{ID: 3, Timestamp: 42, Locked: true}, {ID: 7, Timestamp: 43}}, nodes)

	actx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	_, err = store.Acquire(actx, 3)
	require.ErrorIs(t, err, ErrLeaseBusy)

	require.NoError(t, lease.Release(ctx))
	nodes, err = store.List(ctx)
	require.NoError(t, err)
	assert.False(t, nodes[0].Locked)
	assert.True(t, store.Healthy(ctx))
}

func TestIntegration_UnreachableEtcdRespectsBudget(t *testing.T) {
	client, err := xetcd.NewClient(&xetcd.Config{Endpoints: []string{"127.0.0.1:1"}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	store, err := NewEtcdStore(client, "/unreachable", WithStoreLogger(xlog.Discard()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	_, err = store.Acquire(ctx, 0)
	require.ErrorIs(t, err, ErrLeaseBusy)
	assert.Less(t, time.Since(start), 3*time.Second)

	hctx, hcancel := context.WithTimeout(context.Background(), time.Second)
	defer hcancel()
	start = time.Now()
	assert.False(t, store.Healthy(hctx))
	assert.Less(t, time.Since(start), 3*time.Second)
}
