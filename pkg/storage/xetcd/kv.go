package xetcd

import (
	"context"
	"fmt"
	"strconv"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/omeyang/xcluster/pkg/resilience/xretry"
)

// KeyValue 带版本信息的键值。
type KeyValue struct {
	Key            string
	Value          []byte
	CreateRevision int64
	ModRevision    int64
	Lease          int64
}

// Get 读取 key，不存在返回 ErrKeyNotFound。
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	kv, err := c.GetKV(ctx, key)
	if err != nil {
		return nil, err
	}
	return kv.Value, nil
}

// GetKV 读取 key 及其版本信息。
func (c *Client) GetKV(ctx context.Context, key string) (*KeyValue, error) {
	if err := c.check(key); err != nil {
		return nil, err
	}
	resp, err := c.client.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("xetcd: get %q: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrKeyNotFound
	}
	kv := resp.Kvs[0]
	return &KeyValue{
		Key:            string(kv.Key),
		Value:          kv.Value,
		CreateRevision: kv.CreateRevision,
		ModRevision:    kv.ModRevision,
		Lease:          kv.Lease,
	}, nil
}

// Put 写入 key。
func (c *Client) Put(ctx context.Context, key string, value []byte) error {
	if err := c.check(key); err != nil {
		return err
	}
	if _, err := c.client.Put(ctx, key, string(value)); err != nil {
		return fmt.Errorf("xetcd: put %q: %w", key, err)
	}
	return nil
}

// Delete 删除 key，不存在不报错。
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.check(key); err != nil {
		return err
	}
	if _, err := c.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("xetcd: delete %q: %w", key, err)
	}
	return nil
}

// List 按前缀列出 key，结果按 key 升序。
func (c *Client) List(ctx context.Context, prefix string) ([]KeyValue, error) {
	if err := c.check(prefix); err != nil {
		return nil, err
	}
	resp, err := c.client.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, fmt.Errorf("xetcd: list %q: %w", prefix, err)
	}
	out := make([]KeyValue, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out = append(out, KeyValue{
			Key:            string(kv.Key),
			Value:          kv.Value,
			CreateRevision: kv.CreateRevision,
			ModRevision:    kv.ModRevision,
			Lease:          kv.Lease,
		})
	}
	return out, nil
}

// Incr 原子地给计数器加 delta，返回加后的值。key 不存在时视为 0。
//
// 实现为读取 ModRevision 后以 Txn 比较交换；并发修改导致的冲突按 WithCASRetry 重试。
func (c *Client) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	if err := c.check(key); err != nil {
		return 0, err
	}
	return xretry.DoWithResult(ctx, c.casRetryer(), func(ctx context.Context) (int64, error) {
		return c.tryIncr(ctx, key, delta)
	})
}

func (c *Client) tryIncr(ctx context.Context, key string, delta int64) (int64, error) {
	resp, err := c.client.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("xetcd: incr get %q: %w", key, err)
	}

	var cur, rev int64
	if len(resp.Kvs) > 0 {
		kv := resp.Kvs[0]
		cur, err = strconv.ParseInt(string(kv.Value), 10, 64)
		if err != nil {
			return 0, xretry.NewPermanentError(fmt.Errorf("%w: %q=%q", ErrNotCounter, key, kv.Value))
		}
		rev = kv.ModRevision
	}

	next := cur + delta
	// 不存在的 key ModRevision 为 0，同一个比较覆盖首次创建
	txn, err := c.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", rev)).
		Then(clientv3.OpPut(key, strconv.FormatInt(next, 10))).
		Commit()
	if err != nil {
		return 0, fmt.Errorf("xetcd: incr txn %q: %w", key, err)
	}
	if !txn.Succeeded {
		return 0, ErrCASConflict
	}
	return next, nil
}
