package xtickid

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Provider 全局原子计数器。Acquire 原子地加 count 并返回加后的值（新的高水位）。
//
// 预留的号段为 [m-count, m)，Allocator 信任而不校验其原子性。
type Provider interface {
	Name() string
	Acquire(ctx context.Context, count int64) (int64, error)
}

// Counter 原子计数器存储，*xetcd.Client 满足该接口。
type Counter interface {
	Incr(ctx context.Context, key string, delta int64) (int64, error)
}

type redisProvider struct {
	client redis.UniversalClient
	name   string
	key    string
}

// NewRedisProvider 以 INCRBY <prefix>:<name> 预留号段。
func NewRedisProvider(client redis.UniversalClient, prefix, name string) (Provider, error) {
	if client == nil {
		return nil, ErrNilProvider
	}
	if name == "" {
		return nil, ErrEmptyName
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &redisProvider{client: client, name: name, key: prefix + ":" + name}, nil
}

func (p *redisProvider) Name() string { return p.name }

func (p *redisProvider) Acquire(ctx context.Context, count int64) (int64, error) {
	v, err := p.client.IncrBy(ctx, p.key, count).Result()
	if err != nil {
		return 0, fmt.Errorf("xtickid: incrby %s: %w", p.key, err)
	}
	return v, nil
}

type etcdProvider struct {
	counter Counter
	name    string
	key     string
}

// NewEtcdProvider 以 /<prefix>/<name> 上的比较交换计数器预留号段。
func NewEtcdProvider(counter Counter, prefix, name string) (Provider, error) {
	if counter == nil {
		return nil, ErrNilProvider
	}
	if name == "" {
		return nil, ErrEmptyName
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &etcdProvider{counter: counter, name: name, key: "/" + strings.Trim(prefix, "/") + "/" + name}, nil
}

func (p *etcdProvider) Name() string { return p.name }

func (p *etcdProvider) Acquire(ctx context.Context, count int64) (int64, error) {
	v, err := p.counter.Incr(ctx, p.key, count)
	if err != nil {
		return 0, fmt.Errorf("xtickid: incr %s: %w", p.key, err)
	}
	return v, nil
}
