package xtickid

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// 计数器后端。
const (
	BackendRedis = "redis"
	BackendEtcd  = "etcd"
)

// Config 号段分配配置。
type Config struct {
	// Backend 计数器后端，redis 或 etcd，默认 redis
	Backend string `json:"backend" yaml:"backend" koanf:"backend"`

	// Prefix 计数器 key 前缀，默认 "tick"
	Prefix string `json:"prefix" yaml:"prefix" koanf:"prefix"`

	// BatchSize 号段大小，默认 1000
	BatchSize int64 `json:"batchSize" yaml:"batchSize" koanf:"batchSize"`

	// MaxWait Generate 等待上限，默认 24h
	MaxWait time.Duration `json:"maxWait" yaml:"maxWait" koanf:"maxWait"`

	// Breaker 非空时为计数器加熔断
	Breaker *BreakerConfig `json:"breaker" yaml:"breaker" koanf:"breaker"`
}

// DefaultConfig 默认配置。
func DefaultConfig() *Config {
	return &Config{
		Backend:   BackendRedis,
		Prefix:    DefaultPrefix,
		BatchSize: DefaultBatchSize,
		MaxWait:   DefaultMaxWait,
	}
}

// Validate 校验配置。
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBatch, c.BatchSize)
	}
	switch c.Backend {
	case BackendRedis, BackendEtcd:
		return nil
	default:
		return fmt.Errorf("xtickid: unknown backend %q", c.Backend)
	}
}

// ProviderFactory 按计数器名称创建 Provider。
type ProviderFactory func(name string) (Provider, error)

// RedisProviders Redis 计数器工厂。
func RedisProviders(client redis.UniversalClient, prefix string) ProviderFactory {
	return func(name string) (Provider, error) {
		return NewRedisProvider(client, prefix, name)
	}
}

// EtcdProviders etcd 计数器工厂。
func EtcdProviders(counter Counter, prefix string) ProviderFactory {
	return func(name string) (Provider, error) {
		return NewEtcdProvider(counter, prefix, name)
	}
}

// Template 按名称创建共享同一后端与默认参数的 Allocator。
type Template struct {
	factory  ProviderFactory
	batch    int64
	breaker  *BreakerConfig
	allocOps []Option
}

// TemplateOption Template 选项。
type TemplateOption func(*Template)

// WithDefaultBatch Create 使用的号段大小。
func WithDefaultBatch(n int64) TemplateOption {
	return func(t *Template) {
		if n > 0 {
			t.batch = n
		}
	}
}

// WithBreaker 为每个 Provider 加熔断。
func WithBreaker(cfg BreakerConfig) TemplateOption {
	return func(t *Template) {
		t.breaker = &cfg
	}
}

// WithAllocatorOptions 透传给每个 Allocator 的选项。
func WithAllocatorOptions(opts ...Option) TemplateOption {
	return func(t *Template) {
		t.allocOps = append(t.allocOps, opts...)
	}
}

// NewTemplate 创建 Template。
func NewTemplate(factory ProviderFactory, opts ...TemplateOption) (*Template, error) {
	if factory == nil {
		return nil, ErrNilProvider
	}
	t := &Template{factory: factory, batch: DefaultBatchSize}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// NewTemplateFromConfig 按 cfg 组装 Template；etcd 后端使用 counter，redis 后端使用 client。
func NewTemplateFromConfig(cfg *Config, client redis.UniversalClient, counter Counter, opts ...TemplateOption) (*Template, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var factory ProviderFactory
	switch cfg.Backend {
	case BackendEtcd:
		if counter == nil {
			return nil, fmt.Errorf("%w: etcd backend needs a counter", ErrNilProvider)
		}
		factory = EtcdProviders(counter, cfg.Prefix)
	default:
		if client == nil {
			return nil, fmt.Errorf("%w: redis backend needs a client", ErrNilProvider)
		}
		factory = RedisProviders(client, cfg.Prefix)
	}

	base := []TemplateOption{WithDefaultBatch(cfg.BatchSize), WithAllocatorOptions(WithMaxWait(cfg.MaxWait))}
	if cfg.Breaker != nil {
		base = append(base, WithBreaker(*cfg.Breaker))
	}
	return NewTemplate(factory, append(base, opts...)...)
}

// Create 以默认号段大小创建 Allocator。
func (t *Template) Create(name string) (*Allocator, error) {
	return t.CreateWithBatch(name, t.batch)
}

// CreateWithBatch 以指定号段大小创建 Allocator。
func (t *Template) CreateWithBatch(name string, batch int64) (*Allocator, error) {
	if batch <= 0 {
		return nil, ErrInvalidBatch
	}
	p, err := t.factory(name)
	if err != nil {
		return nil, err
	}
	if t.breaker != nil {
		p = NewBreakerProvider(p, *t.breaker)
	}
	opts := append([]Option{WithBatch(batch)}, t.allocOps...)
	return New(p, opts...)
}
