package xdlock

import (
	"fmt"
	"time"
)

// 默认配置值。
const (
	DefaultPrefix        = "dlock:"
	DefaultChannel       = "#dlock:sync"
	DefaultTTL           = 5 * time.Second
	DefaultFlushInterval = time.Second
	// DefaultRunTimeout RunInLock 的加锁等待时间
	DefaultRunTimeout = 3000 * time.Millisecond
)

// Config Mutex 配置。
type Config struct {
	// Prefix 锁 key 前缀，为空时使用 DefaultPrefix
	Prefix string `json:"prefix" yaml:"prefix" koanf:"prefix"`

	// Channel 释放通知的 pub/sub 频道
	Channel string `json:"channel" yaml:"channel" koanf:"channel"`

	// TTL 单个锁 key 的过期时间，心跳续期到该值
	TTL time.Duration `json:"ttl" yaml:"ttl" koanf:"ttl"`

	// FlushInterval 心跳间隔，必须小于 TTL
	FlushInterval time.Duration `json:"flushInterval" yaml:"flushInterval" koanf:"flushInterval"`

	// RunTimeout RunInLock 默认的加锁等待时间
	RunTimeout time.Duration `json:"runTimeout" yaml:"runTimeout" koanf:"runTimeout"`
}

// DefaultConfig 返回全部字段取默认值的配置。
func DefaultConfig() *Config {
	return &Config{
		Prefix:        DefaultPrefix,
		Channel:       DefaultChannel,
		TTL:           DefaultTTL,
		FlushInterval: DefaultFlushInterval,
		RunTimeout:    DefaultRunTimeout,
	}
}

// Validate 校验时间参数，零值字段会在使用前被默认值替换。
func (c *Config) Validate() error {
	cfg := c.withDefaults()
	if cfg.FlushInterval >= cfg.TTL {
		return fmt.Errorf("xdlock: flush interval %s must be less than ttl %s", cfg.FlushInterval, cfg.TTL)
	}
	if cfg.TTL < time.Millisecond {
		return fmt.Errorf("xdlock: ttl %s too small", cfg.TTL)
	}
	return nil
}

func (c *Config) withDefaults() *Config {
	cfg := *c
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	return &cfg
}
