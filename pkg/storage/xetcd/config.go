package xetcd

import (
	"fmt"
	"strings"
	"time"
)

// Config etcd 连接配置。
type Config struct {
	Endpoints []string `json:"endpoints" yaml:"endpoints" koanf:"endpoints"`

	Username string `json:"username" yaml:"username" koanf:"username"`
	Password string `json:"password" yaml:"password" koanf:"password"`

	// DialTimeout 建连超时，默认 5s
	DialTimeout time.Duration `json:"dialTimeout" yaml:"dialTimeout" koanf:"dialTimeout"`

	// DialKeepAliveTime keepalive 探测间隔，默认 10s
	DialKeepAliveTime time.Duration `json:"dialKeepAliveTime" yaml:"dialKeepAliveTime" koanf:"dialKeepAliveTime"`

	// DialKeepAliveTimeout keepalive 响应超时，默认 3s
	DialKeepAliveTimeout time.Duration `json:"dialKeepAliveTimeout" yaml:"dialKeepAliveTimeout" koanf:"dialKeepAliveTimeout"`

	// RejectOldCluster 拒绝连接过旧版本集群
	RejectOldCluster bool `json:"rejectOldCluster" yaml:"rejectOldCluster" koanf:"rejectOldCluster"`
}

const (
	defaultDialTimeout          = 5 * time.Second
	defaultDialKeepAliveTime    = 10 * time.Second
	defaultDialKeepAliveTimeout = 3 * time.Second
)

// DefaultConfig 默认配置（不含 Endpoints）。
func DefaultConfig() *Config {
	return &Config{
		DialTimeout:          defaultDialTimeout,
		DialKeepAliveTime:    defaultDialKeepAliveTime,
		DialKeepAliveTimeout: defaultDialKeepAliveTimeout,
		RejectOldCluster:     true,
	}
}

// Validate 校验 endpoints。
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return ErrNoEndpoints
	}
	for i, ep := range c.Endpoints {
		if ep == "" || !strings.Contains(ep, ":") {
			return fmt.Errorf("%w: endpoint[%d]=%q", ErrInvalidEndpoint, i, ep)
		}
	}
	return nil
}

func (c *Config) withDefaults() *Config {
	cfg := *c
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.DialKeepAliveTime <= 0 {
		cfg.DialKeepAliveTime = defaultDialKeepAliveTime
	}
	if cfg.DialKeepAliveTimeout <= 0 {
		cfg.DialKeepAliveTimeout = defaultDialKeepAliveTimeout
	}
	return &cfg
}
