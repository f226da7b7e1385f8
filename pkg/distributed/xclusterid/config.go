package xclusterid

import (
	"fmt"
	"strings"
	"time"
)

// 默认配置值。
const (
	DefaultBitNum = 8
	DefaultPath   = "/clusterid"
	// DefaultAcquireTimeout 单次获取 ID 以及单次存储调用的等待上限
	DefaultAcquireTimeout    = time.Second
	DefaultRetryInterval     = time.Second
	DefaultHeartbeatInterval = 20 * time.Second
	DefaultRecoverInterval   = 5 * time.Second
	// DefaultSessionTTL etcd 会话租约秒数，进程失联后锁在该时间后释放
	DefaultSessionTTL = 10

	maxBitNum = 16
)

// Config Allocator 与 etcd 存储的配置。
type Config struct {
	// BitNum ID 位宽，取值 [1, 16]，默认 8
	BitNum int `json:"bitNum" yaml:"bitNum" koanf:"bitNum"`

	// Path 节点根路径，默认 /clusterid
	Path string `json:"path" yaml:"path" koanf:"path"`

	// SessionTTL etcd 会话 TTL（秒）
	SessionTTL int `json:"sessionTTL" yaml:"sessionTTL" koanf:"sessionTTL"`

	// AcquireTimeout 获取 ID 以及心跳、列举等单次存储调用的超时
	AcquireTimeout    time.Duration `json:"acquireTimeout" yaml:"acquireTimeout" koanf:"acquireTimeout"`
	RetryInterval     time.Duration `json:"retryInterval" yaml:"retryInterval" koanf:"retryInterval"`
	HeartbeatInterval time.Duration `json:"heartbeatInterval" yaml:"heartbeatInterval" koanf:"heartbeatInterval"`
	RecoverInterval   time.Duration `json:"recoverInterval" yaml:"recoverInterval" koanf:"recoverInterval"`
}

// DefaultConfig 返回全部字段取默认值的配置。
func DefaultConfig() *Config {
	return &Config{
		BitNum:            DefaultBitNum,
		Path:              DefaultPath,
		SessionTTL:        DefaultSessionTTL,
		AcquireTimeout:    DefaultAcquireTimeout,
		RetryInterval:     DefaultRetryInterval,
		HeartbeatInterval: DefaultHeartbeatInterval,
		RecoverInterval:   DefaultRecoverInterval,
	}
}

// Validate 零值字段视为默认值，只校验显式给出的非法值。
func (c *Config) Validate() error {
	if c.BitNum != 0 && (c.BitNum < 1 || c.BitNum > maxBitNum) {
		return fmt.Errorf("%w: %d", ErrInvalidBitNum, c.BitNum)
	}
	if c.Path != "" && !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("xclusterid: path %q must start with '/'", c.Path)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("xclusterid: session ttl %d must not be negative", c.SessionTTL)
	}
	return nil
}

func (c *Config) withDefaults() *Config {
	cfg := *c
	if cfg.BitNum == 0 {
		cfg.BitNum = DefaultBitNum
	}
	cfg.Path = strings.TrimRight(cfg.Path, "/")
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.RecoverInterval <= 0 {
		cfg.RecoverInterval = DefaultRecoverInterval
	}
	return &cfg
}
