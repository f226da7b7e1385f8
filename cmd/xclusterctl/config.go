package main

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xcluster/pkg/config/xconf"
	"github.com/omeyang/xcluster/pkg/distributed/xclusterid"
	"github.com/omeyang/xcluster/pkg/distributed/xdlock"
	"github.com/omeyang/xcluster/pkg/distributed/xtickid"
	"github.com/omeyang/xcluster/pkg/observability/xlog"
	"github.com/omeyang/xcluster/pkg/storage/xetcd"
)

// appConfig 配置文件结构，各段对应一个组件。
type appConfig struct {
	Log       logConfig          `json:"log" yaml:"log" koanf:"log"`
	Redis     redisConfig        `json:"redis" yaml:"redis" koanf:"redis"`
	Etcd      *xetcd.Config      `json:"etcd" yaml:"etcd" koanf:"etcd"`
	ClusterID *xclusterid.Config `json:"clusterid" yaml:"clusterid" koanf:"clusterid"`
	DLock     *xdlock.Config     `json:"dlock" yaml:"dlock" koanf:"dlock"`
	Tick      *xtickid.Config    `json:"tick" yaml:"tick" koanf:"tick"`
}

type logConfig struct {
	// Level debug/info/warn/error，修改后 serve 会热加载
	Level  string `json:"level" yaml:"level" koanf:"level"`
	Format string `json:"format" yaml:"format" koanf:"format"`

	// File 非空时写入文件并按大小轮转
	File       string `json:"file" yaml:"file" koanf:"file"`
	MaxSizeMB  int    `json:"maxSizeMB" yaml:"maxSizeMB" koanf:"maxSizeMB"`
	MaxBackups int    `json:"maxBackups" yaml:"maxBackups" koanf:"maxBackups"`
}

type redisConfig struct {
	// Addrs 多个地址时按集群模式连接
	Addrs    []string `json:"addrs" yaml:"addrs" koanf:"addrs"`
	Username string   `json:"username" yaml:"username" koanf:"username"`
	Password string   `json:"password" yaml:"password" koanf:"password"`
	DB       int      `json:"db" yaml:"db" koanf:"db"`
}

func defaultAppConfig() *appConfig {
	etcd := xetcd.DefaultConfig()
	etcd.Endpoints = []string{"127.0.0.1:2379"}
	return &appConfig{
		Log:       logConfig{Level: "info", Format: "text"},
		Redis:     redisConfig{Addrs: []string{"127.0.0.1:6379"}},
		Etcd:      etcd,
		ClusterID: xclusterid.DefaultConfig(),
		DLock:     xdlock.DefaultConfig(),
		Tick:      xtickid.DefaultConfig(),
	}
}

// loadConfig path 为空时返回默认配置，文件中缺省的段保留默认值。
func loadConfig(path string) (*appConfig, xconf.Config, error) {
	cfg := defaultAppConfig()
	if path == "" {
		return cfg, nil, nil
	}
	src, err := xconf.New(path)
	if err != nil {
		return nil, nil, err
	}
	if err := src.Unmarshal("", cfg); err != nil {
		return nil, nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}
	return cfg, src, nil
}

func (c *appConfig) validate() error {
	var errs []error
	if len(c.Redis.Addrs) == 0 {
		errs = append(errs, errors.New("redis.addrs is empty"))
	}
	if c.Etcd == nil {
		errs = append(errs, errors.New("etcd section is missing"))
	} else if err := c.Etcd.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.ClusterID != nil {
		errs = append(errs, c.ClusterID.Validate())
	}
	if c.DLock != nil {
		errs = append(errs, c.DLock.Validate())
	}
	if c.Tick != nil {
		errs = append(errs, c.Tick.Validate())
	}
	if err := errors.Join(errs...); err != nil {
		return &usageError{msg: fmt.Sprintf("invalid config: %v", err)}
	}
	return nil
}

// buildLogger levelOverride 非空时覆盖配置文件中的级别。
func buildLogger(c logConfig, levelOverride string) (xlog.LoggerWithLevel, func() error, error) {
	level := c.Level
	if levelOverride != "" {
		level = levelOverride
	}
	b := xlog.New().SetFormat(c.Format)
	if level != "" {
		b = b.SetLevelString(level)
	}
	if c.File != "" {
		var opts []xlog.RotateOption
		if c.MaxSizeMB > 0 {
			opts = append(opts, xlog.WithMaxSize(c.MaxSizeMB))
		}
		if c.MaxBackups > 0 {
			opts = append(opts, xlog.WithMaxBackups(c.MaxBackups))
		}
		b = b.SetRotation(c.File, opts...)
	}
	return b.Build()
}

func newRedisClient(c redisConfig) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    c.Addrs,
		Username: c.Username,
		Password: c.Password,
		DB:       c.DB,
	})
}
