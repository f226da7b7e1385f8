package xetcd

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/omeyang/xcluster/pkg/resilience/xretry"
)

// Client etcd 客户端封装，并发安全。
type Client struct {
	client    etcdClient
	rawClient *clientv3.Client
	config    *Config
	opts      *options
	closed    atomic.Bool
}

// NewClient 创建 etcd 客户端。
//
// keepalive 只通过 DialOptions 设置，避免与 clientv3.Config 同名字段重复。
func NewClient(config *Config, opts ...Option) (*Client, error) {
	if config == nil {
		return nil, ErrNilConfig
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	cfg := config.withDefaults()

	clientConfig := clientv3.Config{
		Endpoints:        cfg.Endpoints,
		DialTimeout:      cfg.DialTimeout,
		Username:         cfg.Username,
		Password:         cfg.Password,
		RejectOldCluster: cfg.RejectOldCluster,
		TLS:              o.tlsConfig,
		DialOptions: []grpc.DialOption{
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                cfg.DialKeepAliveTime,
				Timeout:             cfg.DialKeepAliveTimeout,
				PermitWithoutStream: true,
			}),
		},
	}

	rawClient, err := clientv3.New(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("xetcd: create client: %w", err)
	}

	c := &Client{client: rawClient, rawClient: rawClient, config: cfg, opts: o}
	if o.healthCheck {
		ctx, cancel := context.WithTimeout(o.ctx, o.healthTimeout)
		defer cancel()
		if !c.Healthy(ctx) {
			return nil, errors.Join(ErrUnhealthy, rawClient.Close())
		}
	}
	return c, nil
}

// newClientWith 以自定义底层实现创建 Client（测试用）。
func newClientWith(cli etcdClient, opts ...Option) *Client {
	return &Client{client: cli, config: DefaultConfig(), opts: applyOptions(opts)}
}

// RawClient 返回原生 etcd 客户端，用于 concurrency 会话等高级操作。
func (c *Client) RawClient() *clientv3.Client {
	return c.rawClient
}

// Healthy 以一次 count-only 读探测集群是否可用。
func (c *Client) Healthy(ctx context.Context) bool {
	if c.isClosed() {
		return false
	}
	_, err := c.client.Get(ctx, c.opts.healthCheckKey, clientv3.WithCountOnly())
	return err == nil
}

// Close 关闭连接，重复调用返回 nil。
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Client) isClosed() bool {
	return c.closed.Load()
}

func (c *Client) check(key string) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}

func (c *Client) casRetryer() *xretry.Retryer {
	return xretry.NewRetryer(
		xretry.WithRetryPolicy(xretry.NewFixedRetry(c.opts.casAttempts)),
		xretry.WithBackoffPolicy(xretry.NewExponentialBackoff(
			xretry.WithInitialDelay(c.opts.casBackoff),
			xretry.WithMaxDelay(c.opts.casBackoff*16),
		)),
	)
}
