//go:build integration || e2e

// Package testenv 集成测试依赖的 Redis/etcd 环境。
//
// 设置 XCLUSTER_REDIS_ADDR / XCLUSTER_ETCD_ENDPOINTS 时直接连接现有服务，
// 否则通过 testcontainers 启动容器；Docker 不可用时跳过测试。
package testenv

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	redisImage = "redis:7-alpine"
	etcdImage  = "quay.io/coreos/etcd:v3.6.8"
)

// Redis 返回可用的 Redis 客户端，测试结束时关闭。
func Redis(t *testing.T) redis.UniversalClient {
	t.Helper()
	addr := os.Getenv("XCLUSTER_REDIS_ADDR")
	if addr == "" {
		addr = startContainer(t, testcontainers.ContainerRequest{
			Image:        redisImage,
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		}, "6379/tcp")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis %s unavailable: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// EtcdEndpoints 返回可用的 etcd 端点。
func EtcdEndpoints(t *testing.T) []string {
	t.Helper()
	if eps := os.Getenv("XCLUSTER_ETCD_ENDPOINTS"); eps != "" {
		return strings.Split(eps, ",")
	}
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        etcdImage,
		ExposedPorts: []string{"2379/tcp"},
		Cmd: []string{
			"etcd",
			"--listen-client-urls=http://0.0.0.0:2379",
			"--advertise-client-urls=http://0.0.0.0:2379",
		},
		WaitingFor: wait.ForListeningPort("2379/tcp"),
	}, "2379/tcp")
	return []string{addr}
}

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) string {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("%s container not available: %v", req.Image, err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("%s host: %v", req.Image, err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("%s port: %v", req.Image, err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}
