// Package xetcd etcd v3 客户端封装。
//
// # 客户端
//
// [NewClient] 按 [Config] 创建客户端（gRPC keepalive、认证、可选启动健康检查）。
// [Client.RawClient] 返回底层 *clientv3.Client，供 concurrency 会话/互斥锁使用。
//
// # KV
//
// [Client.Get]/[Client.Put]/[Client.Delete]/[Client.List] 为常用 KV 操作；
// [Client.Incr] 以 ModRevision 比较交换实现原子计数器，冲突时自动重试，
// 等价于 ZooKeeper 的 DistributedAtomicLong。
package xetcd
