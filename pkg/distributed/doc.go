// Package distributed 提供分布式协调相关的子包。
//
// 子包列表：
//   - xclusterid: 基于 etcd 租约的节点 ID 分配，带心跳与失联恢复
//   - xdlock: Redis 多 key 分布式锁，释放通知经 pub/sub 唤醒等待者
//   - xtickid: 双缓冲号段分配，计数器后端为 Redis 或 etcd
//
// 设计原则：
//   - 后台循环只记录日志并重试，只有调用方显式等待的操作返回超时
//   - 时钟统一通过 clockwork 注入，状态机可以用假时钟测试
//   - 内置 OpenTelemetry 指标
package distributed
