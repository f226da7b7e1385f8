// Package xclusterid 为集群中每个存活进程分配一个小范围内唯一的整数 ID。
//
// ID 取值范围是 [0, 2^BitNum)。Allocator 在后台维护一个三态状态机：
//
//	NONE        未持有 ID。列出所有节点，优先取最小的未使用 ID，
//	            ID 用尽时抢占未被锁定且时间戳最旧的节点。
//	LOCKED      持有 ID，按 HeartbeatInterval 刷新节点时间戳。
//	RECOVERING  持有的租约丢失（例如与 etcd 断连），尝试重新获取同一 ID，
//	            失败则回到 NONE 重新分配。
//
// 租约丢失到被其他进程抢占之间，Get 仍返回旧 ID。这是已知的弱一致窗口，
// 对重复 ID 敏感的调用方应结合 Status 判断。
//
// 存储通过 Store 抽象，NewEtcdStore 基于 etcd concurrency 会话与互斥锁实现：
//
//	<path>/<id>              节点数据，值为最近一次心跳的毫秒时间戳
//	<path>/<id>/lock/<lease> 互斥锁 key，存在即表示该 ID 已被锁定
package xclusterid
