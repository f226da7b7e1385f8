// Package storage 提供数据存储相关的子包。
//
// 子包列表：
//   - xetcd: etcd 客户端封装，KV 读写、前缀列举与 CAS 计数器
package storage
