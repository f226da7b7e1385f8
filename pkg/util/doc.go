// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xid: 以节点 ID 为机器号的 sonyflake 生成器，以及时间/节点/序列打包的紧凑 ID
package util
