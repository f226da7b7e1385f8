// Package xid 基于集群 ID 的唯一 ID 生成。
//
// 两种格式，机器位都来自 xclusterid 分配的节点 ID，因此同一集群内不会冲突：
//
// Generator 是 sony/sonyflake 的薄封装（39 位时间，10ms 精度；8 位序列；16 位机器），
// WithClusterID 把节点 ID 作为机器 ID，并校验其小于 2^BitNum：
//
//	gen, err := xid.NewGenerator(xid.WithClusterID(allocator))
//	id, err := gen.NewWithRetry(ctx)
//	s := xid.Format(id) // base36
//
// Packer 是毫秒精度的紧凑布局，位宽随 BitNum 与序列位数变化：
//
//	(ms - 1400000000000) << (seqBits + nodeBits) | node << seqBits | seq
//
// 同一毫秒序列耗尽时等待下一毫秒；时钟回拨时沿用上一次的毫秒，保证单调。
package xid
