// Package xtickid 批量号段分配的单调序列生成器。
//
// 全局计数器（Redis INCRBY 或 etcd 比较交换）每次预留 batch 个号，
// 本地以双缓冲号段提供服务：当前号段耗尽时切换到预取的下一个号段，
// 同时在后台补充，使 [Allocator.Generate] 几乎总在内存中完成。
//
// # 保证
//
//   - 同一 Allocator 顺序调用 Generate 返回严格递增、不重复的值
//   - 多个进程共享同一计数器时值全局唯一（不保证跨进程有序）
//   - 进程重启会跳过未用完的号段
//
// # 错误
//
// 补充失败时后台按指数退避重试。本地号段用尽期间 Generate 立即返回
// [ProviderError]（匹配 [ErrProvider]），不会等满 MaxWait；
// 只有补充仍在进行且未失败时才等待并可能返回 [ErrTimeout]。
//
// # 用法
//
//	tpl, _ := xtickid.NewTemplate(xtickid.RedisProviders(rdb, "tick"))
//	orders, _ := tpl.Create("order")
//	defer orders.Close()
//	id, err := orders.GenerateTimeout(ctx, 100*time.Millisecond)
package xtickid
