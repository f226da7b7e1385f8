// Package xdlock 基于 Redis 的多 key 分布式互斥锁。
//
// 一次 TryLock 通过 Lua 脚本原子地获取全部 key：只要有一个 key 被其他节点持有，
// 脚本不做任何修改并返回冲突的 key。锁的值是持有节点的集群 ID（见 IDSource），
// 因此同一节点内的并发由本地的持有集合串行化，跨节点由 Redis 串行化。
//
// 持有期间后台心跳按 FlushInterval 通过 pipeline 把所有已持有 key 的过期时间
// 续到 TTL；进程异常退出时锁在 TTL 后自然失效。
//
// 释放时向 Channel 发布逗号分隔的 key 列表，Monitor 收到后唤醒在这些 key 上
// 等待的 Lock 调用，本进程的等待者在发布前即被唤醒。唤醒是粗粒度的，
// 被唤醒方总是重新尝试加锁。
//
// 基本用法：
//
//	m, err := xdlock.NewMutex(rdb, allocator, xdlock.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer m.Close(ctx)
//
//	err = m.RunInLock(ctx, []string{"order:1", "stock:9"}, func(ctx context.Context) error {
//	    return doWork(ctx)
//	})
//	if errors.Is(err, xdlock.ErrLockTimeout) {
//	    // 3s 内没有拿到锁
//	}
package xdlock
