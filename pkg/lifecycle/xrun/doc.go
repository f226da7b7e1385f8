// Package xrun 进程内后台任务的生命周期管理。
//
// [Group] 基于 errgroup：任一任务返回错误即取消其余任务，[Group.Wait] 返回首个错误
// 或取消原因。[Run] 额外监听退出信号，收到信号时以 [SignalError] 作为取消原因。
//
//	err := xrun.Run(ctx,
//		allocator.Run,
//		xrun.Ticker(clock, time.Second, false, flush),
//	)
//	if errors.Is(err, xrun.ErrSignal) {
//		// 正常退出
//	}
package xrun
