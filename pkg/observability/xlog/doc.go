// Package xlog 基于 log/slog 的结构化日志封装，供 xcluster 各组件统一使用。
//
// # 创建 Logger
//
// 使用 Builder（first-error-wins：第一个配置错误之后的 Set 调用被忽略）：
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("debug").
//		SetFormat("json").
//		SetRotation("/var/log/xcluster/app.log").
//		Build()
//	if err != nil {
//		return err
//	}
//	defer cleanup()
//
// 轮转由 lumberjack 完成，[WithMaxSize]、[WithMaxBackups]、[WithMaxAge]、
// [WithCompress] 调整轮转参数。
//
// # 全局 Logger
//
// [Default] 惰性创建（stderr，Info，text），[SetDefault] 替换。组件未通过
// WithLogger 注入日志时使用 [Default]。测试中可用 [Discard] 关闭输出。
//
// # 动态级别
//
// Build 返回 [LoggerWithLevel]，[Leveler.SetLevel] 运行时生效，
// 派生 logger（With/WithGroup）共享同一个 LevelVar。
package xlog
