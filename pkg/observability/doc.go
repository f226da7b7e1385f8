// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog 扩展，支持动态级别与文件轮转
//
// 指标与追踪直接使用 OpenTelemetry API，由各组件的 WithMeterProvider /
// WithTracerProvider 选项注入。
package observability
