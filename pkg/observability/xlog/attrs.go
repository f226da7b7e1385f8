package xlog

import (
	"errors"
	"log/slog"
	"time"
)

// 常用属性 key。
const (
	KeyError     = "error"
	KeyStack     = "stack"
	KeyDuration  = "duration"
	KeyComponent = "component"
	KeyNodeID    = "node_id"
	KeyKeys      = "keys"
	KeyState     = "state"
)

var (
	// ErrUnknownLevel 无法识别的日志级别字符串
	ErrUnknownLevel = errors.New("xlog: unknown level")
	// ErrUnknownFormat 无法识别的输出格式
	ErrUnknownFormat = errors.New("xlog: unknown format")
	// ErrEmptyFilename 轮转文件名为空
	ErrEmptyFilename = errors.New("xlog: rotation filename is empty")
)

// Err 错误属性，err 为 nil 时返回空 Attr（slog 会丢弃）。
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 人类可读的耗时属性。
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Component 组件名属性，通常配合 With 使用。
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// NodeID 集群节点 ID 属性。
func NodeID(id int) slog.Attr {
	return slog.Int(KeyNodeID, id)
}

// Keys 锁 key 列表属性。
func Keys(keys []string) slog.Attr {
	return slog.Any(KeyKeys, keys)
}
