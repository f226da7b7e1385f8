package xid

import "errors"

var (
	// ErrInvalidID ID 不是正数或无法解析
	ErrInvalidID = errors.New("xid: invalid id")

	// ErrInvalidConfig 生成器参数无效，或机器 ID 校验未通过
	ErrInvalidConfig = errors.New("xid: invalid config")

	// ErrOverTimeLimit 时间分量溢出，不可恢复
	ErrOverTimeLimit = errors.New("xid: time component overflow")

	// ErrClockBackwardTimeout 重试等待超过上限
	ErrClockBackwardTimeout = errors.New("xid: clock backward wait timeout")

	ErrNilGenerator = errors.New("xid: nil generator (use NewGenerator to create)")

	ErrNilSource = errors.New("xid: cluster id source is nil")
)
