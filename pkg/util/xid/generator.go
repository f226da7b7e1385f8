package xid

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/sonyflake/v2"
)

// Sonyflake v2 默认位布局：39 位时间 + 8 位序列 + 16 位机器
const (
	machineBits  = 16
	sequenceBits = 8
	machineMask  = (1 << machineBits) - 1
	sequenceMask = (1 << sequenceBits) - 1
)

// Components Generator 生成的 ID 的组成部分。
type Components struct {
	ID int64
	// Time 自 sonyflake epoch 起的 10ms 单位数
	Time     int64
	Sequence int64
	Machine  int64
}

// Generator sonyflake ID 生成器，并发安全。
type Generator struct {
	maxWait       time.Duration
	retryInterval time.Duration
	clock         clockwork.Clock
	// next 默认为 sonyflake.NextID，测试中替换
	next func() (int64, error)
}

// NewGenerator 创建生成器。使用 WithClusterID 时会等待节点 ID。
func NewGenerator(opts ...Option) (*Generator, error) {
	o := &options{
		maxWaitDuration:  DefaultMaxWaitDuration,
		retryInterval:    DefaultRetryInterval,
		clusterIDTimeout: DefaultClusterIDTimeout,
		clock:            clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.maxWaitDuration < 0 || o.retryInterval < 0 {
		return nil, fmt.Errorf("%w: negative retry settings", ErrInvalidConfig)
	}

	var settings sonyflake.Settings
	if fn := o.machineID; fn != nil {
		settings.MachineID = func() (int, error) {
			id, err := fn()
			return int(id), err
		}
	}
	if check := o.checkMachineID; check != nil {
		settings.CheckMachineID = func(id int) bool {
			return id >= 0 && id <= machineMask && check(uint16(id))
		}
	}
	sf, err := sonyflake.New(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &Generator{
		maxWait:       o.maxWaitDuration,
		retryInterval: o.retryInterval,
		clock:         o.clock,
		next:          sf.NextID,
	}, nil
}

// New 生成一个 ID，不重试。
func (g *Generator) New() (int64, error) {
	if g == nil || g.next == nil {
		return 0, ErrNilGenerator
	}
	id, err := g.next()
	if err != nil {
		return 0, wrapGenerateError(err)
	}
	return id, nil
}

// NewWithRetry 失败后按 RetryInterval 重试，最多等待 MaxWaitDuration。
// 时间溢出不重试。
func (g *Generator) NewWithRetry(ctx context.Context) (int64, error) {
	if g == nil || g.next == nil {
		return 0, ErrNilGenerator
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	id, err := g.next()
	if err == nil {
		return id, nil
	}

	deadline := g.clock.Now().Add(g.maxWait)
	for {
		if errors.Is(err, sonyflake.ErrOverTimeLimit) {
			return 0, wrapGenerateError(err)
		}
		remaining := deadline.Sub(g.clock.Now())
		if remaining <= 0 {
			return 0, fmt.Errorf("%w: %w", ErrClockBackwardTimeout, err)
		}
		timer := g.clock.NewTimer(min(g.retryInterval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.Chan():
		}
		if id, err = g.next(); err == nil {
			return id, nil
		}
	}
}

// NewString base36 格式的 New。
func (g *Generator) NewString() (string, error) {
	id, err := g.New()
	if err != nil {
		return "", err
	}
	return Format(id), nil
}

func wrapGenerateError(err error) error {
	if errors.Is(err, sonyflake.ErrOverTimeLimit) {
		return fmt.Errorf("%w: %w", ErrOverTimeLimit, err)
	}
	return err
}

// Format base36 编码。
func Format(id int64) string {
	return strconv.FormatInt(id, 36)
}

// Parse 解析 Format 的输出，大小写不敏感。
func Parse(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 36, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidID, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: value must be positive, got %d", ErrInvalidID, id)
	}
	return id, nil
}

// Decompose 按 sonyflake 默认布局拆分 ID。
func Decompose(id int64) (Components, error) {
	if id <= 0 {
		return Components{}, fmt.Errorf("%w: value must be positive, got %d", ErrInvalidID, id)
	}
	return Components{
		ID:       id,
		Machine:  id & machineMask,
		Sequence: (id >> machineBits) & sequenceMask,
		Time:     id >> (machineBits + sequenceBits),
	}, nil
}
