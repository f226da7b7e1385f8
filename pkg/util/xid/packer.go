package xid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// PackerEpoch Packer 的时间基准（毫秒），2014-05-13
	PackerEpoch int64 = 1400000000000

	// DefaultSequenceBits Packer 每毫秒的序列位数
	DefaultSequenceBits = 12

	// packerTimeBits 时间分量至少保留的位数（约 69 年）
	packerTimeBits = 41
)

// Packer 毫秒精度的紧凑 ID，并发安全。
type Packer struct {
	src     ClusterIDSource
	seqBits int
	clock   clockwork.Clock

	mu     sync.Mutex
	lastMs int64
	seq    int64
}

// PackerOption Packer 选项。
type PackerOption func(*Packer)

// WithPackerClock 注入时钟。
func WithPackerClock(c clockwork.Clock) PackerOption {
	return func(p *Packer) {
		if c != nil {
			p.clock = c
		}
	}
}

// NewPacker seqBits 为 0 时使用 DefaultSequenceBits。
// seqBits 与节点位宽之和不能超过 22，保证时间分量至少 41 位。
func NewPacker(src ClusterIDSource, seqBits int, opts ...PackerOption) (*Packer, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	if seqBits == 0 {
		seqBits = DefaultSequenceBits
	}
	if seqBits < 0 || seqBits+src.BitNum() > 63-packerTimeBits {
		return nil, fmt.Errorf("%w: sequence bits %d with node bits %d", ErrInvalidConfig, seqBits, src.BitNum())
	}
	p := &Packer{src: src, seqBits: seqBits, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Next 生成下一个 ID，节点 ID 未就绪时阻塞。
func (p *Packer) Next(ctx context.Context) (int64, error) {
	node, err := p.src.Get(ctx)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	maxSeq := int64(1) << p.seqBits
	now := p.nowMs()
	for now <= p.lastMs && p.seq >= maxSeq {
		// 本毫秒序列耗尽
		if err := p.sleep(ctx); err != nil {
			return 0, err
		}
		now = p.nowMs()
	}
	if now > p.lastMs {
		p.lastMs = now
		p.seq = 0
	}
	seq := p.seq
	p.seq++

	nodeBits := p.src.BitNum()
	return (p.lastMs-PackerEpoch)<<(p.seqBits+nodeBits) | int64(node)<<p.seqBits | seq, nil
}

// Unpack 拆出毫秒时间戳、节点 ID 与序列号。
func (p *Packer) Unpack(id int64) (ms int64, node int, seq int64) {
	nodeBits := p.src.BitNum()
	seq = id & (int64(1)<<p.seqBits - 1)
	node = int(id >> p.seqBits & (int64(1)<<nodeBits - 1))
	ms = id>>(p.seqBits+nodeBits) + PackerEpoch
	return ms, node, seq
}

func (p *Packer) nowMs() int64 {
	return p.clock.Now().UnixMilli()
}

func (p *Packer) sleep(ctx context.Context) error {
	timer := p.clock.NewTimer(time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
