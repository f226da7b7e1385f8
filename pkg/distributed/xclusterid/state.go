package xclusterid

import "sort"

// State 本进程对 ID 的持有状态。
type State int32

const (
	StateNone State = iota
	StateLocked
	StateRecovering
)

// String 返回状态名，用于日志与指标属性。
func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateLocked:
		return "LOCKED"
	case StateRecovering:
		return "RECOVERING"
	default:
		return "UNKNOWN"
	}
}

// Node 存储中的一个候选 ID。
type Node struct {
	ID int `json:"id"`
	// Timestamp 最近一次心跳，毫秒
	Timestamp int64 `json:"timestamp"`
	// Locked 当前有进程持有该 ID 的租约
	Locked bool `json:"locked"`
}

// pickID 选择下一个要尝试的 ID。
// 范围内还有未出现的 ID 时取最小者；否则在未锁定的节点中取时间戳最旧的。
func pickID(nodes []Node, bitNum int) (int, error) {
	maxID := 1 << bitNum
	used := make(map[int]struct{}, len(nodes))
	for _, n := range nodes {
		if n.ID >= 0 && n.ID < maxID {
			used[n.ID] = struct{}{}
		}
	}
	if len(used) < maxID {
		for id := range maxID {
			if _, ok := used[id]; !ok {
				return id, nil
			}
		}
	}

	candidates := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if !n.Locked && n.ID >= 0 && n.ID < maxID {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return -1, ErrExhausted
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Timestamp != candidates[j].Timestamp {
			return candidates[i].Timestamp < candidates[j].Timestamp
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0].ID, nil
}
