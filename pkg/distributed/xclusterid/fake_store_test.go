package xclusterid

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var errStoreDown = errors.New("store down")

type fakeLease struct {
	store *fakeStore
	id    int
	done  chan struct{}
	once  sync.Once
}

func (l *fakeLease) Done() <-chan struct{} { return l.done }

func (l *fakeLease) Release(context.Context) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if l.store.holders[l.id] == l {
		delete(l.store.holders, l.id)
	}
	l.once.Do(func() { close(l.done) })
	return nil
}

// lose 模拟会话过期：租约失效且锁被存储端删除。
func (l *fakeLease) lose() {
	l.store.mu.Lock()
	if l.store.holders[l.id] == l {
		delete(l.store.holders, l.id)
	}
	l.store.mu.Unlock()
	l.once.Do(func() { close(l.done) })
}

type fakeStore struct {
	mu        sync.Mutex
	ts        map[int]int64
	holders   map[int]*fakeLease
	busy      map[int]bool
	listErr   error
	unhealthy bool
	touches   []int
	health    int
	block     chan struct{} // 非 nil 时 Acquire 等待其关闭
	stall     bool          // Healthy 与 Touch 一直等到 ctx 结束，模拟 etcd 不可达
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		ts:      make(map[int]int64),
		holders: make(map[int]*fakeLease),
		busy:    make(map[int]bool),
	}
}

func (s *fakeStore) List(context.Context) ([]Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	seen := make(map[int]bool)
	var nodes []Node
	for id, ts := range s.ts {
		seen[id] = true
		nodes = append(nodes, Node{ID: id, Timestamp: ts, Locked: s.holders[id] != nil || s.busy[id]})
	}
	for id := range s.holders {
		if !seen[id] {
			nodes = append(nodes, Node{ID: id, Locked: true})
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

func (s *fakeStore) Acquire(ctx context.Context, id int) (Lease, error) {
	s.mu.Lock()
	block := s.block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holders[id] != nil || s.busy[id] {
		return nil, ErrLeaseBusy
	}
	l := &fakeLease{store: s, id: id, done: make(chan struct{})}
	s.holders[id] = l
	return l, nil
}

func (s *fakeStore) Touch(ctx context.Context, id int, ts int64) error {
	if s.stalled() {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ts[id] = ts
	s.touches = append(s.touches, id)
	return nil
}

func (s *fakeStore) Healthy(ctx context.Context) bool {
	s.mu.Lock()
	s.health++
	stall, unhealthy := s.stall, s.unhealthy
	s.mu.Unlock()
	if stall {
		<-ctx.Done()
		return false
	}
	return !unhealthy
}

func (s *fakeStore) stalled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stall
}

// grab 以其他进程身份持有 id。
func (s *fakeStore) grab(id int, ts int64) *fakeLease {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := &fakeLease{store: s, id: id, done: make(chan struct{})}
	s.holders[id] = l
	s.ts[id] = ts
	return l
}

func (s *fakeStore) holder(id int) *fakeLease {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holders[id]
}

func (s *fakeStore) touchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.touches)
}

func (s *fakeStore) healthCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

func (s *fakeStore) set(fn func(s *fakeStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}
