package xclusterid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/omeyang/xcluster/pkg/observability/xlog"
	"github.com/omeyang/xcluster/pkg/storage/xetcd"
)

// revokeTimeout 获取失败后撤销租约的等待上限。
const revokeTimeout = time.Second

// EtcdStore 基于 etcd 的 Store。
type EtcdStore struct {
	client     *xetcd.Client
	path       string
	sessionTTL int
	logger     xlog.Logger
}

var _ Store = (*EtcdStore)(nil)

// StoreOption EtcdStore 选项。
type StoreOption func(*EtcdStore)

// WithSessionTTL etcd 会话 TTL（秒），默认 10。
func WithSessionTTL(seconds int) StoreOption {
	return func(s *EtcdStore) {
		if seconds > 0 {
			s.sessionTTL = seconds
		}
	}
}

// WithStoreLogger 设置日志记录器，默认 xlog.Default()。
func WithStoreLogger(l xlog.Logger) StoreOption {
	return func(s *EtcdStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewEtcdStore path 为空时使用 DefaultPath。
func NewEtcdStore(client *xetcd.Client, path string, opts ...StoreOption) (*EtcdStore, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	path = strings.TrimRight(path, "/")
	if path == "" {
		path = DefaultPath
	}
	s := &EtcdStore{
		client:     client,
		path:       path,
		sessionTTL: DefaultSessionTTL,
		logger:     xlog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = s.logger.With(xlog.Component("xclusterid.etcd"), slog.String("path", path))
	return s, nil
}

// NewEtcdAllocator 用 cfg 中的 Path 与 SessionTTL 创建 EtcdStore 并启动 Allocator。
func NewEtcdAllocator(client *xetcd.Client, cfg *Config, opts ...Option) (*Allocator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	full := cfg.withDefaults()
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	storeOpts := []StoreOption{WithSessionTTL(full.SessionTTL)}
	if o.logger != nil {
		storeOpts = append(storeOpts, WithStoreLogger(o.logger))
	}
	store, err := NewEtcdStore(client, full.Path, storeOpts...)
	if err != nil {
		return nil, err
	}
	return New(store, full, opts...)
}

// List 返回 path 下登记的全部节点，按 ID 升序。
func (s *EtcdStore) List(ctx context.Context) ([]Node, error) {
	kvs, err := s.client.List(ctx, s.path+"/")
	if err != nil {
		return nil, fmt.Errorf("xclusterid: list %s: %w", s.path, err)
	}
	return parseNodes(ctx, s.logger, s.path+"/", kvs), nil
}

// Acquire 在 ctx 内锁定 id，ctx 到期返回 ErrLeaseBusy。
func (s *EtcdStore) Acquire(ctx context.Context, id int) (Lease, error) {
	raw := s.client.RawClient()
	if raw == nil {
		return nil, ErrNilClient
	}
	// 租约在 ctx 内申请，etcd 不可达时按 ctx 超时返回；
	// 会话的续约生命周期独立于 ctx
	grant, err := raw.Grant(ctx, int64(s.sessionTTL))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: id %d: grant: %w", ErrLeaseBusy, id, err)
		}
		return nil, fmt.Errorf("xclusterid: grant lease: %w", err)
	}
	session, err := concurrency.NewSession(raw, concurrency.WithLease(grant.ID))
	if err != nil {
		s.revoke(ctx, raw, grant.ID)
		return nil, fmt.Errorf("xclusterid: new session: %w", err)
	}
	mutex := concurrency.NewMutex(session, s.lockPrefix(id))
	if err := mutex.Lock(ctx); err != nil {
		// session.Close 按会话 TTL 等待撤销，这里改为在预算内撤销
		session.Orphan()
		s.revoke(ctx, raw, grant.ID)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: id %d: %w", ErrLeaseBusy, id, err)
		}
		return nil, fmt.Errorf("xclusterid: lock id %d: %w", id, err)
	}
	return &etcdLease{raw: raw, session: session, mutex: mutex}, nil
}

// revoke 尽力撤销未转交给会话的租约，失败时由 TTL 兜底过期。
func (s *EtcdStore) revoke(ctx context.Context, raw *clientv3.Client, id clientv3.LeaseID) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revokeTimeout)
	defer cancel()
	if _, err := raw.Revoke(rctx, id); err != nil {
		s.logger.Debug(ctx, "revoke lease failed", xlog.Err(err))
	}
}

// Touch 写入 id 的心跳时间戳（毫秒）。
func (s *EtcdStore) Touch(ctx context.Context, id int, ts int64) error {
	return s.client.Put(ctx, s.dataKey(id), []byte(strconv.FormatInt(ts, 10)))
}

// Healthy etcd 不可达时在 ctx 到期后返回 false。
func (s *EtcdStore) Healthy(ctx context.Context) bool {
	return s.client.Healthy(ctx)
}

func (s *EtcdStore) dataKey(id int) string {
	return s.path + "/" + strconv.Itoa(id)
}

// lockPrefix 与 dataKey 不同，使数据 key 不会被当作锁竞争者。
func (s *EtcdStore) lockPrefix(id int) string {
	return s.dataKey(id) + "/lock/"
}

// parseNodes prefix 形如 "/clusterid/"。
// "<prefix><id>" 是数据 key，"<prefix><id>/..." 表示该 ID 已锁定。
func parseNodes(ctx context.Context, logger xlog.Logger, prefix string, kvs []xetcd.KeyValue) []Node {
	byID := make(map[int]*Node)
	invalid := make(map[int]bool)
	for _, kv := range kvs {
		rest := strings.TrimPrefix(kv.Key, prefix)
		seg, _, isChild := strings.Cut(rest, "/")
		id, err := strconv.Atoi(seg)
		if err != nil || id < 0 {
			logger.Warn(ctx, "invalid node key", slog.String("key", kv.Key))
			continue
		}
		n, ok := byID[id]
		if !ok {
			n = &Node{ID: id}
			byID[id] = n
		}
		if isChild {
			n.Locked = true
			continue
		}
		ts, err := strconv.ParseInt(string(kv.Value), 10, 64)
		if err != nil {
			logger.Warn(ctx, "invalid node timestamp", slog.String("key", kv.Key), slog.String("value", string(kv.Value)))
			invalid[id] = true
			continue
		}
		n.Timestamp = ts
	}

	nodes := make([]Node, 0, len(byID))
	for id, n := range byID {
		if invalid[id] {
			continue
		}
		nodes = append(nodes, *n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

type etcdLease struct {
	raw     *clientv3.Client
	session *concurrency.Session
	mutex   *concurrency.Mutex
}

func (l *etcdLease) Done() <-chan struct{} { return l.session.Done() }

// Release 解锁并在 ctx 内撤销租约，锁 key 随租约删除，
// 因此只有撤销失败时才返回解锁错误。
func (l *etcdLease) Release(ctx context.Context) error {
	unlockErr := l.mutex.Unlock(ctx)
	l.session.Orphan()
	if _, err := l.raw.Revoke(ctx, l.session.Lease()); err != nil {
		return errors.Join(unlockErr, err)
	}
	return nil
}
