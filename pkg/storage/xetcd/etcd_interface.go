package xetcd

import (
	"context"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// etcdClient Client 依赖的最小接口，测试中以 gomock 替换。
type etcdClient interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error)
	Txn(ctx context.Context) clientv3.Txn
	Close() error
}

var _ etcdClient = (*clientv3.Client)(nil)
