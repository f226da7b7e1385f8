package xetcd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/mock/gomock"
)

var errUnavailable = errors.New("etcdserver: unavailable")

func getResp(kvs ...*mvccpb.KeyValue) *clientv3.GetResponse {
	return &clientv3.GetResponse{Kvs: kvs}
}

func TestConfig_Validate(t *testing.T) {
	require.ErrorIs(t, (&Config{}).Validate(), ErrNoEndpoints)
	require.ErrorIs(t, (&Config{Endpoints: []string{"localhost"}}).Validate(), ErrInvalidEndpoint)
	require.NoError(t, (&Config{Endpoints: []string{"127.0.0.1:2379"}}).Validate())

	cfg := (&Config{Endpoints: []string{"a:1"}}).withDefaults()
	assert.Equal(t, defaultDialTimeout, cfg.DialTimeout)
	assert.Equal(t, defaultDialKeepAliveTime, cfg.DialKeepAliveTime)
}

func TestNewClient_Errors(t *testing.T) {
	_, err := NewClient(nil)
	require.ErrorIs(t, err, ErrNilConfig)
	_, err = NewClient(&Config{})
	require.ErrorIs(t, err, ErrNoEndpoints)
}

func TestClient_GetPutDelete(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMocketcdClient(ctrl)
	c := newClientWith(mock)
	ctx := context.Background()

	mock.EXPECT().Put(ctx, "/a", "1").Return(&clientv3.PutResponse{}, nil)
	require.NoError(t, c.Put(ctx, "/a", []byte("1")))

	mock.EXPECT().Get(ctx, "/a").Return(getResp(&mvccpb.KeyValue{Key: []byte("/a"), Value: []byte("1"), ModRevision: 3}), nil)
	kv, err := c.GetKV(ctx, "/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), kv.Value)
	assert.EqualValues(t, 3, kv.ModRevision)

	mock.EXPECT().Get(ctx, "/missing").Return(getResp(), nil)
	_, err = c.Get(ctx, "/missing")
	assert.True(t, IsKeyNotFound(err))

	mock.EXPECT().Delete(ctx, "/a").Return(&clientv3.DeleteResponse{}, nil)
	require.NoError(t, c.Delete(ctx, "/a"))

	mock.EXPECT().Get(ctx, "/dir/", gomock.Any(), gomock.Any()).Return(getResp(
		&mvccpb.KeyValue{Key: []byte("/dir/1"), Value: []byte("x")},
		&mvccpb.KeyValue{Key: []byte("/dir/2"), Value: []byte("y")},
	), nil)
	list, err := c.List(ctx, "/dir/")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "/dir/2", list[1].Key)

	_, err = c.Get(ctx, "")
	require.ErrorIs(t, err, ErrEmptyKey)
}

func TestClient_Closed(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMocketcdClient(ctrl)
	c := newClientWith(mock)

	mock.EXPECT().Close().Return(nil).Times(1)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	require.ErrorIs(t, c.Put(context.Background(), "/a", nil), ErrClientClosed)
	assert.False(t, c.Healthy(context.Background()))
}

func TestClient_Healthy(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMocketcdClient(ctrl)
	c := newClientWith(mock, WithHealthCheckKey("/app/health"))
	ctx := context.Background()

	mock.EXPECT().Get(ctx, "/app/health", gomock.Any()).Return(getResp(), nil)
	assert.True(t, c.Healthy(ctx))

	mock.EXPECT().Get(ctx, "/app/health", gomock.Any()).Return(nil, errUnavailable)
	assert.False(t, c.Healthy(ctx))
}

func TestClient_IncrCreatesKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMocketcdClient(ctrl)
	txn := NewMockTxn(ctrl)
	c := newClientWith(mock)
	ctx := context.Background()

	mock.EXPECT().Get(ctx, "/tick/order").Return(getResp(), nil)
	mock.EXPECT().Txn(ctx).Return(txn)
	txn.EXPECT().If(gomock.Any()).Return(txn)
	txn.EXPECT().Then(gomock.Any()).Return(txn)
	txn.EXPECT().Commit().Return(&clientv3.TxnResponse{Succeeded: true}, nil)

	v, err := c.Incr(ctx, "/tick/order", 1000)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, v)
}

func TestClient_IncrRetriesOnConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMocketcdClient(ctrl)
	txn := NewMockTxn(ctrl)
	c := newClientWith(mock, WithCASRetry(3, time.Millisecond))
	ctx := context.Background()

	gomock.InOrder(
		mock.EXPECT().Get(ctx, "/n").Return(getResp(&mvccpb.KeyValue{Value: []byte("10"), ModRevision: 5}), nil),
		mock.EXPECT().Get(ctx, "/n").Return(getResp(&mvccpb.KeyValue{Value: []byte("20"), ModRevision: 6}), nil),
	)
	mock.EXPECT().Txn(ctx).Return(txn).Times(2)
	txn.EXPECT().If(gomock.Any()).Return(txn).Times(2)
	txn.EXPECT().Then(gomock.Any()).Return(txn).Times(2)
	gomock.InOrder(
		txn.EXPECT().Commit().Return(&clientv3.TxnResponse{Succeeded: false}, nil),
		txn.EXPECT().Commit().Return(&clientv3.TxnResponse{Succeeded: true}, nil),
	)

	v, err := c.Incr(ctx, "/n", 5)
	require.NoError(t, err)
	assert.EqualValues(t, 25, v)
}

func TestClient_IncrGivesUp(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMocketcdClient(ctrl)
	txn := NewMockTxn(ctrl)
	c := newClientWith(mock, WithCASRetry(2, time.Millisecond))
	ctx := context.Background()

	mock.EXPECT().Get(ctx, "/n").Return(getResp(&mvccpb.KeyValue{Value: []byte("1"), ModRevision: 1}), nil).Times(2)
	mock.EXPECT().Txn(ctx).Return(txn).Times(2)
	txn.EXPECT().If(gomock.Any()).Return(txn).Times(2)
	txn.EXPECT().Then(gomock.Any()).Return(txn).Times(2)
	txn.EXPECT().Commit().Return(&clientv3.TxnResponse{Succeeded: false}, nil).Times(2)

	_, err := c.Incr(ctx, "/n", 1)
	require.ErrorIs(t, err, ErrCASConflict)
}

func TestClient_IncrNotCounter(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMocketcdClient(ctrl)
	c := newClientWith(mock)
	ctx := context.Background()

	mock.EXPECT().Get(ctx, "/n").Return(getResp(&mvccpb.KeyValue{Value: []byte("abc")}), nil).Times(1)
	_, err := c.Incr(ctx, "/n", 1)
	require.ErrorIs(t, err, ErrNotCounter)
}
