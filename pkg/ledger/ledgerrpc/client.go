package ledgerrpc

import (
	"context"
	"fmt"
	"time"

	"gitledger/pkg/ledger"
	"gitledger/pkg/types"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// Client 通过 gRPC 访问远端账本节点
type Client struct {
	conn *grpc.ClientConn
}

var _ ledger.Client = (*Client)(nil)

// NewClient 创建客户端；连接在后台建立，网络不通不会在这里报错
func NewClient(addr string, extra ...grpc.DialOption) (*Client, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(CodecName),
			grpc.MaxCallRecvMsgSize(64*1024*1024), // 记录集随仓库增长
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return fromStatus(c.conn.Invoke(ctx, method, in, out))
}

func (c *Client) SubmitAndAwaitFinality(ctx context.Context, tx ledger.Tx) (ledger.Events, error) {
	var resp SubmitResponse
	err := c.invoke(ctx, methodSubmit, &SubmitRequest{
		Container:  uint32(tx.Container),
		Key:        tx.Key,
		ContentRef: string(tx.ContentRef),
		Signer:     tx.Signer,
		Staged:     tx.Staged,
	}, &resp)
	if err != nil {
		return ledger.Events{}, err
	}
	return resp.Events, nil
}

func (c *Client) RecordSet(ctx context.Context, container types.ContainerID) ([]ledger.Record, error) {
	var resp RecordSetResponse
	if err := c.invoke(ctx, methodRecordSet, &RecordSetRequest{Container: uint32(container)}, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func (c *Client) Supersede(ctx context.Context, container types.ContainerID, key []byte, expected *types.RecordID, replacement types.RecordID) error {
	req := &SupersedeRequest{
		Container:   uint32(container),
		Key:         key,
		Replacement: uint64(replacement),
	}
	if expected != nil {
		v := uint64(*expected)
		req.Expected = &v
	}
	return c.invoke(ctx, methodSupersede, req, &Empty{})
}

func (c *Client) Retire(ctx context.Context, container types.ContainerID, id types.RecordID) error {
	return c.invoke(ctx, methodRetire, &RetireRequest{Container: uint32(container), ID: uint64(id)}, &Empty{})
}

// Close 关闭底层连接
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
