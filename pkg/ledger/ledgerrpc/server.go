package ledgerrpc

import (
	"context"

	"gitledger/pkg/ledger"
	"gitledger/pkg/types"

	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Server 把任意 ledger.Client 暴露为 gRPC 服务
type Server struct {
	backend ledger.Client
}

var _ LedgerServer = (*Server)(nil)

func NewServer(backend ledger.Client) *Server {
	return &Server{backend: backend}
}

// NewGRPCServer 创建带日志和 Panic 恢复的 gRPC Server，并注册账本服务
func NewGRPCServer(backend ledger.Client, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			UnaryRecoveryInterceptor(logger),
			UnaryLoggingInterceptor(logger),
		),
	}, opts...)

	s := grpc.NewServer(opts...)
	RegisterLedgerServer(s, NewServer(backend))
	return s
}

func (s *Server) SubmitAndAwaitFinality(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	events, err := s.backend.SubmitAndAwaitFinality(ctx, req.tx())
	if err != nil {
		return nil, toStatus(err)
	}
	return &SubmitResponse{Events: events}, nil
}

func (s *Server) RecordSet(ctx context.Context, req *RecordSetRequest) (*RecordSetResponse, error) {
	records, err := s.backend.RecordSet(ctx, types.ContainerID(req.Container))
	if err != nil {
		return nil, toStatus(err)
	}
	return &RecordSetResponse{Records: records}, nil
}

func (s *Server) Supersede(ctx context.Context, req *SupersedeRequest) (*Empty, error) {
	err := s.backend.Supersede(ctx, types.ContainerID(req.Container), req.Key, req.expected(), types.RecordID(req.Replacement))
	if err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Server) Retire(ctx context.Context, req *RetireRequest) (*Empty, error) {
	if err := s.backend.Retire(ctx, types.ContainerID(req.Container), types.RecordID(req.ID)); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}
