package ledgerrpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName = "gitledger.ledger.v1.Ledger"

	methodSubmit    = "/" + serviceName + "/SubmitAndAwaitFinality"
	methodRecordSet = "/" + serviceName + "/RecordSet"
	methodSupersede = "/" + serviceName + "/Supersede"
	methodRetire    = "/" + serviceName + "/Retire"
)

// LedgerServer 是服务端需要实现的方法集合
type LedgerServer interface {
	SubmitAndAwaitFinality(context.Context, *SubmitRequest) (*SubmitResponse, error)
	RecordSet(context.Context, *RecordSetRequest) (*RecordSetResponse, error)
	Supersede(context.Context, *SupersedeRequest) (*Empty, error)
	Retire(context.Context, *RetireRequest) (*Empty, error)
}

// unaryHandler 生成一个 MethodHandler：解码请求、走拦截器链、调用实现
func unaryHandler[Req, Resp any](fullMethod string, call func(LedgerServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// serviceDesc 手写的服务描述，等价于 protoc 生成的 _grpc.pb.go
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitAndAwaitFinality", Handler: unaryHandler(methodSubmit, LedgerServer.SubmitAndAwaitFinality)},
		{MethodName: "RecordSet", Handler: unaryHandler(methodRecordSet, LedgerServer.RecordSet)},
		{MethodName: "Supersede", Handler: unaryHandler(methodSupersede, LedgerServer.Supersede)},
		{MethodName: "Retire", Handler: unaryHandler(methodRetire, LedgerServer.Retire)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger.cbor",
}

// RegisterLedgerServer 把实现注册到 gRPC Server
func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&serviceDesc, srv)
}
