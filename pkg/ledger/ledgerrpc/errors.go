package ledgerrpc

import (
	"context"
	"errors"
	"fmt"

	"gitledger/pkg/ledger"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus 把账本错误映射为 gRPC 状态码
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrRecordNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ledger.ErrSupersedeConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, ledger.ErrInvalidTx):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus 是 toStatus 的逆映射，客户端据此恢复哨兵错误
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ledger.ErrRecordNotFound, st.Message())
	case codes.Aborted:
		return fmt.Errorf("%w: %s", ledger.ErrSupersedeConflict, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ledger.ErrInvalidTx, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, st.Message())
	default:
		return err
	}
}
