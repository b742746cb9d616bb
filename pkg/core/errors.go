package core

import (
	"errors"
	"fmt"

	"gitledger/pkg/types"
)

// ErrUnsupportedKind 表示遇到了四种 git 对象以外的类型
var ErrUnsupportedKind = errors.New("unsupported object kind")

// ObjectReadError 表示本地对象库无法读取某个对象 (缺失或损坏)
type ObjectReadError struct {
	ID  types.ObjectID
	Err error
}

func (e *ObjectReadError) Error() string {
	return fmt.Sprintf("failed to read object %s: %v", e.ID, e.Err)
}

func (e *ObjectReadError) Unwrap() error { return e.Err }
