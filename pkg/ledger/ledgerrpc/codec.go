package ledgerrpc

import (
	"gitledger/pkg/core"

	"google.golang.org/grpc/encoding"
)

// CodecName 是 gRPC content-subtype：application/grpc+cbor
const CodecName = "cbor"

// cborCodec 让账本服务直接用规范 CBOR 传输，不需要 protobuf 生成代码
type cborCodec struct{}

func (cborCodec) Marshal(v any) ([]byte, error)      { return core.Marshal(v) }
func (cborCodec) Unmarshal(data []byte, v any) error { return core.DecodeObject(data, v) }
func (cborCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(cborCodec{})
}
