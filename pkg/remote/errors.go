package remote

import "errors"

var (
	// ErrMint 表示 blob 上传或账本交易失败
	ErrMint = errors.New("mint failed")
	// ErrMissingEvent 表示交易已最终确认，但事件里没有铸造记录
	ErrMissingEvent = errors.New("finalized without a minted event")
	// ErrIntegrity 表示下载的数据与账本记录或请求的 ID 不一致
	ErrIntegrity = errors.New("integrity check failed")
	// ErrRecordNotFound 表示容器里没有该对象的活跃记录
	ErrRecordNotFound = errors.New("no ledger record for object")
	// ErrConcurrentPublishConflict 表示另一个会话先发布了索引
	ErrConcurrentPublishConflict = errors.New("concurrent index publish")
)
