package core

import "gitledger/pkg/types"

// Addressable 是 blob store 中可按内容寻址的数据单元
type Addressable interface {
	// ID 返回内容地址 (SHA-256)
	ID() types.Hash

	// Bytes 返回需要持久化的字节
	Bytes() []byte
}

// Content 是编码后的 GitObject 或 RepoData 快照
// 地址就是这些字节的 SHA-256，而不是 git ID
type Content struct {
	hash types.Hash
	data []byte
}

func NewContent(data []byte) *Content {
	return &Content{
		hash: CalculateBlobHash(data),
		data: data,
	}
}

// Seal 编码一个 GitObject 并包装为可写入 blob store 的 Content
func Seal(obj *GitObject) (*Content, error) {
	data, err := Encode(obj)
	if err != nil {
		return nil, err
	}
	return NewContent(data), nil
}

func (c *Content) ID() types.Hash { return c.hash }
func (c *Content) Bytes() []byte  { return c.data }
func (c *Content) Size() int64    { return int64(len(c.data)) }
