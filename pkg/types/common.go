// pkg/types/common.go
package types

import (
	"encoding/hex"
	"strconv"
)

// Hash 代表 blob store 中内容的地址 (SHA256 Hex String)
// 这是一个“值对象”，应当是不可变的。
type Hash string

func (h Hash) String() string { return string(h) }

// 验证 Hash 合法性
func (h Hash) IsZero() bool  { return h == "" }
func (h Hash) IsValid() bool { return len(h) == 64 && isHex(string(h)) }

// ObjectID 是本地 git 计算出的对象哈希 (SHA-1 为 40 位, SHA-256 为 64 位)
type ObjectID string

func (id ObjectID) String() string { return string(id) }
func (id ObjectID) IsZero() bool   { return id == "" }

func (id ObjectID) IsValid() bool {
	if len(id) != 40 && len(id) != 64 {
		return false
	}
	return isHex(string(id))
}

// Short 返回用于日志的短格式
func (id ObjectID) Short() string {
	if len(id) <= 8 {
		return string(id)
	}
	return string(id[:8])
}

type HashPrefix string

func (p HashPrefix) String() string { return string(p) }

// RecordID 是账本在 mint 时分配的记录编号
type RecordID uint64

func (r RecordID) String() string { return strconv.FormatUint(uint64(r), 10) }

// ContainerID 标识账本上的一个记录集合 (一个仓库对应一个容器)
type ContainerID uint32

func (c ContainerID) String() string { return strconv.FormatUint(uint64(c), 10) }

// ParseContainerID 解析十进制容器编号
func ParseContainerID(s string) (ContainerID, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return ContainerID(v), nil
}

func isHex(s string) bool {
	// 只接受小写，git 输出的永远是小写
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
