package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"gitledger/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// 定义规范化 (Canonical) 的编码选项
// 同一个逻辑值必须永远编码成同样的字节，否则内容寻址就失去意义
var encOptions = cbor.EncOptions{
	// 1. 强制 Map Key 排序 (Canonical)
	Sort: cbor.SortCanonical,

	// 2. 浮点数必须使用64位表示
	ShortestFloat: cbor.ShortestFloatNone,

	// 3. 时间格式化为 Unix 整数
	Time:    cbor.TimeUnix,
	TimeTag: cbor.EncTagNone,

	// 4. 禁止不定长编码 (Indefinite Length)
	IndefLength: cbor.IndefLengthForbidden,

	BigIntConvert: cbor.BigIntConvertShortest,
}

// 全局复用的编码模式
var em, _ = encOptions.EncMode()

// 定义解码选项
var decOptions = cbor.DecOptions{
	// --- 安全性配置 (防 DoS 攻击) ---
	// RepoData 的对象列表随仓库增长，上限要足够大
	MaxArrayElements: 1 << 24,
	MaxMapPairs:      1 << 20,
	MaxNestedLevels:  32,

	// --- 规范性配置 ---
	IndefLength: cbor.IndefLengthForbidden,
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
	BignumTag:   cbor.BignumTagForbidden,
	TimeTag:     cbor.DecTagIgnored,
}

var dm, _ = decOptions.DecMode()

// metadataWire 是 Metadata 的线上格式：带类型标签的变体
type metadataWire struct {
	Kind       ObjectKind `cbor:"k"`
	Tree       *Link      `cbor:"t,omitempty"`
	Parents    []Link     `cbor:"p,omitempty"`
	Target     *Link      `cbor:"g,omitempty"`
	Entries    []Link     `cbor:"e,omitempty"`
	Submodules []Link     `cbor:"s,omitempty"`
}

type gitObjectWire struct {
	ID   Link         `cbor:"id"`
	Raw  []byte       `cbor:"raw"`
	Meta metadataWire `cbor:"meta"`
}

// Encode 将 GitObject 编码为规范的二进制格式 (用于 blob store 传输)
func Encode(obj *GitObject) ([]byte, error) {
	if obj == nil || obj.Meta == nil {
		return nil, fmt.Errorf("cannot encode incomplete object")
	}

	w := gitObjectWire{
		ID:   NewLink(obj.ID),
		Raw:  obj.Raw,
		Meta: metadataWire{Kind: obj.Meta.Kind()},
	}

	switch m := obj.Meta.(type) {
	case CommitMeta:
		tree := NewLink(m.Tree)
		w.Meta.Tree = &tree
		w.Meta.Parents = newLinks(m.Parents)
	case TagMeta:
		target := NewLink(m.Target)
		w.Meta.Target = &target
	case TreeMeta:
		w.Meta.Entries = newLinks(m.Entries)
		w.Meta.Submodules = newLinks(m.Submodules)
	case BlobMeta:
	default:
		return nil, fmt.Errorf("object %s: %w: %T", obj.ID, ErrUnsupportedKind, obj.Meta)
	}

	data, err := em.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal object %s: %w", obj.ID, err)
	}
	return data, nil
}

// Decode 是 Encode 的逆操作
func Decode(data []byte) (*GitObject, error) {
	var w gitObjectWire
	if err := dm.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode object: %w", err)
	}

	var meta Metadata
	switch w.Meta.Kind {
	case KindCommit:
		if w.Meta.Tree == nil {
			return nil, fmt.Errorf("commit %s: missing tree link", w.ID.ID)
		}
		meta = CommitMeta{Tree: w.Meta.Tree.ID, Parents: linkIDs(w.Meta.Parents)}
	case KindTag:
		if w.Meta.Target == nil {
			return nil, fmt.Errorf("tag %s: missing target link", w.ID.ID)
		}
		meta = TagMeta{Target: w.Meta.Target.ID}
	case KindTree:
		meta = TreeMeta{Entries: linkIDs(w.Meta.Entries), Submodules: linkIDs(w.Meta.Submodules)}
	case KindBlob:
		meta = BlobMeta{}
	default:
		return nil, fmt.Errorf("object %s: %w: %q", w.ID.ID, ErrUnsupportedKind, w.Meta.Kind)
	}

	return NewGitObject(w.ID.ID, w.Raw, meta)
}

// Marshal 使用规范编码模式序列化任意值
func Marshal(v any) ([]byte, error) {
	return em.Marshal(v)
}

// DecodeObject 通用的解码函数 (供外部使用)
func DecodeObject(data []byte, v any) error {
	return dm.Unmarshal(data, v)
}

// CalculateHash 计算对象的内容地址和序列化数据
func CalculateHash(v any) (types.Hash, []byte, error) {
	data, err := em.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal object: %w", err)
	}
	return CalculateBlobHash(data), data, nil
}

// CalculateBlobHash 计算原始字节的内容地址
func CalculateBlobHash(data []byte) types.Hash {
	hashBytes := sha256.Sum256(data)
	return types.Hash(hex.EncodeToString(hashBytes[:]))
}
