package repodata

import (
	"fmt"

	"gitledger/pkg/core"
	"gitledger/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// SubmoduleTipMarker 是旧格式中代表子模块 tip 的占位字符串
// 它不是合法的 hex，因此永远不会与对象 ID 冲突
const SubmoduleTipMarker = "submodule-tip"

// SubmoduleTipTag 是子模块条目在 CBOR 中使用的标签号 (first-come 区间)
const SubmoduleTipTag uint64 = 40842

// ObjectRef 是索引对象列表中的一项
// 普通对象编码为文本串；子模块 tip 编码为 Tag(SubmoduleTipTag, id)
// 旧格式的占位符解码为 ID 为空的子模块 tip
type ObjectRef struct {
	ID        types.ObjectID
	Submodule bool
}

// Anonymous 表示无法还原身份的旧格式子模块占位符
func (r ObjectRef) Anonymous() bool { return r.Submodule && r.ID.IsZero() }

func (r ObjectRef) String() string {
	switch {
	case r.Anonymous():
		return SubmoduleTipMarker
	case r.Submodule:
		return "submodule:" + r.ID.String()
	default:
		return r.ID.String()
	}
}

func (r ObjectRef) MarshalCBOR() ([]byte, error) {
	if r.Anonymous() {
		return core.Marshal(SubmoduleTipMarker)
	}
	if !r.ID.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidObjectID, r.ID)
	}
	if r.Submodule {
		return core.Marshal(cbor.Tag{Number: SubmoduleTipTag, Content: string(r.ID)})
	}
	return core.Marshal(string(r.ID))
}

func (r *ObjectRef) UnmarshalCBOR(data []byte) error {
	// 主类型 6 (0xc0..0xdf) 是 Tag
	if len(data) > 0 && data[0]&0xe0 == 0xc0 {
		var tag cbor.Tag
		if err := core.DecodeObject(data, &tag); err != nil {
			return err
		}
		if tag.Number != SubmoduleTipTag {
			return fmt.Errorf("unexpected tag %d in object list", tag.Number)
		}
		s, ok := tag.Content.(string)
		if !ok {
			return fmt.Errorf("submodule tip content must be text string")
		}
		id := types.ObjectID(s)
		if !id.IsValid() {
			return fmt.Errorf("%w: submodule tip %q", ErrInvalidObjectID, s)
		}
		*r = ObjectRef{ID: id, Submodule: true}
		return nil
	}

	var s string
	if err := core.DecodeObject(data, &s); err != nil {
		return err
	}
	if s == SubmoduleTipMarker {
		*r = ObjectRef{Submodule: true}
		return nil
	}
	id := types.ObjectID(s)
	if !id.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidObjectID, s)
	}
	*r = ObjectRef{ID: id}
	return nil
}
