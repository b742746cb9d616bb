package sqlledger

import (
	"time"

	"gorm.io/datatypes"
)

// RecordModel 是一条账本记录：把 key 绑定到 blob store 中的内容地址
// 记录只会被标记为失效，从不删除或改写
type RecordModel struct {
	// ID 在 mint 时分配，单调递增
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	ContainerID uint32 `gorm:"not null;index:idx_records_container_key,priority:1"`
	Key         []byte `gorm:"column:record_key;not null;index:idx_records_container_key,priority:2"`
	ContentRef  string `gorm:"type:char(64);not null"`

	Signer string `gorm:"type:varchar(255);not null"`
	TxID   string `gorm:"type:char(26);index"`

	// Current 标记同 key 的当前记录，只由铸造和 Supersede 设置
	Current bool `gorm:"column:is_current;not null;default:false"`

	Retired   bool `gorm:"not null;default:false;index"`
	RetiredAt *time.Time

	CreatedAt time.Time
}

func (RecordModel) TableName() string {
	return "records"
}

// TxModel 是一笔已最终确认的交易及其事件
type TxModel struct {
	// ID 是 ULID，按时间有序
	ID          string `gorm:"primaryKey;type:char(26)"`
	ContainerID uint32 `gorm:"index"`
	Signer      string `gorm:"type:varchar(255)"`

	// Events 以 JSON 保存，方便直接用 SQL 排查
	Events datatypes.JSON

	FinalizedAt time.Time
}

func (TxModel) TableName() string {
	return "transactions"
}
