// Package ledger 定义与账本交互的接口
// 账本是一个只追加的记录集合：每条记录把一个 key 绑定到一个内容地址
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"

	"gitledger/pkg/types"
)

var (
	ErrRecordNotFound    = errors.New("ledger record not found")
	ErrSupersedeConflict = errors.New("ledger supersede conflict")
	ErrInvalidTx         = errors.New("invalid ledger transaction")
)

// Tx 是一笔 mint 交易
type Tx struct {
	Container  types.ContainerID
	Key        []byte
	ContentRef types.Hash
	Signer     string
	// Staged 的记录铸造后不是当前记录，只能经 Supersede 提升
	// 未设置时，如果同 key 还没有当前记录，新记录直接成为当前记录
	Staged bool
}

// Validate 检查交易是否完整
func (tx Tx) Validate() error {
	switch {
	case len(tx.Key) == 0:
		return fmt.Errorf("%w: empty key", ErrInvalidTx)
	case !tx.ContentRef.IsValid():
		return fmt.Errorf("%w: invalid content ref", ErrInvalidTx)
	case tx.Signer == "":
		return fmt.Errorf("%w: missing signer", ErrInvalidTx)
	}
	return nil
}

type EventKind string

const (
	EventTxFinalized  EventKind = "tx_finalized"
	EventRecordMinted EventKind = "record_minted"
)

// Event 是交易达到最终性后产生的事件
type Event struct {
	Kind   EventKind      `json:"kind" cbor:"kind"`
	Key    []byte         `json:"key,omitempty" cbor:"key,omitempty"`
	Record types.RecordID `json:"record,omitempty" cbor:"record,omitempty"`
}

// Events 是一笔交易的全部事件
type Events struct {
	TxID  string  `json:"tx_id" cbor:"tx_id"`
	Items []Event `json:"items" cbor:"items"`
}

// Minted 是 "记录已铸造" 投影
func (e Events) Minted() (Event, bool) {
	for _, ev := range e.Items {
		if ev.Kind == EventRecordMinted {
			return ev, true
		}
	}
	return Event{}, false
}

// Record 是容器中的一条活跃记录
type Record struct {
	ID         types.RecordID `cbor:"id"`
	Key        []byte         `cbor:"key"`
	ContentRef types.Hash     `cbor:"content_ref"`
	Current    bool           `cbor:"current,omitempty"`
}

// Client 是账本客户端
type Client interface {
	// SubmitAndAwaitFinality 提交交易并阻塞直到最终确认
	SubmitAndAwaitFinality(ctx context.Context, tx Tx) (Events, error)

	// RecordSet 返回容器内全部活跃记录，按 ID 升序
	RecordSet(ctx context.Context, container types.ContainerID) ([]Record, error)

	// Supersede 原子地让 replacement 取代同 key 的当前记录
	// expected 是调用方读到的当前记录 (nil 表示此前没有)
	// 当前记录不是 expected 时返回 ErrSupersedeConflict；未提升的 staged 记录不参与比较
	Supersede(ctx context.Context, container types.ContainerID, key []byte, expected *types.RecordID, replacement types.RecordID) error

	// Retire 让一条记录失效
	Retire(ctx context.Context, container types.ContainerID, id types.RecordID) error
}

// Current 返回同 key 的当前记录
// 并发铸造可能留下多条当前记录，取最早的一条
func Current(records []Record, key []byte) (Record, bool) {
	var (
		best  Record
		found bool
	)
	for _, r := range records {
		if !r.Current || !bytes.Equal(r.Key, key) {
			continue
		}
		if !found || r.ID < best.ID {
			best, found = r, true
		}
	}
	return best, found
}

// SortRecords 按 ID 升序排列
func SortRecords(records []Record) {
	slices.SortFunc(records, func(a, b Record) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
