package sqlledger

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gitledger/pkg/ledger"
	"gitledger/pkg/types"

	"github.com/oklog/ulid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Ledger 用关系数据库模拟账本：一次提交的数据库事务就是一次最终确认
type Ledger struct {
	db     *DB
	logger *zap.Logger
}

var _ ledger.Client = (*Ledger)(nil)

func New(db *DB, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{db: db, logger: logger.Named("sqlledger")}
}

// SubmitAndAwaitFinality 在一个事务里写入记录和交易
// 事务提交即最终确认，所以这里返回时事件已经可见
func (l *Ledger) SubmitAndAwaitFinality(ctx context.Context, tx ledger.Tx) (ledger.Events, error) {
	if err := tx.Validate(); err != nil {
		return ledger.Events{}, err
	}

	now := time.Now().UTC()
	txID, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return ledger.Events{}, fmt.Errorf("failed to generate tx id: %w", err)
	}

	var events ledger.Events
	err = l.db.GetConn().WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		// 1. 非 staged 的记录在同 key 没有当前记录时直接成为当前记录
		current := false
		if !tx.Staged {
			var n int64
			err := currentOf(dbtx, tx.Container, tx.Key).Count(&n).Error
			if err != nil {
				return fmt.Errorf("failed to query current record: %w", err)
			}
			current = n == 0
		}

		// 2. 写入记录，拿到自增 ID
		record := RecordModel{
			ContainerID: uint32(tx.Container),
			Key:         tx.Key,
			ContentRef:  string(tx.ContentRef),
			Signer:      tx.Signer,
			TxID:        txID.String(),
			Current:     current,
			CreatedAt:   now,
		}
		if err := dbtx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}

		// 3. 生成事件
		events = ledger.Events{
			TxID: txID.String(),
			Items: []ledger.Event{
				{Kind: ledger.EventTxFinalized},
				{Kind: ledger.EventRecordMinted, Key: tx.Key, Record: types.RecordID(record.ID)},
			},
		}
		payload, err := json.Marshal(events.Items)
		if err != nil {
			return fmt.Errorf("failed to marshal events: %w", err)
		}

		// 4. 写入交易
		return dbtx.Create(&TxModel{
			ID:          txID.String(),
			ContainerID: uint32(tx.Container),
			Signer:      tx.Signer,
			Events:      datatypes.JSON(payload),
			FinalizedAt: now,
		}).Error
	})
	if err != nil {
		return ledger.Events{}, err
	}

	l.logger.Debug("tx finalized",
		zap.String("tx", events.TxID),
		zap.Stringer("container", tx.Container),
		zap.ByteString("key", tx.Key),
	)
	return events, nil
}

// RecordSet 返回容器内的活跃记录，按 ID 升序
func (l *Ledger) RecordSet(ctx context.Context, container types.ContainerID) ([]ledger.Record, error) {
	var models []RecordModel
	err := l.db.GetConn().WithContext(ctx).
		Where("container_id = ? AND retired = ?", uint32(container), false).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query record set: %w", err)
	}

	records := make([]ledger.Record, len(models))
	for i, m := range models {
		records[i] = toRecord(m)
	}
	return records, nil
}

// Supersede 是针对同一个 key 的 CAS
// SQL: UPDATE records SET retired = true, is_current = false WHERE id = ? AND is_current = true
// 影响行数为 0 说明 expected 已经被别人取代
// 没有提升过的 staged 记录 (崩溃或失败的发布) 不参与比较，也不会被动成为当前记录
func (l *Ledger) Supersede(ctx context.Context, container types.ContainerID, key []byte, expected *types.RecordID, replacement types.RecordID) error {
	return l.db.GetConn().WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		// 1. replacement 必须存在且活跃
		var repl RecordModel
		err := dbtx.Where("id = ? AND container_id = ? AND retired = ?", uint64(replacement), uint32(container), false).
			First(&repl).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("replacement %s: %w", replacement, ledger.ErrRecordNotFound)
		}
		if err != nil {
			return err
		}
		if string(repl.Key) != string(key) {
			return fmt.Errorf("replacement %s has key %q, want %q: %w", replacement, repl.Key, key, ledger.ErrRecordNotFound)
		}
		if repl.Current {
			// 重试：上一次已经生效
			return nil
		}

		// 2. 当前记录必须是 expected
		var current []uint64
		if err := currentOf(dbtx, container, key).Order("id ASC").Pluck("id", &current).Error; err != nil {
			return err
		}
		if expected == nil {
			if len(current) > 0 {
				return fmt.Errorf("%w: record %d is already current", ledger.ErrSupersedeConflict, current[0])
			}
		} else if len(current) == 0 || current[0] != uint64(*expected) {
			return fmt.Errorf("%w: expected %s, current is %v", ledger.ErrSupersedeConflict, *expected, current)
		}

		now := time.Now().UTC()

		// 3. 让 expected 失效
		if expected != nil {
			result := dbtx.Model(&RecordModel{}).
				Where("id = ? AND retired = ? AND is_current = ?", uint64(*expected), false, true).
				Updates(map[string]any{"retired": true, "is_current": false, "retired_at": now})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("%w: %s retired concurrently", ledger.ErrSupersedeConflict, *expected)
			}
		}

		// 4. 提升 replacement
		result := dbtx.Model(&RecordModel{}).
			Where("id = ? AND retired = ? AND is_current = ?", uint64(replacement), false, false).
			Update("is_current", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s changed concurrently", ledger.ErrSupersedeConflict, replacement)
		}

		l.logger.Debug("record promoted",
			zap.ByteString("key", key),
			zap.Stringer("record", replacement),
		)
		return nil
	})
}

// Retire 让一条活跃记录失效
func (l *Ledger) Retire(ctx context.Context, container types.ContainerID, id types.RecordID) error {
	result := l.db.GetConn().WithContext(ctx).
		Model(&RecordModel{}).
		Where("id = ? AND container_id = ? AND retired = ?", uint64(id), uint32(container), false).
		Updates(map[string]any{"retired": true, "is_current": false, "retired_at": time.Now().UTC()})
	if result.Error != nil {
		return fmt.Errorf("failed to retire record %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("record %s: %w", id, ledger.ErrRecordNotFound)
	}
	return nil
}

// Transactions 返回容器内的交易 (按时间倒序)，用于排查
func (l *Ledger) Transactions(ctx context.Context, container types.ContainerID, limit int) ([]TxModel, error) {
	var txs []TxModel
	err := l.db.GetConn().WithContext(ctx).
		Where("container_id = ?", uint32(container)).
		Order("id DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// currentOf 查询同 key 的当前记录
func currentOf(db *gorm.DB, container types.ContainerID, key []byte) *gorm.DB {
	return db.Model(&RecordModel{}).
		Where("container_id = ? AND record_key = ? AND retired = ? AND is_current = ?", uint32(container), key, false, true)
}

func toRecord(m RecordModel) ledger.Record {
	return ledger.Record{
		ID:         types.RecordID(m.ID),
		Key:        m.Key,
		ContentRef: types.Hash(m.ContentRef),
		Current:    m.Current,
	}
}
