package sqlledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"gitledger/pkg/ledger"
	"gitledger/pkg/types"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testContainer = types.ContainerID(7)

// setupTestLedger 构建隔离的测试环境 (每个测试一个内存库)
func setupTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	db := NewWithConn(conn)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	return New(db, nil)
}

// mockHash 生成合法的测试用内容地址
func mockHash(input string) types.Hash {
	sum := sha256.Sum256([]byte(input))
	return types.Hash(hex.EncodeToString(sum[:]))
}

// mustMint 提交一笔交易并返回新记录 ID
func mustMint(t *testing.T, l *Ledger, key string, msgAndArgs ...any) types.RecordID {
	t.Helper()
	return submit(t, l, ledger.Tx{Key: []byte(key), ContentRef: mockHash(key)}, msgAndArgs...)
}

// mustStage 铸造一条 staged 记录，需要 Supersede 才能成为当前记录
func mustStage(t *testing.T, l *Ledger, key string) types.RecordID {
	t.Helper()
	return submit(t, l, ledger.Tx{Key: []byte(key), ContentRef: mockHash(key), Staged: true})
}

// mustPromote 铸造一条 staged 记录并让它取代 expected
func mustPromote(t *testing.T, l *Ledger, key string, expected *types.RecordID) types.RecordID {
	t.Helper()
	id := mustStage(t, l, key)
	require.NoError(t, l.Supersede(context.Background(), testContainer, []byte(key), expected, id))
	return id
}

func submit(t *testing.T, l *Ledger, tx ledger.Tx, msgAndArgs ...any) types.RecordID {
	t.Helper()
	tx.Container = testContainer
	tx.Signer = "alice"
	events, err := l.SubmitAndAwaitFinality(context.Background(), tx)
	require.NoError(t, err, msgAndArgs...)

	ev, ok := events.Minted()
	require.True(t, ok, "minted event missing")
	return ev.Record
}
