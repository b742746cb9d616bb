package remote

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"gitledger/pkg/core"
	"gitledger/pkg/ledger"
	"gitledger/pkg/ledger/sqlledger"
	"gitledger/pkg/storage"
	"gitledger/pkg/types"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testContainer = types.ContainerID(42)

func mockID(input string) types.ObjectID {
	sum := sha1.Sum([]byte(input))
	return types.ObjectID(hex.EncodeToString(sum[:]))
}

func newLedger(t *testing.T) *sqlledger.Ledger {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	db := sqlledger.NewWithConn(conn)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return sqlledger.New(db, nil)
}

func blobObject(t *testing.T, content string) *core.GitObject {
	t.Helper()
	obj, err := core.NewGitObject(mockID(content), []byte(content), core.BlobMeta{})
	require.NoError(t, err)
	return obj
}

// memStore 是内存 blob store，可以篡改已存的数据
type memStore struct {
	mu     sync.Mutex
	blobs  map[types.Hash][]byte
	putErr error
	puts   int
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[types.Hash][]byte)}
}

func (m *memStore) Put(_ context.Context, obj core.Addressable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	m.blobs[obj.ID()] = bytes.Clone(obj.Bytes())
	return nil
}

func (m *memStore) Get(_ context.Context, hash types.Hash) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStore) Has(_ context.Context, hash types.Hash) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[hash]
	return ok, nil
}

func (m *memStore) ExpandHash(context.Context, types.HashPrefix) (types.Hash, error) {
	return "", errors.New("not supported")
}

func (m *memStore) tamper(hash types.Hash, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[hash] = data
}

// silentLedger 的交易成功但不产生铸造事件
type silentLedger struct {
	ledger.Client
}

func (silentLedger) SubmitAndAwaitFinality(context.Context, ledger.Tx) (ledger.Events, error) {
	return ledger.Events{TxID: "silent", Items: []ledger.Event{{Kind: ledger.EventTxFinalized}}}, nil
}

var errInjected = errors.New("injected failure")

// flakyLedger 在 RecordSet / Supersede 上注入失败
type flakyLedger struct {
	ledger.Client
	recordSetErr error
	supersedeErr error
	// landed 为 true 时 Supersede 先生效再返回 supersedeErr
	landed bool
}

func (f *flakyLedger) RecordSet(ctx context.Context, container types.ContainerID) ([]ledger.Record, error) {
	if f.recordSetErr != nil {
		return nil, f.recordSetErr
	}
	return f.Client.RecordSet(ctx, container)
}

func (f *flakyLedger) Supersede(ctx context.Context, container types.ContainerID, key []byte, expected *types.RecordID, replacement types.RecordID) error {
	if f.supersedeErr == nil {
		return f.Client.Supersede(ctx, container, key, expected, replacement)
	}
	if f.landed {
		if err := f.Client.Supersede(ctx, container, key, expected, replacement); err != nil {
			return err
		}
	}
	return f.supersedeErr
}

// publishRef 在一个新会话里把 ref 指向 id 并发布
func publishRef(t *testing.T, store storage.Store, client ledger.Client, ref string, id types.ObjectID) *PublishResult {
	t.Helper()
	ctx := context.Background()
	r := New(store, client, testContainer, "tester", nil)

	rd, expected, err := r.LoadIndex(ctx)
	require.NoError(t, err)
	require.NoError(t, rd.SetRef(ref, id))

	res, err := r.Publish(ctx, rd)
	require.NoError(t, err)
	require.NoError(t, r.Finalize(ctx, res, expected))
	return res
}

// indexRecord 返回账本上 id 对应的活跃记录
func indexRecord(t *testing.T, client ledger.Client, id types.RecordID) (ledger.Record, bool) {
	t.Helper()
	records, err := client.RecordSet(context.Background(), testContainer)
	require.NoError(t, err)
	for _, rec := range records {
		if rec.ID == id {
			return rec, true
		}
	}
	return ledger.Record{}, false
}
