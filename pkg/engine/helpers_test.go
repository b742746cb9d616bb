package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gitledger/pkg/core"
	"gitledger/pkg/engine"
	"gitledger/pkg/ledger/sqlledger"
	"gitledger/pkg/localrepo/repotest"
	"gitledger/pkg/remote"
	"gitledger/pkg/storage"
	"gitledger/pkg/storage/disk"
	"gitledger/pkg/types"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testContainer = types.ContainerID(1)

// backend 是一对共享的 blob store 和账本，模拟一个远端仓库
type backend struct {
	store  storage.Store
	ledger *sqlledger.Ledger
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	store, err := disk.NewAdapter(t.TempDir())
	require.NoError(t, err)

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

	return &backend{store: store, ledger: sqlledger.New(db, nil)}
}

func (b *backend) remote(signer string) *remote.Remote {
	return remote.New(b.store, b.ledger, testContainer, signer, nil)
}

// session 模拟一次 git 调用：加载索引，执行操作，必要时发布
type session struct {
	t        *testing.T
	rem      *remote.Remote
	expected *types.RecordID
	engine   *engine.Engine
}

func (b *backend) session(t *testing.T, repo *repotest.Builder, opts engine.Options) *session {
	return b.sessionWith(t, repo, opts, nil)
}

func (b *backend) sessionWith(t *testing.T, repo *repotest.Builder, opts engine.Options, wrap func(engine.Remote) engine.Remote) *session {
	t.Helper()
	rem := b.remote("tester")
	rd, expected, err := rem.LoadIndex(context.Background())
	require.NoError(t, err)

	var r engine.Remote = rem
	if wrap != nil {
		r = wrap(rem)
	}
	return &session{
		t:        t,
		rem:      rem,
		expected: expected,
		engine:   engine.New(repo.Repo, r, rd, opts, nil),
	}
}

func (s *session) publish() {
	s.t.Helper()
	ctx := context.Background()
	res, err := s.rem.Publish(ctx, s.engine.Index())
	require.NoError(s.t, err)
	require.NoError(s.t, s.rem.Finalize(ctx, res, s.expected))
}

// push 在一个新会话里推送并发布
func (b *backend) push(t *testing.T, repo *repotest.Builder, src, dst string, force bool) ([]types.RecordID, error) {
	t.Helper()
	s := b.session(t, repo, engine.Options{})
	records, err := s.engine.PushRef(context.Background(), src, dst, force)
	if err != nil {
		return nil, err
	}
	s.publish()
	return records, nil
}

func (b *backend) fetch(t *testing.T, repo *repotest.Builder, id types.ObjectID, name string) error {
	t.Helper()
	return b.session(t, repo, engine.Options{}).engine.FetchRef(context.Background(), id, name)
}

// failingRemote 在铸造指定对象时失败
type failingRemote struct {
	engine.Remote
	failOn types.ObjectID
}

var errInjected = errors.New("injected ledger outage")

func (f failingRemote) Mint(ctx context.Context, obj *core.GitObject) (remote.Minted, error) {
	if obj.ID == f.failOn {
		return remote.Minted{}, errInjected
	}
	return f.Remote.Mint(ctx, obj)
}

// tamperingRemote 篡改下载对象的原始内容但保留 ID
type tamperingRemote struct {
	engine.Remote
}

func (t tamperingRemote) Object(ctx context.Context, id types.ObjectID) (*core.GitObject, error) {
	obj, err := t.Remote.Object(ctx, id)
	if err != nil {
		return nil, err
	}
	forged := *obj
	forged.Raw = append(append([]byte{}, obj.Raw...), "tampered"...)
	return &forged, nil
}
