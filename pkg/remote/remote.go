// Package remote 实现对象的上传、下载以及索引发布
// 每个对象单独写入 blob store，并在账本上铸造一条 (git ID -> 内容地址) 记录
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gitledger/pkg/core"
	"gitledger/pkg/ledger"
	"gitledger/pkg/repodata"
	"gitledger/pkg/storage"
	"gitledger/pkg/types"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// IndexKey 是索引快照记录的 key
const IndexKey = "RepoData"

// Minted 描述一个已经上链的对象
type Minted struct {
	ID      types.ObjectID
	Record  types.RecordID
	Address types.Hash
	// Size 是 git 原始内容的字节数
	Size int64
	// Reused 表示沿用了容器里已有的记录，没有提交新交易
	Reused bool
}

// PublishResult 是一次索引发布的结果
type PublishResult struct {
	New     types.RecordID
	Address types.Hash
	// Superseded 是发布时容器里的当前索引记录 (首次发布为 nil)
	Superseded *types.RecordID
}

type Remote struct {
	store     storage.Store
	ledger    ledger.Client
	container types.ContainerID
	signer    string
	logger    *zap.Logger

	mu      sync.Mutex
	records map[string]ledger.Record
}

func New(store storage.Store, client ledger.Client, container types.ContainerID, signer string, logger *zap.Logger) *Remote {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Remote{
		store:     store,
		ledger:    client,
		container: container,
		signer:    signer,
		logger:    logger.With(zap.Stringer("container", container)),
	}
}

func (r *Remote) Container() types.ContainerID { return r.container }

func objectKey(id types.ObjectID) []byte { return []byte(id) }

// lookup 返回 key 的当前记录；记录集在会话内只加载一次
func (r *Remote) lookup(ctx context.Context, key []byte) (ledger.Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.records == nil {
		if err := r.loadLocked(ctx); err != nil {
			return ledger.Record{}, false, err
		}
	}
	rec, ok := r.records[string(key)]
	return rec, ok, nil
}

func (r *Remote) loadLocked(ctx context.Context) error {
	records, err := r.ledger.RecordSet(ctx, r.container)
	if err != nil {
		return fmt.Errorf("failed to load record set: %w", err)
	}
	ledger.SortRecords(records)

	// 只认当前记录；同 key 取最早的一条
	m := make(map[string]ledger.Record, len(records))
	for _, rec := range records {
		if !rec.Current {
			continue
		}
		if _, ok := m[string(rec.Key)]; !ok {
			m[string(rec.Key)] = rec
		}
	}
	r.records = m
	r.logger.Debug("record set loaded", zap.Int("records", len(m)))
	return nil
}

// remember 记录一次成功的铸造；replace 为 false 时不覆盖已有的当前记录
func (r *Remote) remember(rec ledger.Record, replace bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.records == nil {
		return
	}
	if _, ok := r.records[string(rec.Key)]; ok && !replace {
		return
	}
	r.records[string(rec.Key)] = rec
}

// Refresh 丢弃缓存的记录集，下次查询时重新加载
func (r *Remote) Refresh() {
	r.mu.Lock()
	r.records = nil
	r.mu.Unlock()
}

// mint 提交一笔交易并等待最终确认
// staged 的记录要经过 Supersede 才会成为当前记录
func (r *Remote) mint(ctx context.Context, key []byte, address types.Hash, staged bool) (ledger.Record, error) {
	events, err := r.ledger.SubmitAndAwaitFinality(ctx, ledger.Tx{
		Container:  r.container,
		Key:        key,
		ContentRef: address,
		Signer:     r.signer,
		Staged:     staged,
	})
	if err != nil {
		return ledger.Record{}, fmt.Errorf("%w: submit %s: %w", ErrMint, key, err)
	}

	ev, ok := events.Minted()
	if !ok {
		return ledger.Record{}, fmt.Errorf("%w: tx %s", ErrMissingEvent, events.TxID)
	}
	return ledger.Record{ID: ev.Record, Key: key, ContentRef: address, Current: !staged}, nil
}

// Mint 上传一个对象并铸造它的账本记录
func (r *Remote) Mint(ctx context.Context, obj *core.GitObject) (Minted, error) {
	key := objectKey(obj.ID)

	// 1. 之前的会话可能已经铸造过 (索引发布失败)，直接沿用
	rec, ok, err := r.lookup(ctx, key)
	if err != nil {
		return Minted{}, err
	}
	if ok {
		r.logger.Debug("object already minted", zap.String("id", obj.ID.Short()), zap.Stringer("record", rec.ID))
		return Minted{ID: obj.ID, Record: rec.ID, Address: rec.ContentRef, Size: obj.Size(), Reused: true}, nil
	}

	// 2. 编码并写入 blob store
	content, err := core.Seal(obj)
	if err != nil {
		return Minted{}, fmt.Errorf("%w: encode %s: %w", ErrMint, obj.ID, err)
	}
	if err := r.store.Put(ctx, content); err != nil {
		return Minted{}, fmt.Errorf("%w: upload %s: %w", ErrMint, obj.ID, err)
	}

	// 3. 上链
	rec, err = r.mint(ctx, key, content.ID(), false)
	if err != nil {
		return Minted{}, err
	}
	r.remember(rec, false)

	r.logger.Debug("object minted",
		zap.String("id", obj.ID.Short()),
		zap.String("kind", string(obj.Kind())),
		zap.Stringer("record", rec.ID),
	)
	return Minted{ID: obj.ID, Record: rec.ID, Address: content.ID(), Size: obj.Size()}, nil
}

// fetch 读取记录指向的数据并校验内容地址
func (r *Remote) fetch(ctx context.Context, rec ledger.Record) ([]byte, error) {
	data, err := storage.ReadAll(ctx, r.store, rec.ContentRef)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", rec.ContentRef, err)
	}
	if got := core.CalculateBlobHash(data); got != rec.ContentRef {
		return nil, fmt.Errorf("%w: record %s expects %s, blob hashes to %s", ErrIntegrity, rec.ID, rec.ContentRef, got)
	}
	return data, nil
}

// Object 下载并校验一个对象
func (r *Remote) Object(ctx context.Context, id types.ObjectID) (*core.GitObject, error) {
	rec, ok, err := r.lookup(ctx, objectKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}

	data, err := r.fetch(ctx, rec)
	if err != nil {
		return nil, err
	}

	obj, err := core.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrIntegrity, id, err)
	}
	if obj.ID != id {
		return nil, fmt.Errorf("%w: requested %s, record holds %s", ErrIntegrity, id, obj.ID)
	}
	return obj, nil
}

// LoadIndex 读取当前索引快照；容器里没有索引时返回空索引和 nil
func (r *Remote) LoadIndex(ctx context.Context) (*repodata.RepoData, *types.RecordID, error) {
	rec, ok, err := r.lookup(ctx, []byte(IndexKey))
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		r.logger.Debug("no index published yet")
		return repodata.New(), nil, nil
	}

	data, err := r.fetch(ctx, rec)
	if err != nil {
		return nil, nil, err
	}
	rd, err := repodata.Decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode index record %s: %w", rec.ID, err)
	}

	id := rec.ID
	return rd, &id, nil
}

// Publish 上传新的索引快照并铸造一条 staged 记录
// 新记录在 Finalize 之前不会成为当前索引
func (r *Remote) Publish(ctx context.Context, rd *repodata.RepoData) (*PublishResult, error) {
	// 1. 编码并上传
	data, err := rd.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode index: %w", err)
	}
	content := core.NewContent(data)
	if err := r.store.Put(ctx, content); err != nil {
		return nil, fmt.Errorf("%w: upload index: %w", ErrMint, err)
	}

	// 2. 铸造
	rec, err := r.mint(ctx, []byte(IndexKey), content.ID(), true)
	if err != nil {
		return nil, err
	}

	// 3. 查找此前的索引记录
	records, err := r.ledger.RecordSet(ctx, r.container)
	if err != nil {
		return nil, r.abandon(ctx, rec.ID, fmt.Errorf("failed to load record set: %w", err))
	}
	res := &PublishResult{New: rec.ID, Address: content.ID()}
	if prev, ok := ledger.Current(records, []byte(IndexKey)); ok {
		id := prev.ID
		res.Superseded = &id
	}

	r.logger.Info("index published",
		zap.Stringer("record", rec.ID),
		zap.Int("objects", rd.Len()),
		zap.Int("refs", len(rd.RefNames())),
	)
	return res, nil
}

// Finalize 让新索引取代本会话加载的那一条 (expected)
// 如果别的会话已经抢先发布，返回 ErrConcurrentPublishConflict
// 失败时新记录被标记失效；即使没能标记，staged 记录也不会成为当前索引
func (r *Remote) Finalize(ctx context.Context, res *PublishResult, expected *types.RecordID) error {
	err := r.ledger.Supersede(ctx, r.container, []byte(IndexKey), expected, res.New)
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrSupersedeConflict):
		r.Refresh()
		return r.abandon(ctx, res.New, fmt.Errorf("%w: %w", ErrConcurrentPublishConflict, err))
	default:
		err = fmt.Errorf("failed to supersede index: %w", err)
		r.Refresh()

		// 请求可能已经生效，只是响应丢了
		ok, cerr := r.promoted(ctx, res.New)
		if cerr != nil {
			return multierr.Append(err, cerr)
		}
		if !ok {
			return r.abandon(ctx, res.New, err)
		}
		r.logger.Warn("supersede reported an error but the index is current", zap.Error(err))
	}

	r.remember(ledger.Record{ID: res.New, Key: []byte(IndexKey), ContentRef: res.Address, Current: true}, true)
	return nil
}

// promoted 检查 id 是否已经是当前索引记录
func (r *Remote) promoted(ctx context.Context, id types.RecordID) (bool, error) {
	records, err := r.ledger.RecordSet(ctx, r.container)
	if err != nil {
		return false, fmt.Errorf("failed to load record set: %w", err)
	}
	cur, ok := ledger.Current(records, []byte(IndexKey))
	return ok && cur.ID == id, nil
}

// abandon 让一条没能成为当前索引的记录失效
func (r *Remote) abandon(ctx context.Context, id types.RecordID, err error) error {
	if rerr := r.ledger.Retire(ctx, r.container, id); rerr != nil {
		return multierr.Append(err, fmt.Errorf("failed to retire record %s: %w", id, rerr))
	}
	r.logger.Debug("index record retired", zap.Stringer("record", id))
	return err
}
