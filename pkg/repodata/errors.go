package repodata

import "errors"

var (
	// ErrObjectNotIndexed 表示抓取时遇到了索引中没有登记的对象 (索引过期或不一致)
	ErrObjectNotIndexed = errors.New("object not indexed")

	// ErrPullNeeded 表示远端 ref 的历史在本地不完整，需要先 fetch 或 force push
	ErrPullNeeded = errors.New("pull needed: remote history not present locally")

	// ErrInvalidObjectID 表示索引条目不是合法的 hex 对象 ID
	ErrInvalidObjectID = errors.New("invalid object id")
)
