package store

import (
	"context"
	"encoding/json"

	"github.com/pgvector/pgvector-go"

	"github.com/docray-ai/docray/pkg/sqlstore"
	"github.com/docray-ai/docray/pkg/types"
)

// PageStore 定义页面表操作
type PageStore interface {
	sqlstore.SqlCommons
	// Create 创建新的页面记录
	Create(ctx context.Context, data types.Page) (int64, error)
	GetPage(ctx context.Context, kbID string, id int64) (*types.Page, error)
	// GetByURL 按知识库与规范化 URL 取页面
	GetByURL(ctx context.Context, kbID, url string) (*types.Page, error)
	// UpdateContent 抓取成功后写入新内容
	UpdateContent(ctx context.Context, id int64, title, contentMarkdown, contentHash string, httpStatus int) error
	// Touch 内容未变化时只刷新抓取时间与状态码
	Touch(ctx context.Context, id int64, httpStatus int) error
	// MarkFailure 抓取失败时记录状态码，status 为 0 表示网络层失败
	MarkFailure(ctx context.Context, id int64, httpStatus int) error
	// MarkIndexed 索引完成后对齐 indexed_content_hash
	MarkIndexed(ctx context.Context, id int64, contentHash string) error
	// ListNeedingIndex 按 id 游标列出内容 hash 与索引 hash 不一致的可索引页面
	ListNeedingIndex(ctx context.Context, opts types.GetPagesOptions, afterID int64, limit uint64) ([]types.Page, error)
	ListPages(ctx context.Context, opts types.GetPagesOptions, page, pageSize uint64) ([]types.Page, error)
	Total(ctx context.Context, opts types.GetPagesOptions) (int64, error)
	Delete(ctx context.Context, kbID string, id int64) error
}

// ChunkStore 定义切片表操作，检索也走这里
type ChunkStore interface {
	sqlstore.SqlCommons
	BatchCreate(ctx context.Context, datas []*types.Chunk) error
	// DeleteByPage 重建索引前清空页面旧切片
	DeleteByPage(ctx context.Context, pageID int64) error
	List(ctx context.Context, pageID int64) ([]types.Chunk, error)
	CountByPage(ctx context.Context, pageID int64) (int64, error)
	// SimilaritySearch 余弦相似度检索，score 为 1 - 余弦距离
	SimilaritySearch(ctx context.Context, opts types.SearchChunksOptions, vector pgvector.Vector, limit uint64) ([]types.RetrievedChunk, error)
	// LexicalSearch 全文检索，score 为 ts_rank_cd
	LexicalSearch(ctx context.Context, opts types.SearchChunksOptions, ftsConfig, queryText string, limit uint64) ([]types.RetrievedChunk, error)
}

// JobStore 定义任务队列操作
type JobStore interface {
	sqlstore.SqlCommons
	Create(ctx context.Context, data types.Job) error
	GetJob(ctx context.Context, id string) (*types.Job, error)
	ListJobs(ctx context.Context, opts types.ListJobOptions, page, pageSize uint64) ([]types.Job, error)
	Total(ctx context.Context, opts types.ListJobOptions) (int64, error)
	// ClaimNext 以 SKIP LOCKED 的方式领取最早入队的任务，没有可领取任务时返回 nil
	ClaimNext(ctx context.Context, jobTypes []string) (*types.Job, error)
	// RequeueStale 把启动时间早于 olderThan 的 running 任务回收为 queued，单次最多处理 limit 条
	RequeueStale(ctx context.Context, olderThan int64, limit uint64) (int64, error)
	// UpdateStatusIf 仅当当前状态为 from 时更新为 to，返回是否生效
	UpdateStatusIf(ctx context.Context, id, from, to string) (bool, error)
	// Requeue 将任意状态的任务重置回 queued
	Requeue(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, progress json.RawMessage) error
	// Finish 写入终态与执行结果
	Finish(ctx context.Context, id, status string, progress json.RawMessage, errMsg string) error
}

// AppKBStore 定义应用与知识库绑定关系的操作
type AppKBStore interface {
	sqlstore.SqlCommons
	Create(ctx context.Context, data types.KBBinding) error
	// ListEnabled 列出应用启用中的知识库绑定
	ListEnabled(ctx context.Context, workspaceID, appID string) ([]types.KBBinding, error)
	List(ctx context.Context, workspaceID, appID string) ([]types.KBBinding, error)
	Update(ctx context.Context, id int64, priority int, weight float64, enabled bool) error
	Delete(ctx context.Context, id int64) error
}

// RetrievalEventStore 定义检索事件的落库操作
type RetrievalEventStore interface {
	sqlstore.SqlCommons
	Create(ctx context.Context, data types.RetrievalEvent) error
	ListEvents(ctx context.Context, workspaceID, appID string, page, pageSize uint64) ([]types.RetrievalEvent, error)
}
