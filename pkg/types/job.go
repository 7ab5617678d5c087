package types

import (
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
)

const (
	JOB_TYPE_CRAWL = "crawl"
	JOB_TYPE_INDEX = "index"
)

const (
	JOB_STATUS_QUEUED    = "queued"
	JOB_STATUS_RUNNING   = "running"
	JOB_STATUS_SUCCEEDED = "succeeded"
	JOB_STATUS_FAILED    = "failed"
	JOB_STATUS_CANCELLED = "cancelled"
)

type Job struct {
	ID          string          `json:"id" db:"id"`                     // 雪花ID
	WorkspaceID string          `json:"workspace_id" db:"workspace_id"` // 所属工作空间
	KBID        string          `json:"kb_id" db:"kb_id"`               // 所属知识库
	AppID       string          `json:"app_id" db:"app_id"`             // 发起任务的应用，可为空
	SourceID    string          `json:"source_id" db:"source_id"`       // 关联的数据源，可为空
	Type        string          `json:"type" db:"type"`                 // crawl | index
	Status      string          `json:"status" db:"status"`             // queued | running | succeeded | failed | cancelled
	Payload     json.RawMessage `json:"payload" db:"payload"`           // 任务参数，按 Type 解析
	Progress    json.RawMessage `json:"progress" db:"progress"`         // 执行结果与 worker 租约元数据
	Error       string          `json:"error" db:"error"`               // 最近一次失败原因
	StartedAt   int64           `json:"started_at" db:"started_at"`     // 最近一次被领取的时间，UNIX时间戳
	FinishedAt  int64           `json:"finished_at" db:"finished_at"`   // 终态时间，0 表示未结束
	CreatedAt   int64           `json:"created_at" db:"created_at"`     // 入队时间，UNIX时间戳
}

// CrawlJobPayload crawl 类型任务的参数
type CrawlJobPayload struct {
	WorkspaceID     string   `json:"workspace_id"`
	KBID            string   `json:"kb_id"`
	SourceID        string   `json:"source_id"`
	Mode            string   `json:"mode"` // full | incremental
	BaseURL         string   `json:"base_url"`
	SitemapURL      string   `json:"sitemap_url"`
	SeedURLs        []string `json:"seed_urls"`
	IncludePatterns []string `json:"include_patterns"`
	ExcludePatterns []string `json:"exclude_patterns"`
	MaxPages        int      `json:"max_pages"`
}

// IndexJobPayload index 类型任务的参数
type IndexJobPayload struct {
	WorkspaceID string `json:"workspace_id"`
	KBID        string `json:"kb_id"`
	Mode        string `json:"mode"` // full | incremental
}

// JobMeta 落在 progress._meta 中的 worker 租约信息，
// 在任务执行前写入，worker 崩溃后依然可见。
type JobMeta struct {
	WorkerID  string `json:"worker_id"`
	Attempts  int    `json:"attempts"`
	UpdatedAt int64  `json:"updated_at"`
}

type ListJobOptions struct {
	WorkspaceID string
	KBID        string
	Type        string
	Status      string
}

func (opts ListJobOptions) Apply(query *sq.SelectBuilder) {
	if opts.WorkspaceID != "" {
		*query = query.Where(sq.Eq{"workspace_id": opts.WorkspaceID})
	}
	if opts.KBID != "" {
		*query = query.Where(sq.Eq{"kb_id": opts.KBID})
	}
	if opts.Type != "" {
		*query = query.Where(sq.Eq{"type": opts.Type})
	}
	if opts.Status != "" {
		*query = query.Where(sq.Eq{"status": opts.Status})
	}
}
