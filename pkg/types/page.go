package types

import (
	sq "github.com/Masterminds/squirrel"
)

type Page struct {
	ID                 int64  `json:"id" db:"id"`                                     // 自增主键
	WorkspaceID        string `json:"workspace_id" db:"workspace_id"`                 // 所属工作空间
	KBID               string `json:"kb_id" db:"kb_id"`                               // 所属知识库
	SourceID           string `json:"source_id" db:"source_id"`                       // 抓取来源
	URL                string `json:"url" db:"url"`                                   // 规范化后的页面地址，全局唯一
	Title              string `json:"title" db:"title"`                               // 页面标题
	ContentMarkdown    string `json:"content_markdown" db:"content_markdown"`         // 提取后的正文 markdown
	ContentHash        string `json:"content_hash" db:"content_hash"`                 // 当前抓取内容的 sha256
	IndexedContentHash string `json:"indexed_content_hash" db:"indexed_content_hash"` // 最近一次成功索引时的内容 hash
	HTTPStatus         int    `json:"http_status" db:"http_status"`                   // 最近一次抓取的 HTTP 状态码，0 表示请求异常
	LastCrawledAt      int64  `json:"last_crawled_at" db:"last_crawled_at"`           // 最近抓取时间，UNIX时间戳
	CreatedAt          int64  `json:"created_at" db:"created_at"`                     // 创建时间，UNIX时间戳
}

// NeedsIndexing 内容与索引 hash 不一致时需要重建 chunk
func (p Page) NeedsIndexing() bool {
	return p.IndexedContentHash == "" || p.IndexedContentHash != p.ContentHash
}

type GetPagesOptions struct {
	WorkspaceID   string
	KBID          string
	SourceID      string
	MaxHTTPStatus int // 仅保留状态码小于该值的页面，0 表示不过滤
}

func (opts GetPagesOptions) Apply(query *sq.SelectBuilder) {
	if opts.WorkspaceID != "" {
		*query = query.Where(sq.Eq{"workspace_id": opts.WorkspaceID})
	}
	if opts.KBID != "" {
		*query = query.Where(sq.Eq{"kb_id": opts.KBID})
	}
	if opts.SourceID != "" {
		*query = query.Where(sq.Eq{"source_id": opts.SourceID})
	}
	if opts.MaxHTTPStatus > 0 {
		*query = query.Where(sq.Lt{"http_status": opts.MaxHTTPStatus})
	}
}
