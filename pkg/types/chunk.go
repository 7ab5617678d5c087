package types

import (
	sq "github.com/Masterminds/squirrel"
	"github.com/pgvector/pgvector-go"
)

type Chunk struct {
	ID             int64           `json:"id" db:"id"`                           // 雪花ID
	PageID         int64           `json:"page_id" db:"page_id"`                 // 所属页面
	ChunkIndex     int             `json:"chunk_index" db:"chunk_index"`         // 页面内序号，重建后从 0 连续
	SectionPath    string          `json:"section_path" db:"section_path"`       // 标题面包屑，如 "指南 > 安装"
	ChunkText      string          `json:"chunk_text" db:"chunk_text"`           // 切片正文
	ChunkHash      string          `json:"chunk_hash" db:"chunk_hash"`           // 切片内容 sha256
	TokenCount     int             `json:"token_count" db:"token_count"`         // 近似 token 数
	Embedding      pgvector.Vector `json:"embedding" db:"embedding"`             // 文本向量
	EmbeddingModel string          `json:"embedding_model" db:"embedding_model"` // 生成向量的模型名
	CreatedAt      int64           `json:"created_at" db:"created_at"`           // 创建时间，UNIX时间戳
}

// RetrievedChunk 单次检索方法返回的候选切片。
// Score 的量纲取决于检索方法（余弦相似度 / 词法 rank），融合前不可直接比较。
type RetrievedChunk struct {
	ChunkID     int64   `json:"chunk_id" db:"chunk_id"`
	URL         string  `json:"url" db:"url"`
	Title       string  `json:"title" db:"title"`
	SectionPath string  `json:"section_path" db:"section_path"`
	Text        string  `json:"text" db:"text"`
	Score       float64 `json:"score" db:"score"`
}

type SearchChunksOptions struct {
	WorkspaceID string
	KBID        string
}

func (opts SearchChunksOptions) Apply(prefix string, query *sq.SelectBuilder) {
	if opts.WorkspaceID != "" {
		*query = query.Where(sq.Eq{prefix + ".workspace_id": opts.WorkspaceID})
	}
	if opts.KBID != "" {
		*query = query.Where(sq.Eq{prefix + ".kb_id": opts.KBID})
	}
}
