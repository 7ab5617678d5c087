package types

import (
	"encoding/json"
)

const (
	USER_ROLE_SYSTEM    = "system"
	USER_ROLE_USER      = "user"
	USER_ROLE_ASSISTANT = "assistant"
)

// MessageContext 一条带角色的对话消息
type MessageContext struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Source 回答引用的来源。inline 引用模式下 Ref 为 1 起始的编号。
type Source struct {
	Ref         int    `json:"ref,omitempty"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	SectionPath string `json:"section_path"`
	Snippet     string `json:"snippet"`
}

// RagTimings 预处理各阶段耗时（毫秒），-1 表示该阶段未执行
type RagTimings struct {
	Compaction   int64 `json:"compaction"`
	Embed        int64 `json:"embed"`
	Retrieve     int64 `json:"retrieve"`
	Rerank       int64 `json:"rerank"`
	Context      int64 `json:"context"`
	TotalPrepare int64 `json:"total_prepare"`
	Chat         int64 `json:"chat,omitempty"`
	Total        int64 `json:"total,omitempty"`
}

// RagMeta 单次检索的可观测信息
type RagMeta struct {
	WorkspaceID    string         `json:"workspace_id"`
	KBAllocations  []KBAllocation `json:"kb_allocations"`
	RetrievalQuery string         `json:"retrieval_query"`
	Retrieved      int            `json:"retrieved"`
	ChunkIDs       []int64        `json:"chunk_ids,omitempty"`
	TopChunkIDs    []int64        `json:"top_chunk_ids,omitempty"`
	RerankUsed     bool           `json:"rerank_used"`
	RerankDegraded bool           `json:"rerank_degraded,omitempty"`
	UsedCompaction bool           `json:"used_compaction"`
	Timings        RagTimings     `json:"timings_ms"`
}

// RagPrepared 检索/重排/上下文拼接完成后的产物。
// DirectAnswer 不为空时表示无需调用上游模型，直接短路返回。
type RagPrepared struct {
	Messages     []MessageContext `json:"messages"`
	Sources      []Source         `json:"sources"`
	DirectAnswer string           `json:"direct_answer,omitempty"`
	Meta         RagMeta          `json:"meta"`
}

// RagAnswer 非流式问答的最终结果
type RagAnswer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Usage   *Usage   `json:"usage,omitempty"`
	Meta    RagMeta  `json:"meta"`
}

// Usage 上游模型的 token 用量
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// RetrievalEvent 每次问答落库一条，供运营侧聚合排查。
type RetrievalEvent struct {
	ID             int64           `json:"id" db:"id"`
	WorkspaceID    string          `json:"workspace_id" db:"workspace_id"`
	AppID          string          `json:"app_id" db:"app_id"`
	KBIDs          json.RawMessage `json:"kb_ids" db:"kb_ids"`
	RequestID      string          `json:"request_id" db:"request_id"`
	QuestionSHA256 string          `json:"question_sha256" db:"question_sha256"`
	QuestionLen    int             `json:"question_len" db:"question_len"`
	Timings        json.RawMessage `json:"timings_ms" db:"timings_ms"`
	Retrieval      json.RawMessage `json:"retrieval" db:"retrieval"`
	Sources        json.RawMessage `json:"sources" db:"sources"`
	TokenUsage     json.RawMessage `json:"token_usage" db:"token_usage"`
	Error          string          `json:"error" db:"error"`
	CreatedAt      int64           `json:"created_at" db:"created_at"`
}
