// Package protocol 定义对外 OpenAI 兼容接口的流式帧结构。
package protocol

import "github.com/docray-ai/docray/pkg/types"

const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
	ObjectSources             = "docray.sources"

	FinishReasonStop = "stop"

	// DoneFrame SSE 终止帧的字面量
	DoneFrame = "[DONE]"
)

type ChatCompletionRequest struct {
	Model       string                 `json:"model" binding:"required"`
	Messages    []types.MessageContext `json:"messages" binding:"required"`
	Stream      bool                   `json:"stream"`
	Temperature *float32               `json:"temperature"`
	TopP        *float32               `json:"top_p"`
	MaxTokens   int                    `json:"max_tokens"`
	Debug       bool                   `json:"debug"`
}

type ChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChatCompletionChunk 一帧流式增量，id 逐帧递增。
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// SourcesFrame 在 [DONE] 前发送的扩展帧，携带本次回答的引用来源。
type SourcesFrame struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Sources []types.Source `json:"sources"`
}

type CompletionChoice struct {
	Index        int                  `json:"index"`
	Message      types.MessageContext `json:"message"`
	FinishReason string               `json:"finish_reason"`
}

// ChatCompletionResponse 非流式返回体
type ChatCompletionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   *types.Usage       `json:"usage,omitempty"`
	Sources []types.Source     `json:"sources,omitempty"`
}
