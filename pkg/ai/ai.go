package ai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/pkoukk/tiktoken-go"
)

// ModelName 单个驱动内各用途的模型名
type ModelName struct {
	ChatModel      string `toml:"chat_model"`
	EmbeddingModel string `toml:"embedding_model"`
	RerankModel    string `toml:"rerank_model"`
}

type EmbeddingResult struct {
	Model string
	Data  [][]float32
	Usage *openai.Usage
}

type ChatResult struct {
	Model   string
	Content string
	Usage   *openai.Usage
}

// StreamChunk 上游流式输出的一个文本增量
type StreamChunk struct {
	Content string
	Usage   *openai.Usage // 仅最后一帧可能携带
	Err     error         // 上游中途失败时由最后一帧携带
}

type RerankDoc struct {
	ID      int64
	Content string
}

type RankDocItem struct {
	ID    int64
	Score float64
}

type GenerateOptions struct {
	Temperature *float32
	TopP        *float32
	MaxTokens   int
}

// Embedder 文本向量化能力。文档与查询分开建模，
// 查询侧会被缓存装饰器包裹。
type Embedder interface {
	EmbeddingForDocument(ctx context.Context, title string, content []string) (EmbeddingResult, error)
	EmbeddingForQuery(ctx context.Context, content string) ([]float32, error)
}

// ChatAI 文本生成能力，流式与非流式
type ChatAI interface {
	Generate(ctx context.Context, messages []openai.ChatCompletionMessage, opts GenerateOptions) (ChatResult, error)
	GenerateStream(ctx context.Context, messages []openai.ChatCompletionMessage, opts GenerateOptions) (<-chan StreamChunk, error)
}

// RerankAI 交叉编码重排能力
type RerankAI interface {
	Rerank(ctx context.Context, query string, docs []*RerankDoc) ([]RankDocItem, error)
}

// NumTokens 估算消息列表的 token 数，模型未知时退回 cl100k_base
func NumTokens(messages []openai.ChatCompletionMessage, model string) (int, error) {
	if model == "" {
		model = openai.GPT4oMini
	}
	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		if tkm, err = tiktoken.GetEncoding("cl100k_base"); err != nil {
			return 0, fmt.Errorf("failed to get tiktoken encoding, %w", err)
		}
	}

	num := 0
	for _, msg := range messages {
		num += 4 // role 与分隔符的固定开销
		num += len(tkm.Encode(msg.Content, nil, nil))
	}
	return num, nil
}

// NumTokensText 单段文本的近似 token 数，编码失败时按 4 字符 1 token 估算
func NumTokensText(text string, model string) int {
	if model == "" {
		model = openai.GPT4oMini
	}
	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tkm, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		n := len(text) / 4
		if n < 1 {
			n = 1
		}
		return n
	}
	n := len(tkm.Encode(text, nil, nil))
	if n < 1 {
		n = 1
	}
	return n
}
