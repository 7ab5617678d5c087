package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docray-ai/docray/pkg/ai"
)

const (
	NAME = "openai"
)

type Driver struct {
	client *openai.Client
	model  ai.ModelName
}

func NewClient(token, endpoint string) *openai.Client {
	cfg := openai.DefaultConfig(token)
	if endpoint != "" {
		cfg.BaseURL = endpoint
	}

	return openai.NewClientWithConfig(cfg)
}

func New(token, endpoint string, model ai.ModelName) *Driver {
	if model.ChatModel == "" {
		model.ChatModel = openai.GPT4oMini
	}
	if model.EmbeddingModel == "" {
		model.EmbeddingModel = string(openai.SmallEmbedding3)
	}

	return &Driver{
		client: NewClient(token, endpoint),
		model:  model,
	}
}

func (s *Driver) embedding(ctx context.Context, content []string) (ai.EmbeddingResult, error) {
	slog.Debug("Embedding", slog.String("driver", NAME), slog.Int("texts", len(content)))
	queryReq := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(s.model.EmbeddingModel),
	}

	var (
		groups   [][]string
		result   [][]float32
		batchMax = 6
	)

	for i, v := range content {
		if i%batchMax == 0 {
			groups = append(groups, []string{})
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], v)
	}

	r := ai.EmbeddingResult{
		Usage: &openai.Usage{},
	}
	for _, v := range groups {
		queryReq.Input = v
		resp, err := s.client.CreateEmbeddings(ctx, queryReq)
		if err != nil {
			return r, fmt.Errorf("Error creating embedding: %w", err)
		}
		for _, d := range resp.Data {
			result = append(result, d.Embedding)
		}

		r.Usage.CompletionTokens += resp.Usage.CompletionTokens
		r.Usage.PromptTokens += resp.Usage.PromptTokens
		r.Usage.TotalTokens += resp.Usage.TotalTokens
		r.Model = string(resp.Model)
	}

	r.Data = result

	return r, nil
}

func (s *Driver) EmbeddingForQuery(ctx context.Context, content string) ([]float32, error) {
	result, err := s.embedding(ctx, []string{content})
	if err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return result.Data[0], nil
}

func (s *Driver) EmbeddingForDocument(ctx context.Context, title string, content []string) (ai.EmbeddingResult, error) {
	return s.embedding(ctx, content)
}

func (s *Driver) Generate(ctx context.Context, messages []openai.ChatCompletionMessage, opts ai.GenerateOptions) (ai.ChatResult, error) {
	req := openai.ChatCompletionRequest{
		Model:    s.model.ChatModel,
		Messages: messages,
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.TopP != nil {
		req.TopP = *opts.TopP
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return ai.ChatResult{}, fmt.Errorf("Completion error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ai.ChatResult{}, fmt.Errorf("Completion error: empty choices")
	}

	return ai.ChatResult{
		Model:   resp.Model,
		Content: resp.Choices[0].Message.Content,
		Usage:   &resp.Usage,
	}, nil
}

func (s *Driver) GenerateStream(ctx context.Context, messages []openai.ChatCompletionMessage, opts ai.GenerateOptions) (<-chan ai.StreamChunk, error) {
	req := openai.ChatCompletionRequest{
		Model:    s.model.ChatModel,
		Stream:   true,
		Messages: messages,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.TopP != nil {
		req.TopP = *opts.TopP
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}

	stream, err := s.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ChatCompletionStream error: %w", err)
	}

	out := make(chan ai.StreamChunk, 8)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				out <- ai.StreamChunk{Err: err}
				return
			}

			chunk := ai.StreamChunk{}
			if len(resp.Choices) > 0 {
				chunk.Content = resp.Choices[0].Delta.Content
			}
			if resp.Usage != nil {
				chunk.Usage = resp.Usage
			}
			if chunk.Content == "" && chunk.Usage == nil {
				continue
			}

			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
