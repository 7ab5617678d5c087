package ai

import (
	"context"
	"sync"
)

// LazyEmbedder 将重量级 Embedder 的构造推迟到首次调用。
// 并发首调会阻塞在同一次初始化上，构造失败时后续调用会重试。
type LazyEmbedder struct {
	factory func() (Embedder, error)

	mu    sync.Mutex
	inner Embedder
}

func NewLazyEmbedder(factory func() (Embedder, error)) *LazyEmbedder {
	return &LazyEmbedder{factory: factory}
}

func (s *LazyEmbedder) get() (Embedder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inner != nil {
		return s.inner, nil
	}
	inner, err := s.factory()
	if err != nil {
		return nil, err
	}
	s.inner = inner
	return s.inner, nil
}

func (s *LazyEmbedder) EmbeddingForDocument(ctx context.Context, title string, content []string) (EmbeddingResult, error) {
	inner, err := s.get()
	if err != nil {
		return EmbeddingResult{}, err
	}
	return inner.EmbeddingForDocument(ctx, title, content)
}

func (s *LazyEmbedder) EmbeddingForQuery(ctx context.Context, content string) ([]float32, error) {
	inner, err := s.get()
	if err != nil {
		return nil, err
	}
	return inner.EmbeddingForQuery(ctx, content)
}
