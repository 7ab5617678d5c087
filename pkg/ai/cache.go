package ai

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/docray-ai/docray/pkg/utils"
)

type cacheEntry struct {
	key      string
	vector   []float32
	cachedAt time.Time
}

// CachedEmbedder 查询向量的 LRU 缓存装饰器。
// 只缓存单条查询向量，文档批量向量化直接透传；
// 超过 TTL 的条目即使仍在容量内也视为缺失。
type CachedEmbedder struct {
	inner   Embedder
	maxSize int
	ttl     time.Duration

	mu    sync.Mutex
	items map[string]*list.Element
	lru   *list.List // front = 最近使用
}

func NewCachedEmbedder(inner Embedder, maxSize int, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		inner:   inner,
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

func (s *CachedEmbedder) EmbeddingForDocument(ctx context.Context, title string, content []string) (EmbeddingResult, error) {
	return s.inner.EmbeddingForDocument(ctx, title, content)
}

func (s *CachedEmbedder) EmbeddingForQuery(ctx context.Context, content string) ([]float32, error) {
	if s.maxSize <= 0 {
		return s.inner.EmbeddingForQuery(ctx, content)
	}

	key := utils.SHA256(content)
	now := time.Now()

	s.mu.Lock()
	if el, ok := s.items[key]; ok {
		entry := el.Value.(*cacheEntry)
		if s.ttl <= 0 || now.Sub(entry.cachedAt) <= s.ttl {
			s.lru.MoveToFront(el)
			vec := entry.vector
			s.mu.Unlock()
			return vec, nil
		}
		s.lru.Remove(el)
		delete(s.items, key)
	}
	s.mu.Unlock()

	vec, err := s.inner.EmbeddingForQuery(ctx, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if el, ok := s.items[key]; ok {
		// 并发请求写入了同一个 key，刷新即可
		el.Value.(*cacheEntry).cachedAt = now
		el.Value.(*cacheEntry).vector = vec
		s.lru.MoveToFront(el)
	} else {
		s.items[key] = s.lru.PushFront(&cacheEntry{key: key, vector: vec, cachedAt: now})
	}
	for s.lru.Len() > s.maxSize {
		oldest := s.lru.Back()
		s.lru.Remove(oldest)
		delete(s.items, oldest.Value.(*cacheEntry).key)
	}
	s.mu.Unlock()

	return vec, nil
}

// Len 当前缓存条目数
func (s *CachedEmbedder) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}
