// Package offline 提供无外部依赖的确定性向量实现，
// 用于本地开发与测试环境打通链路，不适合生产检索效果要求。
package offline

import (
	"context"
	"crypto/sha256"
	"math"

	"github.com/docray-ai/docray/pkg/ai"
)

const (
	NAME = "offline"
)

type Driver struct {
	dim int
}

func New(dim int) *Driver {
	// 默认维度与建表时的向量列保持一致
	if dim <= 0 {
		dim = 1536
	}
	return &Driver{dim: dim}
}

func (s *Driver) EmbeddingForDocument(ctx context.Context, title string, content []string) (ai.EmbeddingResult, error) {
	result := ai.EmbeddingResult{
		Model: NAME,
	}
	for _, v := range content {
		result.Data = append(result.Data, s.embed(v))
	}
	return result, nil
}

func (s *Driver) EmbeddingForQuery(ctx context.Context, content string) ([]float32, error) {
	return s.embed(content), nil
}

// embed 由内容 hash 展开成固定维度向量并做 L2 归一化，
// 相同文本永远得到相同向量。
func (s *Driver) embed(text string) []float32 {
	digest := sha256.Sum256([]byte(text))

	vec := make([]float32, s.dim)
	for i := 0; i < s.dim; i++ {
		b := digest[i%len(digest)]
		// 混入下标避免超出 hash 长度后的简单重复
		b ^= byte(i / len(digest) * 31)
		vec[i] = float32(b)/255.0*2 - 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
