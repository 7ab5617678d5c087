package rank

import (
	"sort"

	"github.com/docray-ai/docray/pkg/types"
)

// FuseHybrid 融合向量与词法两路召回。
//
// 每路得分先除以本路最大值做归一化（避免量纲差异导致某一路天然占优），
// 再按 score = vectorWeight*normVec + bm25Weight*normLex 合并，仅出现在一路的
// 切片另一项按 0 计。按 chunk_id 去重后降序截断到 k。
//
// 已知行为：某一路只有单个候选时其归一化得分恒为 1.0，与绝对质量无关，
// 这是沿袭下来的语义，调整前需要同步调整测试预期。
func FuseHybrid(vec, lex []types.RetrievedChunk, k int, vectorWeight, bm25Weight float64) []types.RetrievedChunk {
	if len(vec) == 0 && len(lex) == 0 {
		return nil
	}
	// 单路为空时直接退回另一路的原始排序
	if len(lex) == 0 {
		return truncate(vec, k)
	}
	if len(vec) == 0 {
		return truncate(lex, k)
	}

	vecMax := maxScore(vec)
	lexMax := maxScore(lex)

	combined := make(map[int64]types.RetrievedChunk, len(vec)+len(lex))
	scores := make(map[int64]float64, len(vec)+len(lex))

	for _, c := range vec {
		combined[c.ChunkID] = c
		scores[c.ChunkID] += vectorWeight * (c.Score / vecMax)
	}
	for _, c := range lex {
		if _, ok := combined[c.ChunkID]; !ok {
			combined[c.ChunkID] = c
		}
		scores[c.ChunkID] += bm25Weight * (c.Score / lexMax)
	}

	merged := make([]types.RetrievedChunk, 0, len(combined))
	for id, c := range combined {
		c.Score = scores[id]
		merged = append(merged, c)
	}
	sortByScoreDesc(merged)
	return truncate(merged, k)
}

// MergeGroups 合并多个知识库各自的召回结果。
// 同一 chunk 出现在多组时保留最高分，整体降序截断到 k。
func MergeGroups(groups [][]types.RetrievedChunk, k int) []types.RetrievedChunk {
	byID := make(map[int64]types.RetrievedChunk)
	for _, group := range groups {
		for _, c := range group {
			prev, ok := byID[c.ChunkID]
			if !ok || c.Score > prev.Score {
				byID[c.ChunkID] = c
			}
		}
	}

	merged := make([]types.RetrievedChunk, 0, len(byID))
	for _, c := range byID {
		merged = append(merged, c)
	}
	sortByScoreDesc(merged)
	return truncate(merged, k)
}

func maxScore(chunks []types.RetrievedChunk) float64 {
	max := 0.0
	for _, c := range chunks {
		if c.Score > max {
			max = c.Score
		}
	}
	if max == 0 {
		return 1
	}
	return max
}

func sortByScoreDesc(chunks []types.RetrievedChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		return chunks[i].ChunkID < chunks[j].ChunkID
	})
}

func truncate(chunks []types.RetrievedChunk, k int) []types.RetrievedChunk {
	if k > 0 && len(chunks) > k {
		return chunks[:k]
	}
	return chunks
}
