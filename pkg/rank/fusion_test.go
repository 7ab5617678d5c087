package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docray-ai/docray/pkg/types"
)

func chunk(id int64, score float64) types.RetrievedChunk {
	return types.RetrievedChunk{ChunkID: id, Score: score}
}

func TestFuseHybrid_BothSides(t *testing.T) {
	vec := []types.RetrievedChunk{chunk(1, 0.9), chunk(2, 0.45)}
	lex := []types.RetrievedChunk{chunk(2, 12.0), chunk(3, 6.0)}

	out := FuseHybrid(vec, lex, 10, 0.7, 0.3)
	require.Len(t, out, 3)

	// chunk 2 同时命中两路：0.7*(0.45/0.9) + 0.3*(12/12) = 0.65
	assert.Equal(t, int64(1), out[0].ChunkID)
	assert.InDelta(t, 0.7, out[0].Score, 1e-9)
	assert.Equal(t, int64(2), out[1].ChunkID)
	assert.InDelta(t, 0.65, out[1].Score, 1e-9)
	assert.Equal(t, int64(3), out[2].ChunkID)
	assert.InDelta(t, 0.15, out[2].Score, 1e-9)
}

func TestFuseHybrid_ScoreBounds(t *testing.T) {
	vec := []types.RetrievedChunk{chunk(1, 0.8), chunk(2, 0.2), chunk(3, 0.01)}
	lex := []types.RetrievedChunk{chunk(3, 9.0), chunk(4, 0.5)}

	out := FuseHybrid(vec, lex, 10, 0.7, 0.3)
	for _, c := range out {
		assert.Greater(t, c.Score, 0.0)
		assert.LessOrEqual(t, c.Score, 0.7+0.3)
	}
}

func TestFuseHybrid_VectorEmptyFallsBackToLexical(t *testing.T) {
	lex := []types.RetrievedChunk{chunk(7, 3.0), chunk(8, 2.0), chunk(9, 1.0)}

	out := FuseHybrid(nil, lex, 2, 0.7, 0.3)
	require.Len(t, out, 2)
	// 原始词法得分原样返回，不做归一化
	assert.Equal(t, int64(7), out[0].ChunkID)
	assert.Equal(t, 3.0, out[0].Score)
	assert.Equal(t, int64(8), out[1].ChunkID)
}

func TestFuseHybrid_LexicalEmptyFallsBackToVector(t *testing.T) {
	vec := []types.RetrievedChunk{chunk(1, 0.9), chunk(2, 0.7)}

	out := FuseHybrid(vec, nil, 5, 0.7, 0.3)
	require.Len(t, out, 2)
	assert.Equal(t, vec, out)
}

func TestFuseHybrid_BothEmpty(t *testing.T) {
	assert.Nil(t, FuseHybrid(nil, nil, 5, 0.7, 0.3))
}

func TestFuseHybrid_SingleCandidateNormalizesToOne(t *testing.T) {
	// 单候选一路的归一化得分恒为 1.0，沿袭语义，参见 FuseHybrid 注释
	vec := []types.RetrievedChunk{chunk(1, 0.123)}
	lex := []types.RetrievedChunk{chunk(1, 0.001)}

	out := FuseHybrid(vec, lex, 5, 0.7, 0.3)
	require.Len(t, out, 1)
	assert.InDelta(t, 1.0, out[0].Score, 1e-9)
}

func TestMergeGroups_MaxScoreWinsAcrossKBs(t *testing.T) {
	groups := [][]types.RetrievedChunk{
		{chunk(1, 0.4), chunk(2, 0.9)},
		{chunk(1, 0.8), chunk(3, 0.5)},
	}

	out := MergeGroups(groups, 10)
	require.Len(t, out, 3)
	assert.Equal(t, int64(2), out[0].ChunkID)
	assert.Equal(t, int64(1), out[1].ChunkID)
	assert.Equal(t, 0.8, out[1].Score)
	assert.Equal(t, int64(3), out[2].ChunkID)
}

func TestMergeGroups_Truncates(t *testing.T) {
	groups := [][]types.RetrievedChunk{
		{chunk(1, 0.1), chunk(2, 0.2), chunk(3, 0.3), chunk(4, 0.4)},
	}
	out := MergeGroups(groups, 2)
	require.Len(t, out, 2)
	assert.Equal(t, int64(4), out[0].ChunkID)
	assert.Equal(t, int64(3), out[1].ChunkID)
}
