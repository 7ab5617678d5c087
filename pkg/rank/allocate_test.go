package rank

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docray-ai/docray/pkg/types"
)

func TestAllocateTopK_SingleBinding(t *testing.T) {
	out := AllocateTopK([]types.KBBinding{
		{KBID: "docs", Weight: 3, Priority: 1},
	}, 20)

	require.Len(t, out, 1)
	assert.Equal(t, "docs", out[0].KBID)
	assert.Equal(t, 20, out[0].TopK)
}

func TestAllocateTopK_WeightedSplit(t *testing.T) {
	// 保底各 1，剩余 7 按 2:1 分配：a 得 floor(14/3)=4，b 得 floor(7/3)=2，
	// 余下 1 个给小数部分更大的 a，最终 a=6 b=3
	out := AllocateTopK([]types.KBBinding{
		{KBID: "a", Weight: 2, Priority: 0},
		{KBID: "b", Weight: 1, Priority: 1},
	}, 9)

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].KBID)
	assert.Equal(t, 6, out[0].TopK)
	assert.Equal(t, "b", out[1].KBID)
	assert.Equal(t, 3, out[1].TopK)
}

func TestAllocateTopK_BudgetSmallerThanBindings(t *testing.T) {
	out := AllocateTopK([]types.KBBinding{
		{KBID: "low", Weight: 1, Priority: 9},
		{KBID: "high", Weight: 5, Priority: 0},
		{KBID: "mid", Weight: 3, Priority: 1},
	}, 2)

	require.Len(t, out, 2)
	assert.Equal(t, "high", out[0].KBID)
	assert.Equal(t, 1, out[0].TopK)
	assert.Equal(t, "mid", out[1].KBID)
	assert.Equal(t, 1, out[1].TopK)
}

func TestAllocateTopK_SumInvariant(t *testing.T) {
	bindings := []types.KBBinding{
		{KBID: "a", Weight: 1.5, Priority: 0},
		{KBID: "b", Weight: 0.5, Priority: 1},
		{KBID: "c", Weight: 2, Priority: 2},
		{KBID: "d", Weight: 0, Priority: 3},
	}

	for k := 1; k <= 40; k++ {
		out := AllocateTopK(bindings, k)
		sum := 0
		for _, a := range out {
			sum += a.TopK
		}
		expected := k
		if k < len(bindings) {
			// 预算不足时每个被选中的库恰好 1
			expected = k
			for _, a := range out {
				assert.Equal(t, 1, a.TopK)
			}
		}
		assert.Equal(t, expected, sum, "k=%d", k)
	}
}

func TestAllocateTopK_Deterministic(t *testing.T) {
	bindings := []types.KBBinding{
		{KBID: "beta", Weight: 1, Priority: 1},
		{KBID: "alpha", Weight: 1, Priority: 1},
		{KBID: "gamma", Weight: 2, Priority: 0},
	}

	first := AllocateTopK(bindings, 11)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, AllocateTopK(bindings, 11))
	}

	// 输出按 priority ASC, kb_id ASC 排列
	require.Len(t, first, 3)
	assert.Equal(t, "gamma", first[0].KBID)
	assert.Equal(t, "alpha", first[1].KBID)
	assert.Equal(t, "beta", first[2].KBID)
}

func TestAllocateTopK_ZeroWeightsEqualSplit(t *testing.T) {
	out := AllocateTopK([]types.KBBinding{
		{KBID: "a", Weight: 0, Priority: 0},
		{KBID: "b", Weight: 0, Priority: 1},
	}, 6)

	require.Len(t, out, 2)
	assert.Equal(t, 3, out[0].TopK)
	assert.Equal(t, 3, out[1].TopK)
}

func TestAllocateTopK_DirtyInput(t *testing.T) {
	out := AllocateTopK([]types.KBBinding{
		{KBID: "  ", Weight: 5, Priority: 0},
		{KBID: "ok", Weight: math.Inf(1), Priority: 0},
		{KBID: "neg", Weight: -2, Priority: 1},
	}, 4)

	require.Len(t, out, 2)
	// 非法权重按 0 处理，等权分配
	assert.Equal(t, "ok", out[0].KBID)
	assert.Equal(t, 2, out[0].TopK)
	assert.Equal(t, "neg", out[1].KBID)
	assert.Equal(t, 2, out[1].TopK)
}

func TestAllocateTopK_EmptyAndZero(t *testing.T) {
	assert.Nil(t, AllocateTopK(nil, 10))
	assert.Nil(t, AllocateTopK([]types.KBBinding{{KBID: "a", Weight: 1}}, 0))
}
