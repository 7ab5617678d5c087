// Package rank 实现检索额度分配与多路召回融合，均为纯函数，便于确定性测试。
package rank

import (
	"math"
	"sort"
	"strings"

	"github.com/docray-ai/docray/pkg/types"
)

// AllocateTopK 将一次检索的 topK 按权重/优先级拆分到多个知识库。
//
// 规则：
//   - enabled 过滤在调用侧完成，这里只处理传入的 bindings
//   - priority 越小越优先（同权重/同余数时优先获得 +1）
//   - totalK < 绑定数时：只给前 totalK 个知识库各分配 1（按 weight DESC, priority ASC, kb_id ASC）
//   - totalK >= 绑定数时：先保底每库 1，再按权重分配剩余，余数按小数部分大小补齐
//
// 输出按 (priority ASC, kb_id ASC) 排序，保证结果可解释、可复现。
func AllocateTopK(bindings []types.KBBinding, totalK int) []types.KBAllocation {
	if totalK <= 0 {
		return nil
	}

	type cleanBinding struct {
		kbID     string
		weight   float64
		priority int
	}

	var clean []cleanBinding
	for _, b := range bindings {
		kbID := strings.TrimSpace(b.KBID)
		if kbID == "" {
			continue
		}
		w := b.Weight
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			w = 0
		}
		clean = append(clean, cleanBinding{kbID: kbID, weight: w, priority: b.Priority})
	}

	if len(clean) == 0 {
		return nil
	}

	if len(clean) == 1 {
		b := clean[0]
		return []types.KBAllocation{{KBID: b.kbID, TopK: totalK, Weight: b.weight, Priority: b.priority}}
	}

	n := len(clean)

	// 预算不足以覆盖所有库：只保留更重要的 totalK 个，各给 1
	if totalK < n {
		ranked := make([]cleanBinding, n)
		copy(ranked, clean)
		sort.SliceStable(ranked, func(i, j int) bool {
			if ranked[i].weight != ranked[j].weight {
				return ranked[i].weight > ranked[j].weight
			}
			if ranked[i].priority != ranked[j].priority {
				return ranked[i].priority < ranked[j].priority
			}
			return ranked[i].kbID < ranked[j].kbID
		})

		var out []types.KBAllocation
		for _, b := range ranked[:totalK] {
			out = append(out, types.KBAllocation{KBID: b.kbID, TopK: 1, Weight: b.weight, Priority: b.priority})
		}
		return out
	}

	// 保底每库 1，剩余按权重分配
	alloc := make(map[string]int, n)
	for _, b := range clean {
		alloc[b.kbID] = 1
	}
	remaining := totalK - n

	weightSum := 0.0
	for _, b := range clean {
		weightSum += b.weight
	}
	weights := make(map[string]float64, n)
	if weightSum <= 0 {
		// 权重全为 0：视为等权
		weightSum = float64(n)
		for _, b := range clean {
			weights[b.kbID] = 1
		}
	} else {
		for _, b := range clean {
			weights[b.kbID] = b.weight
		}
	}

	rawExtra := make(map[string]float64, n)
	used := 0
	for _, b := range clean {
		raw := float64(remaining) * weights[b.kbID] / weightSum
		rawExtra[b.kbID] = raw
		whole := int(math.Floor(raw))
		if whole > 0 {
			alloc[b.kbID] += whole
			used += whole
		}
	}

	if left := remaining - used; left > 0 {
		type remainder struct {
			kbID     string
			frac     float64
			weight   float64
			priority int
		}
		remainders := make([]remainder, 0, n)
		for _, b := range clean {
			raw := rawExtra[b.kbID]
			remainders = append(remainders, remainder{
				kbID:     b.kbID,
				frac:     raw - math.Floor(raw),
				weight:   weights[b.kbID],
				priority: b.priority,
			})
		}
		// 小数部分大者优先，其次权重大者，再次优先级小者
		sort.SliceStable(remainders, func(i, j int) bool {
			if remainders[i].frac != remainders[j].frac {
				return remainders[i].frac > remainders[j].frac
			}
			if remainders[i].weight != remainders[j].weight {
				return remainders[i].weight > remainders[j].weight
			}
			if remainders[i].priority != remainders[j].priority {
				return remainders[i].priority < remainders[j].priority
			}
			return remainders[i].kbID > remainders[j].kbID
		})
		for i := 0; i < left; i++ {
			alloc[remainders[i%len(remainders)].kbID]++
		}
	}

	sorted := make([]cleanBinding, n)
	copy(sorted, clean)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].priority != sorted[j].priority {
			return sorted[i].priority < sorted[j].priority
		}
		return sorted[i].kbID < sorted[j].kbID
	})

	out := make([]types.KBAllocation, 0, n)
	for _, b := range sorted {
		out = append(out, types.KBAllocation{KBID: b.kbID, TopK: alloc[b.kbID], Weight: b.weight, Priority: b.priority})
	}
	return out
}
