package v1

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docray-ai/docray/pkg/types"
)

// 模拟增量扫描的数据面：处理失败的页面 hash 不会对齐，
// 只要 afterID 没越过它，它就一直满足待索引条件。
func stuckPagesFetch(all []types.Page, batch int) func(afterID int64) ([]types.Page, error) {
	return func(afterID int64) ([]types.Page, error) {
		var res []types.Page
		for _, p := range all {
			if p.ID > afterID {
				res = append(res, p)
			}
			if len(res) >= batch {
				break
			}
		}
		return res, nil
	}
}

func TestScanByCursor_TerminatesWithStuckPages(t *testing.T) {
	all := []types.Page{
		{ID: 1, URL: "https://docs.example.com/a", ContentMarkdown: "# a"},
		{ID: 2, URL: "https://docs.example.com/b"}, // 空内容，永远不会写 indexed_content_hash
		{ID: 3, URL: "https://docs.example.com/c", ContentMarkdown: "# c"},
	}

	visited := map[int64]int{}
	err := scanByCursor(context.Background(), stuckPagesFetch(all, 2), func(p types.Page) {
		visited[p.ID]++
	})
	assert.NoError(t, err)

	assert.Len(t, visited, 3)
	for id, n := range visited {
		assert.Equal(t, 1, n, "page %d visited more than once", id)
	}
}

func TestScanByCursor_ContextCancelStopsScan(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var visited int
	err := scanByCursor(ctx, stuckPagesFetch([]types.Page{
		{ID: 1, ContentMarkdown: "# a"},
		{ID: 2, ContentMarkdown: "# b"},
	}, 1), func(types.Page) {
		visited++
		cancel()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, visited)
}
