package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docray-ai/docray/pkg/types"
)

func TestClaimNextQuery(t *testing.T) {
	query, args, err := claimNextQuery("docray_job", []string{"id", "status", "error"},
		[]string{types.JOB_TYPE_CRAWL}, 1700000000)
	require.NoError(t, err)

	assert.Contains(t, query, "FOR UPDATE SKIP LOCKED")
	assert.Contains(t, query, "status = 'running'")
	// 领取时清空上一轮的失败信息
	assert.Contains(t, query, "error = ''")
	assert.NotContains(t, query, "?", "占位符应已转成 $n")

	// SET 的参数排在子查询参数之前
	require.NotEmpty(t, args)
	assert.Equal(t, int64(1700000000), args[0])
}

func TestRequeueStaleQuery(t *testing.T) {
	query, args, err := requeueStaleQuery("docray_job", 1700000000, 10)
	require.NoError(t, err)

	assert.Contains(t, query, "FOR UPDATE SKIP LOCKED")
	assert.Contains(t, query, "status = 'queued'")
	assert.Contains(t, query, "started_at = 0")
	// 回收的任务重新排队，error 列一并清空
	assert.Contains(t, query, "error = ''")
	assert.NotContains(t, query, "?")
	assert.NotEmpty(t, args)
}
