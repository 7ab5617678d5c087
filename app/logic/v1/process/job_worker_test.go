package process

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgress(t *testing.T) {
	// 空 progress 从零开始
	progress := parseProgress(nil)
	assert.Equal(t, 0, progress.Meta.Attempts)

	// 重试时带上上一次的 _meta，attempts 得以累计
	progress = parseProgress(json.RawMessage(`{"_meta":{"worker_id":"w1","attempts":2,"updated_at":100}}`))
	assert.Equal(t, 2, progress.Meta.Attempts)
	assert.Equal(t, "w1", progress.Meta.WorkerID)

	// 脏数据不中断执行
	progress = parseProgress(json.RawMessage(`not json`))
	assert.Equal(t, 0, progress.Meta.Attempts)
}

func TestMarshalProgress_KeepsMetaAndResult(t *testing.T) {
	progress := parseProgress(json.RawMessage(`{"_meta":{"worker_id":"w1","attempts":1}}`))
	progress.Meta.Attempts++
	progress.Result = json.RawMessage(`{"pages_fetched":3}`)

	raw := marshalProgress(progress)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, string(decoded["_meta"]), `"attempts":2`)
	assert.Contains(t, string(decoded["result"]), `"pages_fetched":3`)
}
