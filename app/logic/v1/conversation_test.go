package v1

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	// 裸 JSON 原样返回
	assert.Equal(t, `{"standalone_query":"q"}`, extractJSON(`{"standalone_query":"q"}`))

	// 包在代码块里
	out := extractJSON("```json\n{\"standalone_query\":\"q\",\"summary\":\"s\"}\n```")
	assert.Equal(t, `{"standalone_query":"q","summary":"s"}`, out)

	// 前后有多余解释文本
	out = extractJSON("好的，结果如下：{\"standalone_query\":\"q\"} 以上。")
	assert.Equal(t, `{"standalone_query":"q"}`, out)

	// 找不到 JSON 时原样返回，由调用方解析失败后降级
	assert.Equal(t, "no json here", extractJSON("no json here"))
}
