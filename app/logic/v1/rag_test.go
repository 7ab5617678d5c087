package v1

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docray-ai/docray/app/core"
	"github.com/docray-ai/docray/pkg/types"
)

func testRagConfig() core.RagConfig {
	cfg := core.RagConfig{}
	cfg.Normalize()
	return cfg
}

func TestSanitizeCitations(t *testing.T) {
	// 合法引用保留，越界引用剔除
	out := sanitizeCitations("安装方法见文档 [1]，配置见 [9]。", 3)
	assert.Equal(t, "安装方法见文档 [1]，配置见 。", out)

	// 一条合法引用都没有时附加免责说明
	out = sanitizeCitations("直接运行 install.sh 即可 [7]。", 3)
	assert.Contains(t, out, "直接运行 install.sh 即可 。")
	assert.Contains(t, out, "未能标注引用来源")

	// 无来源时不附加说明
	out = sanitizeCitations("没有找到相关内容。", 0)
	assert.Equal(t, "没有找到相关内容。", out)

	// 引用编号从 1 开始，[0] 视为越界
	out = sanitizeCitations("见 [0] 和 [2]", 3)
	assert.Equal(t, "见  和 [2]", out)
}

func TestBuildContext_SourceDedupe(t *testing.T) {
	cfg := testRagConfig()
	cfg.InlineCitations = false

	top := []types.RetrievedChunk{
		{ChunkID: 1, URL: "https://docs.example.com/a", Title: "安装指南", SectionPath: "安装 > Linux", Text: "first"},
		{ChunkID: 2, URL: "https://docs.example.com/b", Title: "配置说明", Text: "second"},
		{ChunkID: 3, URL: "https://docs.example.com/a", Title: "安装指南", SectionPath: "安装 > macOS", Text: "third"},
	}

	docs, sources := buildContext(top, cfg)

	// 同 URL 的切片共享一个来源编号
	assert.Len(t, sources, 2)
	assert.Equal(t, 1, sources[0].Ref)
	assert.Equal(t, "https://docs.example.com/a", sources[0].URL)
	assert.Equal(t, 2, sources[1].Ref)

	assert.Contains(t, docs, "[1] 安装指南 > 安装 > Linux\nfirst")
	assert.Contains(t, docs, "[2] 配置说明\nsecond")
	assert.Contains(t, docs, "[1] 安装指南 > 安装 > macOS\nthird")
}

func TestBuildContext_InlineCitationsNumberEachChunk(t *testing.T) {
	cfg := testRagConfig()
	cfg.InlineCitations = true

	top := []types.RetrievedChunk{
		{ChunkID: 1, URL: "https://docs.example.com/a", Title: "安装指南", SectionPath: "安装 > Linux", Text: "first"},
		{ChunkID: 2, URL: "https://docs.example.com/a", Title: "安装指南", SectionPath: "安装 > macOS", Text: "second"},
		{ChunkID: 3, URL: "https://docs.example.com/b", Title: "配置说明", Text: "third"},
	}

	docs, sources := buildContext(top, cfg)

	// 行内引用模式下每个片段独立编号，同 URL 也不合并
	require.Len(t, sources, 3)
	assert.Equal(t, 1, sources[0].Ref)
	assert.Equal(t, 2, sources[1].Ref)
	assert.Equal(t, 3, sources[2].Ref)
	assert.Equal(t, sources[0].URL, sources[1].URL)

	assert.Contains(t, docs, "[1] 安装指南 > 安装 > Linux\nfirst")
	assert.Contains(t, docs, "[2] 安装指南 > 安装 > macOS\nsecond")
	assert.Contains(t, docs, "[3] 配置说明\nthird")
}

func TestBuildContext_InlineCitationsMaxSources(t *testing.T) {
	cfg := testRagConfig()
	cfg.InlineCitations = true
	cfg.MaxSources = 2

	top := []types.RetrievedChunk{
		{ChunkID: 1, URL: "https://docs.example.com/1", Title: "t1", Text: "a"},
		{ChunkID: 2, URL: "https://docs.example.com/2", Title: "t2", Text: "b"},
		{ChunkID: 3, URL: "https://docs.example.com/3", Title: "t3", Text: "c"},
	}

	docs, sources := buildContext(top, cfg)

	assert.Len(t, sources, 2)
	assert.NotContains(t, docs, "t3")
}

func TestBuildContext_CharBudgetSkipsOversized(t *testing.T) {
	cfg := testRagConfig()
	cfg.ContextMaxChars = 200

	big := strings.Repeat("x", 500)
	top := []types.RetrievedChunk{
		{ChunkID: 1, URL: "https://docs.example.com/big", Title: "big", Text: big},
		{ChunkID: 2, URL: "https://docs.example.com/small", Title: "small", Text: "fits"},
	}

	docs, sources := buildContext(top, cfg)

	// 装不下的片段被跳过而不是截断，后面的小片段仍然进入
	assert.NotContains(t, docs, big)
	assert.Contains(t, docs, "fits")
	// 被跳过片段的来源条目仍会登记，供来源列表展示
	assert.Len(t, sources, 2)
}

func TestBuildContext_MaxSources(t *testing.T) {
	cfg := testRagConfig()
	cfg.MaxSources = 2

	top := []types.RetrievedChunk{
		{ChunkID: 1, URL: "https://docs.example.com/1", Title: "t1", Text: "a"},
		{ChunkID: 2, URL: "https://docs.example.com/2", Title: "t2", Text: "b"},
		{ChunkID: 3, URL: "https://docs.example.com/3", Title: "t3", Text: "c"},
	}

	docs, sources := buildContext(top, cfg)

	assert.Len(t, sources, 2)
	// 超出来源上限的切片不进入上下文
	assert.NotContains(t, docs, "t3")
}

func TestBuildContext_SnippetClamp(t *testing.T) {
	cfg := testRagConfig()
	cfg.SnippetMaxChars = 10

	top := []types.RetrievedChunk{
		{ChunkID: 1, URL: "https://docs.example.com/1", Title: "t", Text: strings.Repeat("内容", 20)},
	}

	_, sources := buildContext(top, cfg)
	assert.LessOrEqual(t, len([]rune(sources[0].Snippet)), 10)
}

func TestReferencesTail(t *testing.T) {
	tail := referencesTail([]types.Source{
		{Ref: 1, URL: "https://docs.example.com/install", Title: "安装", SectionPath: "指南 > Getting Started"},
	})
	assert.Contains(t, tail, "参考来源")
	assert.Contains(t, tail, "[安装](https://docs.example.com/install#getting-started)")

	assert.Empty(t, referencesTail(nil))
}

func TestDegradedAnswer(t *testing.T) {
	out := degradedAnswer([]types.Source{
		{Ref: 1, URL: "https://docs.example.com/a", Title: "标题", Snippet: "摘要"},
	})
	assert.Contains(t, out, "无法生成回答")
	assert.Contains(t, out, "[标题](https://docs.example.com/a)")
	assert.Contains(t, out, "摘要")

	assert.Equal(t, NOT_FOUND_ANSWER, degradedAnswer(nil))
}

func TestExtractQuestion(t *testing.T) {
	comp := extractQuestion([]types.MessageContext{
		{Role: types.USER_ROLE_SYSTEM, Content: "你是文档助手"},
		{Role: types.USER_ROLE_USER, Content: "第一个问题"},
		{Role: types.USER_ROLE_ASSISTANT, Content: "第一个回答"},
		{Role: types.USER_ROLE_USER, Content: "第二个问题"},
	})
	assert.Equal(t, "第二个问题", comp.RetrievalQuery)
	assert.Equal(t, []string{"你是文档助手"}, comp.SystemInstructions)
	assert.False(t, comp.Used)

	assert.Empty(t, extractQuestion(nil).RetrievalQuery)
}

func TestMethodLimit(t *testing.T) {
	assert.Equal(t, uint64(8), methodLimit(4, 24))
	assert.Equal(t, uint64(6), methodLimit(4, 6))
	// 上限不得低于分配额度
	assert.Equal(t, uint64(4), methodLimit(4, 2))
}
