package v1

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/docray-ai/docray/app/core"
	"github.com/docray-ai/docray/pkg/ai"
	"github.com/docray-ai/docray/pkg/types"
	"github.com/docray-ai/docray/pkg/utils"
)

const COMPACTION_PROMPT = `你是一个对话压缩助手。根据以下多轮对话，完成两件事：
1. 把用户最后的提问改写成一个不依赖上文、可独立检索的问题
2. 用一两句话概括此前对话中与该问题相关的背景

对话记录：
--------------------------------------
{history}
--------------------------------------
用户最后的提问：{question}

只输出 JSON，格式如下，不要输出其他内容：
{"standalone_query": "...", "summary": "..."}`

const (
	compactionTimeout      = 10 * time.Second
	compactionMessageLimit = 500 // 单条历史消息进入压缩的字符上限
)

// CompactionResult 多轮对话压缩的产物
type CompactionResult struct {
	RetrievalQuery     string   // 用于检索的独立问题
	Summary            string   // 历史背景概括，拼进生成上下文
	SystemInstructions []string // 请求中携带的 system 指令，原样保留
	Used               bool     // 是否真的走了模型压缩
}

type ConversationLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewConversationLogic(ctx context.Context, core *core.Core) *ConversationLogic {
	return &ConversationLogic{
		ctx:  ctx,
		core: core,
	}
}

// Compact 把多轮对话压缩成独立检索问题。单轮对话或压缩不可用时
// 直接用原始问题，链路不因此失败。
func (l *ConversationLogic) Compact(messages []types.MessageContext) CompactionResult {
	result := CompactionResult{}

	var history []types.MessageContext
	var question string
	for _, msg := range messages {
		switch msg.Role {
		case types.USER_ROLE_SYSTEM:
			result.SystemInstructions = append(result.SystemInstructions, msg.Content)
		case types.USER_ROLE_USER, types.USER_ROLE_ASSISTANT:
			history = append(history, msg)
		}
	}
	if len(history) > 0 && history[len(history)-1].Role == types.USER_ROLE_USER {
		question = history[len(history)-1].Content
		history = history[:len(history)-1]
	}
	result.RetrievalQuery = question

	if question == "" || len(history) == 0 {
		return result
	}

	chat := l.core.Srv().AI().Chat()
	if chat == nil {
		return result
	}

	limit := l.core.Cfg().Rag.HistoryLimit
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	var b strings.Builder
	for _, msg := range history {
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(utils.ClampText(msg.Content, compactionMessageLimit))
		b.WriteString("\n")
	}

	prompt := strings.Replace(COMPACTION_PROMPT, "{history}", b.String(), 1)
	prompt = strings.Replace(prompt, "{question}", question, 1)

	ctx, cancel := context.WithTimeout(l.ctx, compactionTimeout)
	defer cancel()

	resp, err := chat.Generate(ctx, []goopenai.ChatCompletionMessage{
		{Role: goopenai.ChatMessageRoleUser, Content: prompt},
	}, ai.GenerateOptions{})
	if err != nil {
		slog.Warn("conversation compaction degraded", slog.Any("error", err))
		return result
	}

	var parsed struct {
		StandaloneQuery string `json:"standalone_query"`
		Summary         string `json:"summary"`
	}
	if err = json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed); err != nil || parsed.StandaloneQuery == "" {
		slog.Warn("conversation compaction returned unusable output", slog.Any("error", err))
		return result
	}

	result.RetrievalQuery = parsed.StandaloneQuery
	result.Summary = parsed.Summary
	result.Used = true
	return result
}

// extractJSON 容忍模型把 JSON 包在代码块或多余文本里
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
