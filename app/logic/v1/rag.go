package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/samber/lo"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/docray-ai/docray/app/core"
	"github.com/docray-ai/docray/pkg/ai"
	"github.com/docray-ai/docray/pkg/errors"
	"github.com/docray-ai/docray/pkg/rank"
	"github.com/docray-ai/docray/pkg/safe"
	"github.com/docray-ai/docray/pkg/types"
	"github.com/docray-ai/docray/pkg/utils"
)

const RAG_CONTEXT_PROMPT = `以下是回答用户提问可以参考的资料片段，每个片段都有形如 [n] 的编号：
--------------------------------------
{docs}
--------------------------------------
你需要基于上述资料回答用户的提问，不要编造资料中不存在的内容。
如果资料不足以回答问题，请直接说明没有找到相关内容。
请使用与用户提问相同的语言，以 Markdown 格式回复。`

const RAG_INLINE_CITATION_PROMPT = `在回答中引用资料时，请紧跟引用内容标注对应编号，例如 [1]。只允许标注上述资料的编号。`

const NOT_FOUND_ANSWER = `抱歉，没有在知识库中找到能回答这个问题的内容。`

const NO_CITATION_DISCLAIMER = `

> 本回答未能标注引用来源，请结合下方参考来源核实。`

const rerankTimeout = 8 * time.Second

type RagLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewRagLogic(ctx context.Context, core *core.Core) *RagLogic {
	return &RagLogic{
		ctx:  ctx,
		core: core,
	}
}

// Prepare 完成检索、重排与上下文拼接。返回的 RagPrepared 要么携带可直接
// 发给上游模型的消息列表，要么携带 DirectAnswer 短路整个生成阶段。
func (l *RagLogic) Prepare(workspaceID, appID string, messages []types.MessageContext) (*types.RagPrepared, error) {
	cfg := l.core.Cfg().Rag

	ctx, cancel := context.WithTimeout(l.ctx, time.Duration(cfg.PrepareTimeout)*time.Second)
	defer cancel()

	totalStart := time.Now()
	prepared := &types.RagPrepared{
		Meta: types.RagMeta{
			WorkspaceID: workspaceID,
			Timings: types.RagTimings{
				Compaction: -1,
				Embed:      -1,
				Retrieve:   -1,
				Rerank:     -1,
				Context:    -1,
			},
		},
	}

	// 多轮对话压缩，失败降级为原始问题
	var comp CompactionResult
	if cfg.Compaction {
		compStart := time.Now()
		comp = NewConversationLogic(ctx, l.core).Compact(messages)
		if comp.Used {
			prepared.Meta.Timings.Compaction = time.Since(compStart).Milliseconds()
		}
	} else {
		comp = extractQuestion(messages)
	}
	if comp.RetrievalQuery == "" {
		return nil, errors.New("RagLogic.Prepare", "last message must be a user question", nil).Code(http.StatusBadRequest)
	}
	prepared.Meta.RetrievalQuery = comp.RetrievalQuery
	prepared.Meta.UsedCompaction = comp.Used

	// 知识库额度分配
	bindings, err := l.core.Store().AppKBStore().ListEnabled(ctx, workspaceID, appID)
	if err != nil {
		return nil, errors.New("RagLogic.Prepare.AppKBStore.ListEnabled", "internal error", err)
	}
	allocations := rank.AllocateTopK(bindings, cfg.TopK)
	prepared.Meta.KBAllocations = allocations
	if len(allocations) == 0 {
		prepared.DirectAnswer = NOT_FOUND_ANSWER
		prepared.Meta.Timings.TotalPrepare = time.Since(totalStart).Milliseconds()
		return prepared, nil
	}

	// 查询向量化
	embedStart := time.Now()
	queryVector, err := l.core.Srv().AI().Embedder().EmbeddingForQuery(ctx, comp.RetrievalQuery)
	if err != nil {
		l.core.Metrics().UpstreamErrorInc("embedding")
		return nil, errors.New("RagLogic.Prepare.EmbeddingForQuery", "embedding failed", err).Code(http.StatusBadGateway)
	}
	prepared.Meta.Timings.Embed = time.Since(embedStart).Milliseconds()

	// 逐库检索后融合
	retrieveStart := time.Now()
	merged, err := l.retrieve(ctx, workspaceID, allocations, comp.RetrievalQuery, queryVector)
	if err != nil {
		return nil, err
	}
	prepared.Meta.Timings.Retrieve = time.Since(retrieveStart).Milliseconds()
	prepared.Meta.Retrieved = len(merged)
	prepared.Meta.ChunkIDs = lo.Map(merged, func(c types.RetrievedChunk, _ int) int64 { return c.ChunkID })

	if len(merged) == 0 {
		prepared.DirectAnswer = NOT_FOUND_ANSWER
		prepared.Meta.Timings.TotalPrepare = time.Since(totalStart).Milliseconds()
		return prepared, nil
	}

	// 重排，失败按融合得分截断
	top := l.rerank(ctx, comp.RetrievalQuery, merged, &prepared.Meta)
	prepared.Meta.TopChunkIDs = lo.Map(top, func(c types.RetrievedChunk, _ int) int64 { return c.ChunkID })

	// 上下文拼接
	contextStart := time.Now()
	docsBlock, sources := buildContext(top, cfg)
	prepared.Sources = sources
	prepared.Messages = l.buildMessages(comp, docsBlock)
	prepared.Meta.Timings.Context = time.Since(contextStart).Milliseconds()
	prepared.Meta.Timings.TotalPrepare = time.Since(totalStart).Milliseconds()

	return prepared, nil
}

// retrieve 按分配的额度在每个知识库上执行检索并融合
func (l *RagLogic) retrieve(ctx context.Context, workspaceID string, allocations []types.KBAllocation, query string, vector []float32) ([]types.RetrievedChunk, error) {
	cfg := l.core.Cfg().Rag
	vec := pgvector.NewVector(vector)

	// auto 模式按查询语言挑选词干化配置，其余照配置走
	ftsConfig := cfg.FTSConfig
	if ftsConfig == "auto" {
		ftsConfig = utils.LangToFTSConfig(query)
	}

	timer := l.core.Metrics().RetrievalTimer("fusion")
	defer timer.ObserveDuration()

	groups := make([][]types.RetrievedChunk, 0, len(allocations))
	for _, alloc := range allocations {
		opts := types.SearchChunksOptions{
			WorkspaceID: workspaceID,
			KBID:        alloc.KBID,
		}

		vecHits, err := l.core.Store().ChunkStore().SimilaritySearch(ctx, opts, vec, methodLimit(alloc.TopK, cfg.VectorK))
		if err != nil {
			return nil, errors.New("RagLogic.retrieve.SimilaritySearch", "internal error", err)
		}

		if !cfg.Hybrid {
			groups = append(groups, rankTruncate(vecHits, alloc.TopK))
			continue
		}

		lexHits, err := l.core.Store().ChunkStore().LexicalSearch(ctx, opts, ftsConfig, query, methodLimit(alloc.TopK, cfg.BM25K))
		if err != nil {
			return nil, errors.New("RagLogic.retrieve.LexicalSearch", "internal error", err)
		}

		groups = append(groups, rank.FuseHybrid(vecHits, lexHits, alloc.TopK, cfg.VectorWeight, cfg.BM25Weight))
	}

	return rank.MergeGroups(groups, cfg.TopK), nil
}

// rerank 交叉编码重排。驱动缺失或调用失败都按融合得分截断，不中断链路。
func (l *RagLogic) rerank(ctx context.Context, query string, merged []types.RetrievedChunk, meta *types.RagMeta) []types.RetrievedChunk {
	cfg := l.core.Cfg().Rag

	reranker := l.core.Srv().AI().Rerank()
	if reranker == nil {
		return rankTruncate(merged, cfg.TopN)
	}

	rerankStart := time.Now()
	rctx, cancel := context.WithTimeout(ctx, rerankTimeout)
	defer cancel()

	docs := lo.Map(merged, func(c types.RetrievedChunk, _ int) *ai.RerankDoc {
		return &ai.RerankDoc{ID: c.ChunkID, Content: c.Text}
	})

	timer := l.core.Metrics().UpstreamRequestTimer("rerank")
	ranked, err := reranker.Rerank(rctx, query, docs)
	timer.ObserveDuration()
	meta.Timings.Rerank = time.Since(rerankStart).Milliseconds()

	if err != nil || len(ranked) == 0 {
		l.core.Metrics().UpstreamErrorInc("rerank")
		slog.Warn("rerank degraded, fallback to fusion order", slog.Any("error", err))
		meta.RerankDegraded = true
		return rankTruncate(merged, cfg.TopN)
	}

	byID := lo.KeyBy(merged, func(c types.RetrievedChunk) int64 { return c.ChunkID })
	var top []types.RetrievedChunk
	for _, item := range ranked {
		c, ok := byID[item.ID]
		if !ok {
			continue
		}
		c.Score = item.Score
		top = append(top, c)
		if len(top) >= cfg.TopN {
			break
		}
	}
	if len(top) == 0 {
		meta.RerankDegraded = true
		return rankTruncate(merged, cfg.TopN)
	}
	meta.RerankUsed = true
	return top
}

// buildContext 在字符预算内拼接资料块。装不下的片段跳过而不是截断，
// 保证每个进入上下文的片段都是完整的。
// 行内引用模式下每个片段独立编号，模型引用 [n] 才能落到具体片段；
// 只在末尾附参考链接时才按 URL 合并编号。
func buildContext(top []types.RetrievedChunk, cfg core.RagConfig) (string, []types.Source) {
	var (
		b        strings.Builder
		sources  []types.Source
		refByURL = map[string]int{}
		used     int
	)

	for _, c := range top {
		header := c.Title
		if c.SectionPath != "" {
			header += " > " + c.SectionPath
		}

		var ref int
		if cfg.InlineCitations {
			if len(sources) >= cfg.MaxSources {
				break
			}
			ref = len(sources) + 1
			sources = append(sources, types.Source{
				Ref:         ref,
				URL:         c.URL,
				Title:       c.Title,
				SectionPath: c.SectionPath,
				Snippet:     utils.ClampText(c.Text, cfg.SnippetMaxChars),
			})
		} else {
			var seen bool
			ref, seen = refByURL[c.URL]
			if !seen {
				if len(sources) >= cfg.MaxSources {
					continue
				}
				ref = len(sources) + 1
				refByURL[c.URL] = ref
				sources = append(sources, types.Source{
					Ref:         ref,
					URL:         c.URL,
					Title:       c.Title,
					SectionPath: c.SectionPath,
					Snippet:     utils.ClampText(c.Text, cfg.SnippetMaxChars),
				})
			}
		}

		block := fmt.Sprintf("[%d] %s\n%s\n\n", ref, header, c.Text)
		if used+len(block) > cfg.ContextMaxChars {
			continue
		}
		b.WriteString(block)
		used += len(block)
	}

	return strings.TrimRight(b.String(), "\n"), sources
}

func (l *RagLogic) buildMessages(comp CompactionResult, docsBlock string) []types.MessageContext {
	cfg := l.core.Cfg().Rag

	var sys strings.Builder
	for _, instruction := range comp.SystemInstructions {
		sys.WriteString(instruction)
		sys.WriteString("\n\n")
	}
	sys.WriteString(strings.Replace(RAG_CONTEXT_PROMPT, "{docs}", docsBlock, 1))
	if cfg.InlineCitations {
		sys.WriteString("\n")
		sys.WriteString(RAG_INLINE_CITATION_PROMPT)
	}
	if comp.Summary != "" {
		sys.WriteString("\n\n此前对话的背景：")
		sys.WriteString(comp.Summary)
	}

	return []types.MessageContext{
		{Role: types.USER_ROLE_SYSTEM, Content: sys.String()},
		{Role: types.USER_ROLE_USER, Content: comp.RetrievalQuery},
	}
}

// Answer 非流式问答
func (l *RagLogic) Answer(workspaceID, appID string, messages []types.MessageContext, opts ai.GenerateOptions) (*types.RagAnswer, error) {
	cfg := l.core.Cfg().Rag

	ctx, cancel := context.WithTimeout(l.ctx, time.Duration(cfg.TotalTimeout)*time.Second)
	defer cancel()

	// 满额时排队等空位，整体超时兜底
	sem := l.core.Semaphores().Chat()
	if err := sem.Acquire(ctx); err != nil {
		return nil, errors.New("RagLogic.Answer.semaphore", "too many concurrent requests", err).Code(http.StatusTooManyRequests)
	}
	defer sem.Release()

	totalStart := time.Now()
	prepared, err := NewRagLogic(ctx, l.core).Prepare(workspaceID, appID, messages)
	if err != nil {
		l.recordEvent(workspaceID, appID, messages, nil, nil, err.Error())
		return nil, err
	}

	answer := &types.RagAnswer{
		Sources: prepared.Sources,
		Meta:    prepared.Meta,
	}

	if prepared.DirectAnswer != "" {
		answer.Answer = prepared.DirectAnswer
		answer.Meta.Timings.Total = time.Since(totalStart).Milliseconds()
		l.recordEvent(workspaceID, appID, messages, prepared, nil, "")
		return answer, nil
	}

	chat := l.core.Srv().AI().Chat()
	if chat == nil {
		// 无生成能力，退化为来源列表
		answer.Answer = degradedAnswer(prepared.Sources)
		answer.Meta.Timings.Total = time.Since(totalStart).Milliseconds()
		l.recordEvent(workspaceID, appID, messages, prepared, nil, "")
		return answer, nil
	}

	chatStart := time.Now()
	timer := l.core.Metrics().UpstreamRequestTimer("chat")
	result, err := chat.Generate(ctx, toOpenAIMessages(prepared.Messages), opts)
	timer.ObserveDuration()
	answer.Meta.Timings.Chat = time.Since(chatStart).Milliseconds()
	if err != nil {
		l.core.Metrics().UpstreamErrorInc("chat")
		l.recordEvent(workspaceID, appID, messages, prepared, nil, err.Error())
		return nil, errors.New("RagLogic.Answer.Generate", "upstream model failed", err).Code(http.StatusBadGateway)
	}

	text := result.Content
	if cfg.InlineCitations {
		text = sanitizeCitations(text, len(prepared.Sources))
	}
	if cfg.AppendSources {
		text += referencesTail(prepared.Sources)
	}
	answer.Answer = text

	if result.Usage != nil {
		answer.Usage = &types.Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		}
	}
	answer.Meta.Timings.Total = time.Since(totalStart).Milliseconds()

	l.recordEvent(workspaceID, appID, messages, prepared, answer.Usage, "")
	return answer, nil
}

// StreamSender 把一帧发给客户端，frame 为可序列化对象或 [DONE] 字符串
type StreamSender func(frame any) error

// Stream 流式问答。上游中途失败时把错误作为普通内容帧发出，
// 随后正常走结束帧，客户端无需特殊处理。
func (l *RagLogic) Stream(workspaceID, appID string, messages []types.MessageContext, opts ai.GenerateOptions, send StreamSender) error {
	cfg := l.core.Cfg().Rag

	ctx, cancel := context.WithTimeout(l.ctx, time.Duration(cfg.TotalTimeout)*time.Second)
	defer cancel()

	// 满额时排队等空位，整体超时兜底
	sem := l.core.Semaphores().Chat()
	if err := sem.Acquire(ctx); err != nil {
		return errors.New("RagLogic.Stream.semaphore", "too many concurrent requests", err).Code(http.StatusTooManyRequests)
	}
	defer sem.Release()

	prepared, err := NewRagLogic(ctx, l.core).Prepare(workspaceID, appID, messages)
	if err != nil {
		l.recordEvent(workspaceID, appID, messages, nil, nil, err.Error())
		return err
	}

	w := newStreamWriter(l.core.Srv().AI().ChatModel(), send)
	if err = w.role(); err != nil {
		return err
	}

	if prepared.DirectAnswer != "" {
		err = l.streamStatic(w, prepared, prepared.DirectAnswer)
		l.recordEvent(workspaceID, appID, messages, prepared, nil, "")
		return err
	}

	chat := l.core.Srv().AI().Chat()
	if chat == nil {
		err = l.streamStatic(w, prepared, degradedAnswer(prepared.Sources))
		l.recordEvent(workspaceID, appID, messages, prepared, nil, "")
		return err
	}

	timer := l.core.Metrics().UpstreamRequestTimer("chat")
	chunks, err := chat.GenerateStream(ctx, toOpenAIMessages(prepared.Messages), opts)
	if err != nil {
		timer.ObserveDuration()
		l.core.Metrics().UpstreamErrorInc("chat")
		l.recordEvent(workspaceID, appID, messages, prepared, nil, err.Error())
		return errors.New("RagLogic.Stream.GenerateStream", "upstream model failed", err).Code(http.StatusBadGateway)
	}

	var usage *types.Usage
	var streamErr string
	for chunk := range chunks {
		if chunk.Err != nil {
			// 中途失败：错误转为内容帧，之后照常结束
			l.core.Metrics().UpstreamErrorInc("chat")
			streamErr = chunk.Err.Error()
			if err = w.content("\n\n> 生成中断：上游服务异常，请稍后重试。"); err != nil {
				return err
			}
			break
		}
		if chunk.Content != "" {
			if err = w.content(chunk.Content); err != nil {
				return err
			}
		}
		if chunk.Usage != nil {
			usage = &types.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
	}
	timer.ObserveDuration()

	if cfg.AppendSources && streamErr == "" {
		if err = w.content(referencesTail(prepared.Sources)); err != nil {
			return err
		}
	}

	if err = w.finish(prepared.Sources); err != nil {
		return err
	}

	l.recordEvent(workspaceID, appID, messages, prepared, usage, streamErr)
	return nil
}

// streamStatic 把一段既有文本按流式协议发完
func (l *RagLogic) streamStatic(w *streamWriter, prepared *types.RagPrepared, text string) error {
	if err := w.content(text); err != nil {
		return err
	}
	return w.finish(prepared.Sources)
}

// recordEvent 异步落一条检索事件，失败只记日志
func (l *RagLogic) recordEvent(workspaceID, appID string, messages []types.MessageContext, prepared *types.RagPrepared, usage *types.Usage, errMsg string) {
	question := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.USER_ROLE_USER {
			question = messages[i].Content
			break
		}
	}

	event := types.RetrievalEvent{
		WorkspaceID:    workspaceID,
		AppID:          appID,
		RequestID:      utils.GenUniqIDStr(),
		QuestionSHA256: utils.SHA256(question),
		QuestionLen:    len([]rune(question)),
		Error:          errMsg,
	}
	if prepared != nil {
		kbIDs := lo.Map(prepared.Meta.KBAllocations, func(a types.KBAllocation, _ int) string { return a.KBID })
		event.KBIDs, _ = json.Marshal(kbIDs)
		event.Timings, _ = json.Marshal(prepared.Meta.Timings)
		event.Retrieval, _ = json.Marshal(prepared.Meta)
		event.Sources, _ = json.Marshal(prepared.Sources)
	}
	if usage != nil {
		event.TokenUsage, _ = json.Marshal(usage)
	}

	go safe.Run(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.core.Store().RetrievalEventStore().Create(ctx, event); err != nil {
			slog.Error("failed to record retrieval event", slog.Any("error", err))
		}
	})
}

// extractQuestion 不做压缩时直接取最后一条用户消息
func extractQuestion(messages []types.MessageContext) CompactionResult {
	result := CompactionResult{}
	for _, msg := range messages {
		if msg.Role == types.USER_ROLE_SYSTEM {
			result.SystemInstructions = append(result.SystemInstructions, msg.Content)
		}
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.USER_ROLE_USER {
			result.RetrievalQuery = messages[i].Content
			break
		}
	}
	return result
}

func methodLimit(allocTopK int, capK int) uint64 {
	limit := allocTopK * 2
	if capK > 0 && limit > capK {
		limit = capK
	}
	if limit < allocTopK {
		limit = allocTopK
	}
	return uint64(limit)
}

func rankTruncate(chunks []types.RetrievedChunk, k int) []types.RetrievedChunk {
	if len(chunks) <= k {
		return chunks
	}
	return chunks[:k]
}

func toOpenAIMessages(messages []types.MessageContext) []goopenai.ChatCompletionMessage {
	return lo.Map(messages, func(m types.MessageContext, _ int) goopenai.ChatCompletionMessage {
		return goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	})
}

var citationPattern = regexp.MustCompile(`\[(\d{1,3})\]`)

// sanitizeCitations 清理越界的行内引用编号。模型一条引用都没标时
// 附加一行免责说明。
func sanitizeCitations(text string, sourceCount int) string {
	hasValid := false
	sanitized := citationPattern.ReplaceAllStringFunc(text, func(m string) string {
		n, err := strconv.Atoi(strings.Trim(m, "[]"))
		if err != nil || n < 1 || n > sourceCount {
			return ""
		}
		hasValid = true
		return m
	})

	if !hasValid && sourceCount > 0 {
		sanitized += NO_CITATION_DISCLAIMER
	}
	return sanitized
}

// referencesTail 回答末尾的参考来源列表，带标题锚点
func referencesTail(sources []types.Source) string {
	if len(sources) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\n---\n参考来源：\n")
	for _, s := range sources {
		b.WriteString(fmt.Sprintf("- [%d] [%s](%s)\n", s.Ref, s.Title, utils.AnchoredURL(s.URL, s.SectionPath)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// degradedAnswer 无生成能力时退化为来源列表
func degradedAnswer(sources []types.Source) string {
	if len(sources) == 0 {
		return NOT_FOUND_ANSWER
	}

	var b strings.Builder
	b.WriteString("当前无法生成回答，以下是与问题最相关的资料：\n\n")
	for _, s := range sources {
		b.WriteString(fmt.Sprintf("- [%s](%s)", s.Title, utils.AnchoredURL(s.URL, s.SectionPath)))
		if s.Snippet != "" {
			b.WriteString("：")
			b.WriteString(s.Snippet)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
