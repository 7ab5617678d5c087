package v1

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/docray-ai/docray/app/core"
	"github.com/docray-ai/docray/pkg/ai"
	"github.com/docray-ai/docray/pkg/chunker"
	"github.com/docray-ai/docray/pkg/errors"
	"github.com/docray-ai/docray/pkg/types"
	"github.com/docray-ai/docray/pkg/utils"
)

const indexScanBatch = 50

type IndexLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewIndexLogic(ctx context.Context, core *core.Core) *IndexLogic {
	return &IndexLogic{
		ctx:  ctx,
		core: core,
	}
}

// IndexResult 单次索引任务的执行结果，落到 job.progress
type IndexResult struct {
	PagesScanned  int `json:"pages_scanned"`
	PagesIndexed  int `json:"pages_indexed"`
	PagesSkipped  int `json:"pages_skipped"`
	PagesFailed   int `json:"pages_failed"`
	ChunksCreated int `json:"chunks_created"`
}

// Run 执行一次索引。增量模式只处理内容 hash 与索引 hash 不一致的页面，
// full 模式全量重建。单个页面失败不中断整体，计入 pages_failed。
func (l *IndexLogic) Run(payload types.IndexJobPayload) (IndexResult, error) {
	var result IndexResult

	opts := types.GetPagesOptions{
		WorkspaceID:   payload.WorkspaceID,
		KBID:          payload.KBID,
		MaxHTTPStatus: http.StatusBadRequest,
	}

	full := payload.Mode == CRAWL_MODE_FULL

	visit := func(p types.Page) {
		result.PagesScanned++
		if p.ContentMarkdown == "" {
			result.PagesSkipped++
			return
		}
		if !full && !p.NeedsIndexing() {
			result.PagesSkipped++
			return
		}

		created, err := l.indexPage(p)
		if err != nil {
			result.PagesFailed++
			slog.Error("failed to index page",
				slog.Int64("page_id", p.ID),
				slog.String("url", p.URL),
				slog.Any("error", err))
			return
		}
		result.PagesIndexed++
		result.ChunksCreated += created
	}

	var err error
	if full {
		err = l.scanAllPages(opts, visit)
	} else {
		// 增量扫描用 id 游标推进，失败或跳过的页面不会在下一批重复出现
		err = scanByCursor(l.ctx, func(afterID int64) ([]types.Page, error) {
			return l.core.Store().PageStore().ListNeedingIndex(l.ctx, opts, afterID, indexScanBatch)
		}, visit)
	}
	if err != nil {
		if l.ctx.Err() != nil {
			return result, err
		}
		return result, errors.New("IndexLogic.Run.PageStore.List", "internal error", err)
	}

	return result, nil
}

// scanAllPages 全量模式按分页遍历工作区内全部页面
func (l *IndexLogic) scanAllPages(opts types.GetPagesOptions, visit func(types.Page)) error {
	var page uint64 = 1
	for {
		pages, err := l.core.Store().PageStore().ListPages(l.ctx, opts, page, indexScanBatch)
		if err != nil {
			return err
		}
		if len(pages) == 0 {
			return nil
		}
		page++

		for _, p := range pages {
			visit(p)
		}

		if err := l.ctx.Err(); err != nil {
			return err
		}
	}
}

// scanByCursor 按 id 游标分批取页面，每个页面最多访问一次。
// 游标始终越过已访问的页面，单页处理失败也能保证扫描终止。
func scanByCursor(ctx context.Context, fetch func(afterID int64) ([]types.Page, error), visit func(types.Page)) error {
	var afterID int64
	for {
		pages, err := fetch(afterID)
		if err != nil {
			return err
		}
		if len(pages) == 0 {
			return nil
		}

		for _, p := range pages {
			visit(p)
			afterID = p.ID
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// indexPage 重建单个页面的切片。删旧、插新、对齐 hash 在同一事务内完成，
// 检索侧不会看到半更新状态。
func (l *IndexLogic) indexPage(page types.Page) (int, error) {
	pieces := chunker.Split(page.ContentMarkdown, chunker.Options{})

	embedModel := l.core.Srv().AI().EmbedModelName()
	chunks := make([]*types.Chunk, 0, len(pieces))

	if len(pieces) > 0 {
		texts := make([]string, 0, len(pieces))
		for _, piece := range pieces {
			texts = append(texts, piece.Text)
		}

		timer := l.core.Metrics().UpstreamRequestTimer("embedding")
		embedded, err := l.core.Srv().AI().Embedder().EmbeddingForDocument(l.ctx, page.Title, texts)
		timer.ObserveDuration()
		if err != nil {
			l.core.Metrics().UpstreamErrorInc("embedding")
			return 0, errors.New("IndexLogic.indexPage.EmbeddingForDocument", "embedding failed", err)
		}
		if len(embedded.Data) != len(pieces) {
			return 0, errors.New("IndexLogic.indexPage.EmbeddingForDocument", "embedding count mismatch", nil)
		}

		now := time.Now().Unix()
		for i, piece := range pieces {
			chunks = append(chunks, &types.Chunk{
				PageID:         page.ID,
				ChunkIndex:     i,
				SectionPath:    piece.SectionPath,
				ChunkText:      piece.Text,
				ChunkHash:      utils.SHA256(piece.Text),
				TokenCount:     ai.NumTokensText(piece.Text, ""),
				Embedding:      pgvector.NewVector(embedded.Data[i]),
				EmbeddingModel: embedModel,
				CreatedAt:      now,
			})
		}
	}

	err := l.core.Store().Transaction(l.ctx, func(ctx context.Context) error {
		if err := l.core.Store().ChunkStore().DeleteByPage(ctx, page.ID); err != nil {
			return err
		}
		if err := l.core.Store().ChunkStore().BatchCreate(ctx, chunks); err != nil {
			return err
		}
		return l.core.Store().PageStore().MarkIndexed(ctx, page.ID, page.ContentHash)
	})
	if err != nil {
		return 0, errors.New("IndexLogic.indexPage.Transaction", "internal error", err)
	}
	return len(chunks), nil
}
