package v1

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/docray-ai/docray/app/core"
	"github.com/docray-ai/docray/pkg/crawler"
	"github.com/docray-ai/docray/pkg/errors"
	"github.com/docray-ai/docray/pkg/types"
)

const (
	CRAWL_MODE_FULL        = "full"
	CRAWL_MODE_INCREMENTAL = "incremental"
)

type CrawlLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewCrawlLogic(ctx context.Context, core *core.Core) *CrawlLogic {
	return &CrawlLogic{
		ctx:  ctx,
		core: core,
	}
}

// CrawlResult 单次抓取任务的执行结果，落到 job.progress
type CrawlResult struct {
	crawler.Stats
	PagesCreated   int `json:"pages_created"`
	PagesUpdated   int `json:"pages_updated"`
	PagesUnchanged int `json:"pages_unchanged"`
}

// Run 执行一次抓取。页面逐个落库，任务失败不回滚已写入的页面，
// 下一轮增量抓取会自然补齐。
func (l *CrawlLogic) Run(payload types.CrawlJobPayload) (CrawlResult, error) {
	cfg := l.core.Cfg().Crawler

	opts := crawler.Options{
		BaseURL:         payload.BaseURL,
		SitemapURL:      payload.SitemapURL,
		SeedURLs:        payload.SeedURLs,
		IncludePatterns: payload.IncludePatterns,
		ExcludePatterns: payload.ExcludePatterns,
		MaxPages:        payload.MaxPages,
		UserAgent:       cfg.UserAgent,
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = cfg.MaxPages
	}

	client := l.core.HttpClient()
	if cfg.FetchTimeout > 0 {
		c := *client
		c.Timeout = time.Duration(cfg.FetchTimeout) * time.Second
		client = &c
	}

	sink := &pageSink{
		core:        l.core,
		payload:     payload,
		incremental: payload.Mode != CRAWL_MODE_FULL,
	}

	stats, err := crawler.New(client, nil).Run(l.ctx, opts, sink)
	result := CrawlResult{
		Stats:          stats,
		PagesCreated:   sink.created,
		PagesUpdated:   sink.updated,
		PagesUnchanged: sink.unchanged,
	}
	if err != nil {
		return result, errors.New("CrawlLogic.Run", "crawl failed", err)
	}

	slog.Info("crawl finished",
		slog.String("kb_id", payload.KBID),
		slog.Int("discovered", stats.Discovered),
		slog.Int("succeeded", stats.Succeeded),
		slog.Int("failed", stats.Failed))
	return result, nil
}

// pageSink 把抓取结果写进页面表
type pageSink struct {
	core        *core.Core
	payload     types.CrawlJobPayload
	incremental bool

	created   int
	updated   int
	unchanged int
}

func (s *pageSink) HandlePage(ctx context.Context, page crawler.Page) error {
	existing, err := s.core.Store().PageStore().GetByURL(ctx, s.payload.KBID, page.URL)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	if existing == nil {
		_, err = s.core.Store().PageStore().Create(ctx, types.Page{
			WorkspaceID:     s.payload.WorkspaceID,
			KBID:            s.payload.KBID,
			SourceID:        s.payload.SourceID,
			URL:             page.URL,
			Title:           page.Title,
			ContentMarkdown: page.ContentMarkdown,
			ContentHash:     page.ContentHash,
			HTTPStatus:      page.HTTPStatus,
		})
		if err != nil {
			return err
		}
		s.created++
		return nil
	}

	// 增量模式下内容未变化只刷新抓取时间，索引侧据此跳过重建
	if s.incremental && existing.ContentHash == page.ContentHash {
		if err = s.core.Store().PageStore().Touch(ctx, existing.ID, page.HTTPStatus); err != nil {
			return err
		}
		s.unchanged++
		return nil
	}

	if err = s.core.Store().PageStore().UpdateContent(ctx, existing.ID, page.Title, page.ContentMarkdown, page.ContentHash, page.HTTPStatus); err != nil {
		return err
	}
	s.updated++
	return nil
}

// HandleFailure 失败的页面也落库，保留状态码便于排查，正文不动
func (s *pageSink) HandleFailure(ctx context.Context, failure crawler.Failure) error {
	existing, err := s.core.Store().PageStore().GetByURL(ctx, s.payload.KBID, failure.URL)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	status := failure.Status
	if status == 0 {
		// 网络层失败没有状态码，记一个语义接近的
		status = http.StatusBadGateway
	}

	if existing == nil {
		_, err = s.core.Store().PageStore().Create(ctx, types.Page{
			WorkspaceID: s.payload.WorkspaceID,
			KBID:        s.payload.KBID,
			SourceID:    s.payload.SourceID,
			URL:         failure.URL,
			HTTPStatus:  status,
		})
		return err
	}
	return s.core.Store().PageStore().MarkFailure(ctx, existing.ID, status)
}
