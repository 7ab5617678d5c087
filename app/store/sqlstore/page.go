package sqlstore

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/docray-ai/docray/pkg/register"
	"github.com/docray-ai/docray/pkg/types"
)

func init() {
	register.RegisterFunc[*Provider](RegisterKey{}, func(provider *Provider) {
		provider.stores.PageStore = NewPageStore(provider)
	})
}

type PageStore struct {
	CommonFields
}

// NewPageStore 创建一个新的 PageStore 实例
func NewPageStore(provider SqlProviderAchieve) *PageStore {
	repo := &PageStore{}
	repo.SetProvider(provider)
	repo.SetTable(types.TABLE_PAGE)
	repo.SetAllColumns("id", "workspace_id", "kb_id", "source_id", "url", "title", "content_markdown",
		"content_hash", "indexed_content_hash", "http_status", "last_crawled_at", "created_at")
	return repo
}

// Create 创建新的页面记录，返回自增ID
func (s *PageStore) Create(ctx context.Context, data types.Page) (int64, error) {
	if data.CreatedAt == 0 {
		data.CreatedAt = time.Now().Unix()
	}
	if data.LastCrawledAt == 0 {
		data.LastCrawledAt = data.CreatedAt
	}
	query := sq.Insert(s.GetTable()).
		Columns("workspace_id", "kb_id", "source_id", "url", "title", "content_markdown",
			"content_hash", "indexed_content_hash", "http_status", "last_crawled_at", "created_at").
		Values(data.WorkspaceID, data.KBID, data.SourceID, data.URL, data.Title, data.ContentMarkdown,
			data.ContentHash, data.IndexedContentHash, data.HTTPStatus, data.LastCrawledAt, data.CreatedAt).
		Suffix("RETURNING id")

	queryString, args, err := query.ToSql()
	if err != nil {
		return 0, ErrorSqlBuild(err)
	}

	var id int64
	if err = s.GetMaster(ctx).QueryRowx(queryString, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// GetPage 根据ID获取页面记录
func (s *PageStore) GetPage(ctx context.Context, kbID string, id int64) (*types.Page, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).Where(sq.Eq{"kb_id": kbID, "id": id})

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res types.Page
	if err = s.GetReplica(ctx).Get(&res, queryString, args...); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetByURL 按知识库与规范化 URL 获取页面记录
func (s *PageStore) GetByURL(ctx context.Context, kbID, url string) (*types.Page, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).Where(sq.Eq{"kb_id": kbID, "url": url})

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res types.Page
	if err = s.GetReplica(ctx).Get(&res, queryString, args...); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateContent 抓取成功后写入新内容
func (s *PageStore) UpdateContent(ctx context.Context, id int64, title, contentMarkdown, contentHash string, httpStatus int) error {
	query := sq.Update(s.GetTable()).
		Set("title", title).
		Set("content_markdown", contentMarkdown).
		Set("content_hash", contentHash).
		Set("http_status", httpStatus).
		Set("last_crawled_at", time.Now().Unix()).
		Where(sq.Eq{"id": id})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

// Touch 内容未变化时只刷新抓取时间与状态码
func (s *PageStore) Touch(ctx context.Context, id int64, httpStatus int) error {
	query := sq.Update(s.GetTable()).
		Set("http_status", httpStatus).
		Set("last_crawled_at", time.Now().Unix()).
		Where(sq.Eq{"id": id})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

// MarkFailure 抓取失败时记录状态码，正文保持上一次成功的内容
func (s *PageStore) MarkFailure(ctx context.Context, id int64, httpStatus int) error {
	return s.Touch(ctx, id, httpStatus)
}

// MarkIndexed 索引完成后对齐 indexed_content_hash
func (s *PageStore) MarkIndexed(ctx context.Context, id int64, contentHash string) error {
	query := sq.Update(s.GetTable()).
		Set("indexed_content_hash", contentHash).
		Where(sq.Eq{"id": id})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

// ListNeedingIndex 按 id 游标列出内容与索引 hash 不一致的可索引页面
func (s *PageStore) ListNeedingIndex(ctx context.Context, opts types.GetPagesOptions, afterID int64, limit uint64) ([]types.Page, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).
		Where("content_hash <> ''").
		Where("indexed_content_hash IS DISTINCT FROM content_hash").
		Where(sq.Gt{"id": afterID}).
		OrderBy("id").
		Limit(limit)
	opts.Apply(&query)

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.Page
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

// ListPages 分页获取页面记录列表
func (s *PageStore) ListPages(ctx context.Context, opts types.GetPagesOptions, page, pageSize uint64) ([]types.Page, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).
		Limit(pageSize).Offset((page - 1) * pageSize).OrderBy("id")
	opts.Apply(&query)

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.Page
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *PageStore) Total(ctx context.Context, opts types.GetPagesOptions) (int64, error) {
	query := sq.Select("COUNT(*)").From(s.GetTable())
	opts.Apply(&query)

	queryString, args, err := query.ToSql()
	if err != nil {
		return 0, ErrorSqlBuild(err)
	}

	var total int64
	if err = s.GetReplica(ctx).Get(&total, queryString, args...); err != nil {
		return 0, err
	}
	return total, nil
}

// Delete 删除页面记录
func (s *PageStore) Delete(ctx context.Context, kbID string, id int64) error {
	query := sq.Delete(s.GetTable()).Where(sq.Eq{"kb_id": kbID, "id": id})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}
