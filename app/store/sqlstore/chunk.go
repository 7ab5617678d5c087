package sqlstore

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pgvector/pgvector-go"

	"github.com/docray-ai/docray/pkg/register"
	"github.com/docray-ai/docray/pkg/types"
	"github.com/docray-ai/docray/pkg/utils"
)

func init() {
	register.RegisterFunc[*Provider](RegisterKey{}, func(provider *Provider) {
		provider.stores.ChunkStore = NewChunkStore(provider)
	})
}

type ChunkStore struct {
	CommonFields
}

// NewChunkStore 创建一个新的 ChunkStore 实例
func NewChunkStore(provider SqlProviderAchieve) *ChunkStore {
	repo := &ChunkStore{}
	repo.SetProvider(provider)
	repo.SetTable(types.TABLE_CHUNK)
	repo.SetAllColumns("id", "page_id", "chunk_index", "section_path", "chunk_text",
		"chunk_hash", "token_count", "embedding", "embedding_model", "created_at")
	return repo
}

// BatchCreate 批量创建切片记录，ID 为空时生成雪花ID
func (s *ChunkStore) BatchCreate(ctx context.Context, datas []*types.Chunk) error {
	if len(datas) == 0 {
		return nil
	}

	query := sq.Insert(s.GetTable()).
		Columns("id", "page_id", "chunk_index", "section_path", "chunk_text",
			"chunk_hash", "token_count", "embedding", "embedding_model", "created_at")

	for _, item := range datas {
		if item.ID == 0 {
			item.ID = utils.GenUniqID()
		}
		if item.CreatedAt == 0 {
			item.CreatedAt = time.Now().Unix()
		}
		query = query.Values(item.ID, item.PageID, item.ChunkIndex, item.SectionPath, item.ChunkText,
			item.ChunkHash, item.TokenCount, item.Embedding, item.EmbeddingModel, item.CreatedAt)
	}

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

// DeleteByPage 重建索引前清空页面旧切片
func (s *ChunkStore) DeleteByPage(ctx context.Context, pageID int64) error {
	query := sq.Delete(s.GetTable()).Where(sq.Eq{"page_id": pageID})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

// List 按页面获取切片列表
func (s *ChunkStore) List(ctx context.Context, pageID int64) ([]types.Chunk, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).
		Where(sq.Eq{"page_id": pageID}).OrderBy("chunk_index")

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.Chunk
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *ChunkStore) CountByPage(ctx context.Context, pageID int64) (int64, error) {
	query := sq.Select("COUNT(*)").From(s.GetTable()).Where(sq.Eq{"page_id": pageID})

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

// SimilaritySearch 余弦相似度检索
func (s *ChunkStore) SimilaritySearch(ctx context.Context, opts types.SearchChunksOptions, vector pgvector.Vector, limit uint64) ([]types.RetrievedChunk, error) {
	// pgvector supported distance functions are:
	// <-> - L2 distance
	// <#> - (negative) inner product
	// <=> - cosine distance
	cosColumn, vectorArgs, _ := sq.Expr("1 - (c.embedding <=> ?) as score", vector).ToSql()
	query := sq.Select("c.id as chunk_id", "p.url", "p.title", "c.section_path", "c.chunk_text as text", cosColumn).
		From(s.GetTable() + " c").
		Join(types.TABLE_PAGE.Name() + " p ON p.id = c.page_id").
		Where("c.embedding IS NOT NULL").
		OrderBy("score DESC").
		Limit(limit)
	opts.Apply("p", &query)

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	args = append(vectorArgs, args...)

	var res []types.RetrievedChunk
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

// LexicalSearch 全文检索，ftsConfig 必须与 GIN 索引使用的配置一致才能走索引
func (s *ChunkStore) LexicalSearch(ctx context.Context, opts types.SearchChunksOptions, ftsConfig, queryText string, limit uint64) ([]types.RetrievedChunk, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, nil
	}

	rankColumn, rankArgs, _ := sq.Expr(
		"ts_rank_cd(to_tsvector(?::regconfig, c.chunk_text), plainto_tsquery(?::regconfig, ?)) as score",
		ftsConfig, ftsConfig, queryText).ToSql()
	matchExpr := sq.Expr("to_tsvector(?::regconfig, c.chunk_text) @@ plainto_tsquery(?::regconfig, ?)",
		ftsConfig, ftsConfig, queryText)

	query := sq.Select("c.id as chunk_id", "p.url", "p.title", "c.section_path", "c.chunk_text as text", rankColumn).
		From(s.GetTable() + " c").
		Join(types.TABLE_PAGE.Name() + " p ON p.id = c.page_id").
		Where(matchExpr).
		OrderBy("score DESC").
		Limit(limit)
	opts.Apply("p", &query)

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	args = append(rankArgs, args...)

	var res []types.RetrievedChunk
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}
