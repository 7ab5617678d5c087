package sqlstore

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/docray-ai/docray/pkg/register"
	"github.com/docray-ai/docray/pkg/types"
)

func init() {
	register.RegisterFunc[*Provider](RegisterKey{}, func(provider *Provider) {
		provider.stores.RetrievalEventStore = NewRetrievalEventStore(provider)
	})
}

type RetrievalEventStore struct {
	CommonFields
}

// NewRetrievalEventStore 创建一个新的 RetrievalEventStore 实例
func NewRetrievalEventStore(provider SqlProviderAchieve) *RetrievalEventStore {
	repo := &RetrievalEventStore{}
	repo.SetProvider(provider)
	repo.SetTable(types.TABLE_RETRIEVAL_EVENT)
	repo.SetAllColumns("id", "workspace_id", "app_id", "kb_ids", "request_id", "question_sha256",
		"question_len", "timings_ms", "retrieval", "sources", "token_usage", "error", "created_at")
	return repo
}

// Create 落一条检索事件，事件只记 hash 不记原文
func (s *RetrievalEventStore) Create(ctx context.Context, data types.RetrievalEvent) error {
	if data.CreatedAt == 0 {
		data.CreatedAt = time.Now().Unix()
	}
	if len(data.KBIDs) == 0 {
		data.KBIDs = json.RawMessage("[]")
	}
	if len(data.Timings) == 0 {
		data.Timings = json.RawMessage("{}")
	}
	if len(data.Retrieval) == 0 {
		data.Retrieval = json.RawMessage("{}")
	}
	if len(data.Sources) == 0 {
		data.Sources = json.RawMessage("[]")
	}
	if len(data.TokenUsage) == 0 {
		data.TokenUsage = json.RawMessage("{}")
	}

	query := sq.Insert(s.GetTable()).
		Columns("workspace_id", "app_id", "kb_ids", "request_id", "question_sha256",
			"question_len", "timings_ms", "retrieval", "sources", "token_usage", "error", "created_at").
		Values(data.WorkspaceID, data.AppID, []byte(data.KBIDs), data.RequestID, data.QuestionSHA256,
			data.QuestionLen, []byte(data.Timings), []byte(data.Retrieval), []byte(data.Sources),
			[]byte(data.TokenUsage), data.Error, data.CreatedAt)

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

// ListEvents 分页获取检索事件，时间倒序
func (s *RetrievalEventStore) ListEvents(ctx context.Context, workspaceID, appID string, page, pageSize uint64) ([]types.RetrievalEvent, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).
		Where(sq.Eq{"workspace_id": workspaceID}).
		Limit(pageSize).Offset((page - 1) * pageSize).
		OrderBy("created_at DESC", "id DESC")
	if appID != "" {
		query = query.Where(sq.Eq{"app_id": appID})
	}

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.RetrievalEvent
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}
