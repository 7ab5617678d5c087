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
		provider.stores.AppKBStore = NewAppKBStore(provider)
	})
}

type AppKBStore struct {
	CommonFields
}

// NewAppKBStore 创建一个新的 AppKBStore 实例
func NewAppKBStore(provider SqlProviderAchieve) *AppKBStore {
	repo := &AppKBStore{}
	repo.SetProvider(provider)
	repo.SetTable(types.TABLE_APP_KB)
	repo.SetAllColumns("id", "workspace_id", "app_id", "kb_id", "priority", "weight", "enabled", "created_at")
	return repo
}

// Create 创建应用与知识库的绑定
func (s *AppKBStore) Create(ctx context.Context, data types.KBBinding) error {
	if data.CreatedAt == 0 {
		data.CreatedAt = time.Now().Unix()
	}
	query := sq.Insert(s.GetTable()).
		Columns("workspace_id", "app_id", "kb_id", "priority", "weight", "enabled", "created_at").
		Values(data.WorkspaceID, data.AppID, data.KBID, data.Priority, data.Weight, data.Enabled, data.CreatedAt)

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

// ListEnabled 列出应用启用中的知识库绑定
func (s *AppKBStore) ListEnabled(ctx context.Context, workspaceID, appID string) ([]types.KBBinding, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).
		Where(sq.Eq{"workspace_id": workspaceID, "app_id": appID, "enabled": true}).
		OrderBy("priority", "kb_id")

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.KBBinding
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

// List 列出应用的全部绑定，包含停用的
func (s *AppKBStore) List(ctx context.Context, workspaceID, appID string) ([]types.KBBinding, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).
		Where(sq.Eq{"workspace_id": workspaceID, "app_id": appID}).
		OrderBy("priority", "kb_id")

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.KBBinding
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

// Update 更新绑定的权重与优先级
func (s *AppKBStore) Update(ctx context.Context, id int64, priority int, weight float64, enabled bool) error {
	query := sq.Update(s.GetTable()).
		Set("priority", priority).
		Set("weight", weight).
		Set("enabled", enabled).
		Where(sq.Eq{"id": id})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

// Delete 删除绑定
func (s *AppKBStore) Delete(ctx context.Context, id int64) error {
	query := sq.Delete(s.GetTable()).Where(sq.Eq{"id": id})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}
