package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/docray-ai/docray/pkg/register"
	"github.com/docray-ai/docray/pkg/types"
)

func init() {
	register.RegisterFunc[*Provider](RegisterKey{}, func(provider *Provider) {
		provider.stores.JobStore = NewJobStore(provider)
	})
}

type JobStore struct {
	CommonFields
}

// NewJobStore 创建一个新的 JobStore 实例
func NewJobStore(provider SqlProviderAchieve) *JobStore {
	repo := &JobStore{}
	repo.SetProvider(provider)
	repo.SetTable(types.TABLE_JOB)
	repo.SetAllColumns("id", "workspace_id", "kb_id", "app_id", "source_id", "type", "status",
		"payload", "progress", "error", "started_at", "finished_at", "created_at")
	return repo
}

// Create 创建新的任务记录
func (s *JobStore) Create(ctx context.Context, data types.Job) error {
	if data.CreatedAt == 0 {
		data.CreatedAt = time.Now().Unix()
	}
	if data.Status == "" {
		data.Status = types.JOB_STATUS_QUEUED
	}
	if len(data.Payload) == 0 {
		data.Payload = json.RawMessage("{}")
	}
	if len(data.Progress) == 0 {
		data.Progress = json.RawMessage("{}")
	}
	query := sq.Insert(s.GetTable()).
		Columns("id", "workspace_id", "kb_id", "app_id", "source_id", "type", "status",
			"payload", "progress", "error", "started_at", "finished_at", "created_at").
		Values(data.ID, data.WorkspaceID, data.KBID, data.AppID, data.SourceID, data.Type, data.Status,
			[]byte(data.Payload), []byte(data.Progress), data.Error, data.StartedAt, data.FinishedAt, data.CreatedAt)

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

// GetJob 根据ID获取任务记录
func (s *JobStore) GetJob(ctx context.Context, id string) (*types.Job, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).Where(sq.Eq{"id": id})

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res types.Job
	if err = s.GetReplica(ctx).Get(&res, queryString, args...); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListJobs 分页获取任务列表，入队时间倒序
func (s *JobStore) ListJobs(ctx context.Context, opts types.ListJobOptions, page, pageSize uint64) ([]types.Job, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).
		Limit(pageSize).Offset((page - 1) * pageSize).OrderBy("created_at DESC", "id DESC")
	opts.Apply(&query)

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.Job
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *JobStore) Total(ctx context.Context, opts types.ListJobOptions) (int64, error) {
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

// claimNextQuery 拼接领取语句。领取即重置 error 列，重试轮次不残留上次失败信息
func claimNextQuery(table string, columns []string, jobTypes []string, now int64) (string, []interface{}, error) {
	// 先用 ? 占位符拼出完整语句，最后统一转成 $n
	sub := sq.Select("id").From(table).
		Where(sq.Eq{"status": types.JOB_STATUS_QUEUED, "type": jobTypes}).
		OrderBy("created_at", "id").
		Limit(1).
		Suffix("FOR UPDATE SKIP LOCKED").
		PlaceholderFormat(sq.Question)

	subQuery, subArgs, err := sub.ToSql()
	if err != nil {
		return "", nil, err
	}

	queryString := "UPDATE " + table +
		" SET status = '" + types.JOB_STATUS_RUNNING + "', started_at = " + sq.Placeholders(1) + ", error = ''" +
		" WHERE id = (" + subQuery + ") RETURNING " + strings.Join(columns, ", ")
	queryString, err = sq.Dollar.ReplacePlaceholders(queryString)
	if err != nil {
		return "", nil, err
	}
	return queryString, append([]interface{}{now}, subArgs...), nil
}

// ClaimNext 领取最早入队的任务。SKIP LOCKED 保证多个 worker 不会领到同一条，
// 没有可领取任务时返回 nil。
func (s *JobStore) ClaimNext(ctx context.Context, jobTypes []string) (*types.Job, error) {
	if len(jobTypes) == 0 {
		jobTypes = []string{types.JOB_TYPE_CRAWL, types.JOB_TYPE_INDEX}
	}

	queryString, args, err := claimNextQuery(s.GetTable(), s.GetAllColumns(), jobTypes, time.Now().Unix())
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res types.Job
	if err = s.GetMaster(ctx).QueryRowx(queryString, args...).StructScan(&res); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

// requeueStaleQuery 拼接回收语句，任务退回队列时同样清掉 error 列
func requeueStaleQuery(table string, olderThan int64, limit uint64) (string, []interface{}, error) {
	sub := sq.Select("id").From(table).
		Where(sq.Eq{"status": types.JOB_STATUS_RUNNING}).
		Where(sq.Lt{"started_at": olderThan}).
		OrderBy("started_at").
		Limit(limit).
		Suffix("FOR UPDATE SKIP LOCKED").
		PlaceholderFormat(sq.Question)

	subQuery, subArgs, err := sub.ToSql()
	if err != nil {
		return "", nil, err
	}

	queryString := "UPDATE " + table +
		" SET status = '" + types.JOB_STATUS_QUEUED + "', started_at = 0, error = '' WHERE id IN (" + subQuery + ")"
	queryString, err = sq.Dollar.ReplacePlaceholders(queryString)
	if err != nil {
		return "", nil, err
	}
	return queryString, subArgs, nil
}

// RequeueStale 回收启动时间早于 olderThan 的 running 任务，单次最多 limit 条
func (s *JobStore) RequeueStale(ctx context.Context, olderThan int64, limit uint64) (int64, error) {
	queryString, args, err := requeueStaleQuery(s.GetTable(), olderThan, limit)
	if err != nil {
		return 0, ErrorSqlBuild(err)
	}

	result, err := s.GetMaster(ctx).Exec(queryString, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// UpdateStatusIf 仅当当前状态为 from 时更新为 to，返回是否生效
func (s *JobStore) UpdateStatusIf(ctx context.Context, id, from, to string) (bool, error) {
	query := sq.Update(s.GetTable()).
		Set("status", to).
		Where(sq.Eq{"id": id, "status": from})

	if to == types.JOB_STATUS_CANCELLED {
		query = query.Set("finished_at", time.Now().Unix())
	}

	queryString, args, err := query.ToSql()
	if err != nil {
		return false, ErrorSqlBuild(err)
	}

	result, err := s.GetMaster(ctx).Exec(queryString, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Requeue 将任务重置回 queued，清理上一轮的执行痕迹
func (s *JobStore) Requeue(ctx context.Context, id string) error {
	query := sq.Update(s.GetTable()).
		Set("status", types.JOB_STATUS_QUEUED).
		Set("error", "").
		Set("started_at", 0).
		Set("finished_at", 0).
		Where(sq.Eq{"id": id})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

// UpdateProgress 更新任务进度
func (s *JobStore) UpdateProgress(ctx context.Context, id string, progress json.RawMessage) error {
	query := sq.Update(s.GetTable()).
		Set("progress", []byte(progress)).
		Where(sq.Eq{"id": id})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

// Finish 写入终态与执行结果
func (s *JobStore) Finish(ctx context.Context, id, status string, progress json.RawMessage, errMsg string) error {
	query := sq.Update(s.GetTable()).
		Set("status", status).
		Set("error", errMsg).
		Set("finished_at", time.Now().Unix()).
		Where(sq.Eq{"id": id})
	if len(progress) > 0 {
		query = query.Set("progress", []byte(progress))
	}

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}
