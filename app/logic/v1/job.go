package v1

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/docray-ai/docray/app/core"
	"github.com/docray-ai/docray/pkg/errors"
	"github.com/docray-ai/docray/pkg/types"
	"github.com/docray-ai/docray/pkg/utils"
)

type JobLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewJobLogic(ctx context.Context, core *core.Core) *JobLogic {
	return &JobLogic{
		ctx:  ctx,
		core: core,
	}
}

// EnqueueCrawl 创建抓取任务。payload 里缺省的抓取参数由 worker 执行时
// 用全局配置补齐。
func (l *JobLogic) EnqueueCrawl(workspaceID, appID string, payload types.CrawlJobPayload) (*types.Job, error) {
	if payload.BaseURL == "" && payload.SitemapURL == "" && len(payload.SeedURLs) == 0 {
		return nil, errors.New("JobLogic.EnqueueCrawl", "one of base_url, sitemap_url, seed_urls is required", nil).Code(http.StatusBadRequest)
	}
	if payload.KBID == "" {
		return nil, errors.New("JobLogic.EnqueueCrawl", "kb_id is required", nil).Code(http.StatusBadRequest)
	}
	payload.WorkspaceID = workspaceID

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.New("JobLogic.EnqueueCrawl.Marshal", "internal error", err)
	}

	job := types.Job{
		ID:          utils.GenUniqIDStr(),
		WorkspaceID: workspaceID,
		KBID:        payload.KBID,
		AppID:       appID,
		SourceID:    payload.SourceID,
		Type:        types.JOB_TYPE_CRAWL,
		Status:      types.JOB_STATUS_QUEUED,
		Payload:     raw,
	}

	if err = l.core.Store().JobStore().Create(l.ctx, job); err != nil {
		return nil, errors.New("JobLogic.EnqueueCrawl.JobStore.Create", "internal error", err)
	}
	return &job, nil
}

// EnqueueIndex 创建索引任务
func (l *JobLogic) EnqueueIndex(workspaceID, appID string, payload types.IndexJobPayload) (*types.Job, error) {
	if payload.KBID == "" {
		return nil, errors.New("JobLogic.EnqueueIndex", "kb_id is required", nil).Code(http.StatusBadRequest)
	}
	payload.WorkspaceID = workspaceID

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.New("JobLogic.EnqueueIndex.Marshal", "internal error", err)
	}

	job := types.Job{
		ID:          utils.GenUniqIDStr(),
		WorkspaceID: workspaceID,
		KBID:        payload.KBID,
		AppID:       appID,
		Type:        types.JOB_TYPE_INDEX,
		Status:      types.JOB_STATUS_QUEUED,
		Payload:     raw,
	}

	if err = l.core.Store().JobStore().Create(l.ctx, job); err != nil {
		return nil, errors.New("JobLogic.EnqueueIndex.JobStore.Create", "internal error", err)
	}
	return &job, nil
}

// GetJob 查询单个任务
func (l *JobLogic) GetJob(workspaceID, id string) (*types.Job, error) {
	job, err := l.core.Store().JobStore().GetJob(l.ctx, id)
	if err != nil && err != sql.ErrNoRows {
		return nil, errors.New("JobLogic.GetJob.JobStore.GetJob", "internal error", err)
	}
	if job == nil || err == sql.ErrNoRows || job.WorkspaceID != workspaceID {
		return nil, errors.New("JobLogic.GetJob.nil", "job not found", nil).Code(http.StatusNotFound)
	}
	return job, nil
}

// ListJobs 分页查询任务列表
func (l *JobLogic) ListJobs(opts types.ListJobOptions, page, pageSize uint64) ([]types.Job, int64, error) {
	if page == 0 {
		page = 1
	}
	if pageSize == 0 || pageSize > 100 {
		pageSize = 20
	}

	list, err := l.core.Store().JobStore().ListJobs(l.ctx, opts, page, pageSize)
	if err != nil {
		return nil, 0, errors.New("JobLogic.ListJobs.JobStore.ListJobs", "internal error", err)
	}
	total, err := l.core.Store().JobStore().Total(l.ctx, opts)
	if err != nil {
		return nil, 0, errors.New("JobLogic.ListJobs.JobStore.Total", "internal error", err)
	}
	return list, total, nil
}

// CancelJob 取消任务，仅 queued 状态可取消，running 任务随其自然结束
func (l *JobLogic) CancelJob(workspaceID, id string) error {
	if _, err := l.GetJob(workspaceID, id); err != nil {
		return err
	}

	ok, err := l.core.Store().JobStore().UpdateStatusIf(l.ctx, id, types.JOB_STATUS_QUEUED, types.JOB_STATUS_CANCELLED)
	if err != nil {
		return errors.New("JobLogic.CancelJob.JobStore.UpdateStatusIf", "internal error", err)
	}
	if !ok {
		return errors.New("JobLogic.CancelJob.conflict", "only queued jobs can be cancelled", nil).Code(http.StatusConflict)
	}
	return nil
}

// RequeueJob 将任务重新入队，清空上一轮的尝试计数
func (l *JobLogic) RequeueJob(workspaceID, id string) (*types.Job, error) {
	job, err := l.GetJob(workspaceID, id)
	if err != nil {
		return nil, err
	}
	if job.Status == types.JOB_STATUS_RUNNING {
		return nil, errors.New("JobLogic.RequeueJob.running", "job is still running", nil).Code(http.StatusConflict)
	}

	err = l.core.Store().Transaction(l.ctx, func(ctx context.Context) error {
		if err := l.core.Store().JobStore().Requeue(ctx, id); err != nil {
			return err
		}
		// 清掉 _meta 中的尝试计数，重入队从头算
		return l.core.Store().JobStore().UpdateProgress(ctx, id, json.RawMessage("{}"))
	})
	if err != nil {
		return nil, errors.New("JobLogic.RequeueJob.JobStore.Requeue", "internal error", err)
	}

	return l.GetJob(workspaceID, id)
}
