package process

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/docray-ai/docray/app/logic/v1"
	"github.com/docray-ai/docray/pkg/types"
	"github.com/docray-ai/docray/pkg/utils"
)

var workerJobTypes = []string{types.JOB_TYPE_CRAWL, types.JOB_TYPE_INDEX}

// jobProgress progress 字段的结构：worker 租约元数据 + 执行结果
type jobProgress struct {
	Meta   types.JobMeta   `json:"_meta"`
	Result json.RawMessage `json:"result,omitempty"`
}

func parseProgress(raw json.RawMessage) jobProgress {
	var progress jobProgress
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &progress)
	}
	return progress
}

func marshalProgress(progress jobProgress) json.RawMessage {
	raw, _ := json.Marshal(progress)
	return raw
}

// claimAndRun 领取一条任务并执行到终态。返回是否领到了任务。
func (p *Process) claimAndRun(ctx context.Context) (bool, error) {
	job, err := p.core.Store().JobStore().ClaimNext(ctx, workerJobTypes)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	p.running.Set(job.ID, time.Now().Unix())
	defer p.running.Remove(job.ID)

	p.handle(ctx, job)
	return true, nil
}

func (p *Process) handle(ctx context.Context, job *types.Job) {
	cfg := p.core.Cfg().Worker

	// 领取后先落租约元数据，worker 崩溃后 attempts 依然可见
	progress := parseProgress(job.Progress)
	progress.Meta.WorkerID = cfg.ID
	progress.Meta.Attempts++
	progress.Meta.UpdatedAt = time.Now().Unix()

	raw := marshalProgress(progress)
	if err := p.core.Store().JobStore().UpdateProgress(ctx, job.ID, raw); err != nil {
		slog.Error("failed to persist job lease meta", slog.String("job_id", job.ID), slog.Any("error", err))
	}

	slog.Info("job started",
		slog.String("job_id", job.ID),
		slog.String("type", job.Type),
		slog.String("kb_id", job.KBID),
		slog.Int("attempt", progress.Meta.Attempts))

	start := time.Now()
	result, err := p.dispatch(ctx, job)
	elapsed := time.Since(start)

	if err == nil {
		progress.Meta.UpdatedAt = time.Now().Unix()
		progress.Result = result
		if ferr := p.core.Store().JobStore().Finish(ctx, job.ID, types.JOB_STATUS_SUCCEEDED, marshalProgress(progress), ""); ferr != nil {
			slog.Error("failed to finish job", slog.String("job_id", job.ID), slog.Any("error", ferr))
			return
		}
		p.core.Metrics().JobProcessedInc(job.Type, types.JOB_STATUS_SUCCEEDED)
		slog.Info("job succeeded", slog.String("job_id", job.ID), slog.Duration("elapsed", elapsed))

		p.afterSuccess(ctx, job)
		return
	}

	slog.Error("job attempt failed",
		slog.String("job_id", job.ID),
		slog.String("type", job.Type),
		slog.Int("attempt", progress.Meta.Attempts),
		slog.Any("error", err))

	if progress.Meta.Attempts >= cfg.MaxAttempts {
		if ferr := p.core.Store().JobStore().Finish(ctx, job.ID, types.JOB_STATUS_FAILED, marshalProgress(progress), err.Error()); ferr != nil {
			slog.Error("failed to finish job", slog.String("job_id", job.ID), slog.Any("error", ferr))
		}
		p.core.Metrics().JobProcessedInc(job.Type, types.JOB_STATUS_FAILED)
		return
	}

	// 未到最大尝试次数，放回队列。Requeue 不清 progress，attempts 得以累计。
	if rerr := p.core.Store().JobStore().Requeue(ctx, job.ID); rerr != nil {
		slog.Error("failed to requeue job", slog.String("job_id", job.ID), slog.Any("error", rerr))
	}
	p.core.Metrics().JobProcessedInc(job.Type, "requeued")
}

func (p *Process) dispatch(ctx context.Context, job *types.Job) (json.RawMessage, error) {
	switch job.Type {
	case types.JOB_TYPE_CRAWL:
		var payload types.CrawlJobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return nil, fmt.Errorf("invalid crawl payload: %w", err)
		}
		result, err := v1.NewCrawlLogic(ctx, p.core).Run(payload)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	case types.JOB_TYPE_INDEX:
		var payload types.IndexJobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return nil, fmt.Errorf("invalid index payload: %w", err)
		}
		result, err := v1.NewIndexLogic(ctx, p.core).Run(payload)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	default:
		return nil, fmt.Errorf("unknown job type %q", job.Type)
	}
}

// afterSuccess 抓取成功后自动串一个增量索引任务，新内容尽快可检索
func (p *Process) afterSuccess(ctx context.Context, job *types.Job) {
	if job.Type != types.JOB_TYPE_CRAWL {
		return
	}

	payload, _ := json.Marshal(types.IndexJobPayload{
		WorkspaceID: job.WorkspaceID,
		KBID:        job.KBID,
		Mode:        v1.CRAWL_MODE_INCREMENTAL,
	})
	next := types.Job{
		ID:          utils.GenUniqIDStr(),
		WorkspaceID: job.WorkspaceID,
		KBID:        job.KBID,
		AppID:       job.AppID,
		SourceID:    job.SourceID,
		Type:        types.JOB_TYPE_INDEX,
		Payload:     payload,
	}
	if err := p.core.Store().JobStore().Create(ctx, next); err != nil {
		slog.Error("failed to chain index job",
			slog.String("crawl_job_id", job.ID),
			slog.Any("error", err))
		return
	}
	slog.Info("chained index job", slog.String("crawl_job_id", job.ID), slog.String("index_job_id", next.ID))
}

// enqueueRefresh 周期性增量刷新：对每个抓取过且当前空闲的源，
// 按最近一次成功的参数重新入队增量抓取。
func (p *Process) enqueueRefresh(ctx context.Context) {
	store := p.core.Store().JobStore()

	succeeded, err := store.ListJobs(ctx, types.ListJobOptions{
		Type:   types.JOB_TYPE_CRAWL,
		Status: types.JOB_STATUS_SUCCEEDED,
	}, 1, 200)
	if err != nil {
		slog.Error("refresh: failed to list succeeded crawl jobs", slog.Any("error", err))
		return
	}

	seen := map[string]bool{}
	for _, job := range succeeded {
		key := job.WorkspaceID + "/" + job.KBID + "/" + job.SourceID
		if seen[key] {
			continue // ListJobs 按入队时间倒序，首条即最近一次
		}
		seen[key] = true

		if p.sourceBusy(ctx, job) {
			continue
		}

		var payload types.CrawlJobPayload
		if err = json.Unmarshal(job.Payload, &payload); err != nil {
			slog.Error("refresh: invalid crawl payload", slog.String("job_id", job.ID), slog.Any("error", err))
			continue
		}
		payload.Mode = v1.CRAWL_MODE_INCREMENTAL

		raw, _ := json.Marshal(payload)
		next := types.Job{
			ID:          utils.GenUniqIDStr(),
			WorkspaceID: job.WorkspaceID,
			KBID:        job.KBID,
			AppID:       job.AppID,
			SourceID:    job.SourceID,
			Type:        types.JOB_TYPE_CRAWL,
			Payload:     raw,
		}
		if err = store.Create(ctx, next); err != nil {
			slog.Error("refresh: failed to enqueue crawl job", slog.Any("error", err))
			continue
		}
		slog.Info("refresh: enqueued incremental crawl",
			slog.String("kb_id", job.KBID),
			slog.String("job_id", next.ID))
	}
}

// sourceBusy 该源已有排队或执行中的抓取任务时跳过刷新
func (p *Process) sourceBusy(ctx context.Context, job types.Job) bool {
	for _, status := range []string{types.JOB_STATUS_QUEUED, types.JOB_STATUS_RUNNING} {
		jobs, err := p.core.Store().JobStore().ListJobs(ctx, types.ListJobOptions{
			WorkspaceID: job.WorkspaceID,
			KBID:        job.KBID,
			Type:        types.JOB_TYPE_CRAWL,
			Status:      status,
		}, 1, 1)
		if err != nil {
			slog.Error("refresh: failed to check source state", slog.Any("error", err))
			return true
		}
		if len(jobs) > 0 {
			return true
		}
	}
	return false
}
