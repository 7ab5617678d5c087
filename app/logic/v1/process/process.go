// Package process 实现任务 worker：队列轮询、租约回收与周期性增量刷新。
package process

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/robfig/cron/v3"

	"github.com/docray-ai/docray/app/core"
	"github.com/docray-ai/docray/pkg/safe"
)

type Process struct {
	core    *core.Core
	cron    *cron.Cron
	running cmap.ConcurrentMap[string, int64] // job id -> 领取时间
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewProcess(core *core.Core) *Process {
	return &Process{
		core:    core,
		cron:    cron.New(),
		running: cmap.New[int64](),
	}
}

// Start 启动轮询循环与 cron 刷新，立即返回
func (p *Process) Start() error {
	cfg := p.core.Cfg().Worker

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	if cfg.RefreshCron != "" {
		if _, err := p.cron.AddFunc(cfg.RefreshCron, func() {
			safe.Run(func() {
				p.enqueueRefresh(ctx)
			})
		}); err != nil {
			cancel()
			return err
		}
		p.cron.Start()
	}

	for i := 0; i < cfg.Concurrency; i++ {
		p.wg.Add(1)
		go safe.Run(func() {
			defer p.wg.Done()
			p.pollLoop(ctx)
		})
	}

	slog.Info("job worker started",
		slog.String("worker_id", cfg.ID),
		slog.Int("concurrency", cfg.Concurrency),
		slog.String("refresh_cron", cfg.RefreshCron))
	return nil
}

// Stop 停止领取新任务并等待在执行的任务结束
func (p *Process) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	stopCtx := p.cron.Stop()
	<-stopCtx.Done()
	p.wg.Wait()
}

// Running 当前正在执行的任务数
func (p *Process) Running() int {
	return p.running.Count()
}

func (p *Process) pollLoop(ctx context.Context) {
	cfg := p.core.Cfg().Worker
	interval := time.Duration(cfg.PollInterval) * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		p.reclaimStale(ctx)

		claimed, err := p.claimAndRun(ctx)
		if err != nil {
			slog.Error("job claim failed", slog.Any("error", err))
		}
		if claimed {
			// 队列非空时不等轮询间隔，继续领取
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// reclaimStale 回收租约过期的 running 任务，单次最多 10 条
func (p *Process) reclaimStale(ctx context.Context) {
	cfg := p.core.Cfg().Worker
	olderThan := time.Now().Unix() - int64(cfg.LeaseTimeout)

	n, err := p.core.Store().JobStore().RequeueStale(ctx, olderThan, 10)
	if err != nil {
		slog.Error("failed to reclaim stale jobs", slog.Any("error", err))
		return
	}
	if n > 0 {
		slog.Warn("reclaimed stale jobs", slog.Int64("count", n))
	}
}
