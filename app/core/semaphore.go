package core

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Semaphore 并发许可。TryAcquire 非阻塞，拿不到立即返回 false；
// Acquire 阻塞等待空位，直到 ctx 结束。
type Semaphore interface {
	TryAcquire() bool
	Acquire(ctx context.Context) error
	Release()
}

// DistributedSemaphore 分布式信号量，基于 Redis 实现，多实例部署时共享并发额度
type DistributedSemaphore struct {
	redis      redis.UniversalClient
	key        string
	maxPermits int
	timeout    time.Duration
}

// NewDistributedSemaphore 创建分布式信号量
func NewDistributedSemaphore(redis redis.UniversalClient, key string, maxPermits int, timeout time.Duration) *DistributedSemaphore {
	return &DistributedSemaphore{
		redis:      redis,
		key:        key,
		maxPermits: maxPermits,
		timeout:    timeout,
	}
}

// TryAcquire 尝试获取信号量许可
func (s *DistributedSemaphore) TryAcquire() bool {
	ctx := context.Background()

	// 使用 Lua 脚本保证原子性
	script := `
		local key = KEYS[1]
		local max_permits = tonumber(ARGV[1])
		local timeout = tonumber(ARGV[2])

		local current = tonumber(redis.call('GET', key) or '0')

		if current < max_permits then
			redis.call('INCR', key)
			redis.call('EXPIRE', key, timeout)
			return 1
		else
			return 0
		end
	`

	result, err := s.redis.Eval(ctx, script, []string{s.key}, s.maxPermits, int(s.timeout.Seconds())).Int()
	if err != nil {
		return false
	}

	return result == 1
}

// Acquire 阻塞获取许可。redis 侧没有排队原语，轮询等待空位
func (s *DistributedSemaphore) Acquire(ctx context.Context) error {
	const pollInterval = 100 * time.Millisecond

	for {
		if s.TryAcquire() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Release 释放信号量许可
func (s *DistributedSemaphore) Release() {
	ctx := context.Background()

	// 使用 Lua 脚本保证原子性，避免减到负数
	script := `
		local key = KEYS[1]
		local current = tonumber(redis.call('GET', key) or '0')

		if current > 0 then
			redis.call('DECR', key)
			return 1
		else
			return 0
		end
	`

	s.redis.Eval(ctx, script, []string{s.key})
}

// GetCurrent 获取当前已使用的许可数
func (s *DistributedSemaphore) GetCurrent() int {
	ctx := context.Background()
	result, err := s.redis.Get(ctx, s.key).Int()
	if err != nil {
		return 0
	}
	return result
}

// LocalSemaphore 进程内信号量，单实例部署或未配置 redis 时使用
type LocalSemaphore struct {
	permits chan struct{}
}

func NewLocalSemaphore(maxPermits int) *LocalSemaphore {
	return &LocalSemaphore{
		permits: make(chan struct{}, maxPermits),
	}
}

func (s *LocalSemaphore) TryAcquire() bool {
	select {
	case s.permits <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *LocalSemaphore) Acquire(ctx context.Context) error {
	select {
	case s.permits <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *LocalSemaphore) Release() {
	select {
	case <-s.permits:
	default:
	}
}

// SemaphoreManager 信号量管理器，统一管理所有信号量
type SemaphoreManager struct {
	core     *Core
	chat     Semaphore
	chatOnce sync.Once
}

// NewSemaphoreManager 创建信号量管理器
func NewSemaphoreManager(core *Core) *SemaphoreManager {
	return &SemaphoreManager{
		core: core,
	}
}

// Chat 获取问答并发信号量（懒加载）。
// 配置了 redis 时用分布式实现，否则退回进程内实现。
func (m *SemaphoreManager) Chat() Semaphore {
	m.chatOnce.Do(func() {
		maxConcurrency := 20 // 默认值
		if m.core.cfg.Semaphore.Chat.MaxConcurrency > 0 {
			maxConcurrency = m.core.cfg.Semaphore.Chat.MaxConcurrency
		}

		if m.core.Redis() != nil {
			m.chat = NewDistributedSemaphore(
				m.core.Redis(),
				"docray:semaphore:chat",
				maxConcurrency,
				time.Minute*5, // 5分钟超时
			)
			return
		}
		m.chat = NewLocalSemaphore(maxConcurrency)
	})
	return m.chat
}
