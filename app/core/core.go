package core

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/docray-ai/docray/app/core/srv"
	"github.com/docray-ai/docray/app/store/sqlstore"
)

type Core struct {
	cfg CoreConfig
	srv *srv.Srv

	stores     func() *sqlstore.Provider
	httpClient *http.Client
	httpEngine *gin.Engine
	redis      redis.UniversalClient

	metrics    *Metrics
	semaphores *SemaphoreManager
}

func MustSetupCore(cfg CoreConfig) *Core {
	{
		var writer io.Writer = os.Stdout
		if cfg.Log.Path != "" {
			writer = &lumberjack.Logger{
				Filename:   cfg.Log.Path,
				MaxSize:    500, // megabytes
				MaxBackups: 3,
				MaxAge:     28,   //days
				Compress:   true, // disabled by default
			}
		}
		l := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
			Level: cfg.Log.SlogLevel(),
		}))
		slog.SetDefault(l)
	}

	cfg.Rag.Normalize()
	cfg.Worker.Normalize()

	core := &Core{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Second * 30},
		metrics:    NewMetrics("docray", "core"),
		httpEngine: gin.New(),
	}

	// setup store
	setupSqlStore(core)
	setupRedis(core)

	core.semaphores = NewSemaphoreManager(core)
	core.srv = srv.SetupSrvs(srv.ApplyAI(cfg.AI))

	return core
}

func setupSqlStore(core *Core) {
	core.stores = sqlstore.MustSetup(core.cfg.Postgres)
	// 执行数据库表初始化
	if err := core.stores().Install(); err != nil {
		panic(err)
	}
	slog.Info("sql store ready")
}

// setupRedis redis 未配置时跳过，相关能力退回进程内实现
func setupRedis(core *Core) {
	cfg := core.cfg.Redis
	if cfg.Addr == "" && len(cfg.ClusterAddrs) == 0 {
		return
	}

	if cfg.Cluster {
		core.redis = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.ClusterAddrs,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
		})
		return
	}

	core.redis = redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})
}

func (s *Core) Cfg() CoreConfig {
	return s.cfg
}

func (s *Core) Store() *sqlstore.Provider {
	return s.stores()
}

func (s *Core) Srv() *srv.Srv {
	return s.srv
}

func (s *Core) HttpEngine() *gin.Engine {
	return s.httpEngine
}

func (s *Core) HttpClient() *http.Client {
	return s.httpClient
}

// Redis 可能返回 nil
func (s *Core) Redis() redis.UniversalClient {
	return s.redis
}

func (s *Core) Metrics() *Metrics {
	return s.metrics
}

func (s *Core) Semaphores() *SemaphoreManager {
	return s.semaphores
}
