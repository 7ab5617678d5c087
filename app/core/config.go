package core

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/docray-ai/docray/app/core/srv"
)

func MustLoadBaseConfig(path string) CoreConfig {
	if path == "" {
		return LoadBaseConfigFromENV()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	conf := &CoreConfig{}
	conf.SetConfigBytes(raw)

	if err = toml.Unmarshal(raw, conf); err != nil {
		panic(err)
	}

	return *conf
}

func (c CoreConfig) LoadCustomConfig(cfg any) error {
	if len(c.bytes) == 0 {
		return nil
	}
	if err := toml.Unmarshal(c.bytes, cfg); err != nil {
		return err
	}
	return nil
}

func LoadBaseConfigFromENV() CoreConfig {
	var c CoreConfig
	c.FromENV()
	return c
}

type CoreConfig struct {
	Addr     string      `toml:"addr"`
	Log      Log         `toml:"log"`
	Postgres PGConfig    `toml:"postgres"`
	Redis    RedisConfig `toml:"redis"`

	AI srv.AIConfig `toml:"ai"`

	Rag       RagConfig       `toml:"rag"`
	Crawler   CrawlerConfig   `toml:"crawler"`
	Worker    WorkerConfig    `toml:"worker"`
	Semaphore SemaphoreConfig `toml:"semaphore"`

	bytes []byte `toml:"-"`
}

func (c *CoreConfig) SetConfigBytes(raw []byte) {
	c.bytes = raw
}

func (c *CoreConfig) FromENV() {
	c.Addr = os.Getenv("DOCRAY_SERVICE_ADDRESS")
	c.Log.FromENV()
	c.Postgres.FromENV()
	c.Redis.FromENV()
	c.AI.FromENV()
}

// RagConfig 检索问答链路的调优参数，零值字段在 Normalize 中回填默认值
type RagConfig struct {
	TopK            int     `toml:"top_k"`             // 融合后保留的候选数
	TopN            int     `toml:"top_n"`             // 重排后进入上下文的候选数
	VectorWeight    float64 `toml:"vector_weight"`     // 混合检索中向量侧的权重
	BM25Weight      float64 `toml:"bm25_weight"`       // 混合检索中词法侧的权重
	VectorK         int     `toml:"vector_k"`          // 向量检索单库候选数
	BM25K           int     `toml:"bm25_k"`            // 词法检索单库候选数
	Hybrid          bool    `toml:"hybrid"`            // 是否启用词法检索参与融合
	FTSConfig       string  `toml:"fts_config"`        // 全文检索配置，auto 表示按查询语言选择
	ContextMaxChars int     `toml:"context_max_chars"` // 上下文拼接的字符预算
	SnippetMaxChars int     `toml:"snippet_max_chars"` // 来源摘要的字符上限
	MaxSources      int     `toml:"max_sources"`       // 返回的来源上限
	InlineCitations bool    `toml:"inline_citations"`  // 是否要求模型输出 [n] 行内引用
	AppendSources   bool    `toml:"append_sources"`    // 是否在回答末尾追加参考链接
	HistoryLimit    int     `toml:"history_limit"`     // 进入压缩的历史消息条数上限
	Compaction      bool    `toml:"compaction"`        // 是否启用多轮对话压缩改写
	PrepareTimeout  int     `toml:"prepare_timeout"`   // 检索准备阶段超时（秒）
	TotalTimeout    int     `toml:"total_timeout"`     // 整次问答超时（秒）
}

func (c *RagConfig) Normalize() {
	if c.TopK <= 0 {
		c.TopK = 12
	}
	if c.TopN <= 0 {
		c.TopN = 6
	}
	if c.VectorWeight <= 0 {
		c.VectorWeight = 0.7
	}
	if c.BM25Weight <= 0 {
		c.BM25Weight = 0.3
	}
	if c.VectorK <= 0 {
		c.VectorK = c.TopK * 2
	}
	if c.BM25K <= 0 {
		c.BM25K = c.TopK * 2
	}
	if c.FTSConfig == "" {
		c.FTSConfig = "simple"
	}
	if c.ContextMaxChars <= 0 {
		c.ContextMaxChars = 12000
	}
	if c.SnippetMaxChars <= 0 {
		c.SnippetMaxChars = 300
	}
	if c.MaxSources <= 0 {
		c.MaxSources = 5
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 12
	}
	if c.PrepareTimeout <= 0 {
		c.PrepareTimeout = 20
	}
	if c.TotalTimeout <= 0 {
		c.TotalTimeout = 120
	}
}

// CrawlerConfig 抓取的全局默认值，任务 payload 可逐项覆盖
type CrawlerConfig struct {
	UserAgent    string `toml:"user_agent"`
	FetchTimeout int    `toml:"fetch_timeout"` // 单次请求超时（秒）
	MaxPages     int    `toml:"max_pages"`     // 单任务页面上限
}

// WorkerConfig 后台任务进程配置
type WorkerConfig struct {
	ID           string `toml:"id"`            // worker 标识，为空时用 hostname
	PollInterval int    `toml:"poll_interval"` // 队列空闲时的轮询间隔（秒），默认 3
	LeaseTimeout int    `toml:"lease_timeout"` // running 任务的租约时长（秒），超时被回收，默认 600
	MaxAttempts  int    `toml:"max_attempts"`  // 任务最大尝试次数，默认 3
	RefreshCron  string `toml:"refresh_cron"`  // 周期性增量抓取的 cron 表达式，为空则不启用
	Concurrency  int    `toml:"concurrency"`   // 同时执行的任务数，默认 1
}

func (c *WorkerConfig) Normalize() {
	if c.ID == "" {
		c.ID, _ = os.Hostname()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3
	}
	if c.LeaseTimeout <= 0 {
		c.LeaseTimeout = 600
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
}

type SemaphoreConfig struct {
	Chat ChatSemaphoreConfig `toml:"chat"`
}

type ChatSemaphoreConfig struct {
	MaxConcurrency int `toml:"max_concurrency"` // 问答最大并发数，默认 20
}

type PGConfig struct {
	DSN string `toml:"dsn"`
}

func (m *PGConfig) FromENV() {
	m.DSN = os.Getenv("DOCRAY_POSTGRESQL_DSN")
}

func (c PGConfig) FormatDSN() string {
	return c.DSN
}

type RedisConfig struct {
	// 单机模式配置
	Addr     string `toml:"addr"`     // Redis地址，格式: host:port
	Password string `toml:"password"` // Redis密码
	DB       int    `toml:"db"`       // Redis数据库索引 (0-15)

	// 集群模式配置
	Cluster      bool     `toml:"cluster"`       // 是否启用集群模式
	ClusterAddrs []string `toml:"cluster_addrs"` // 集群节点地址列表

	// 连接池配置
	PoolSize     int `toml:"pool_size"`      // 连接池大小，默认10
	MinIdleConns int `toml:"min_idle_conns"` // 最小空闲连接数，默认0
}

func (r *RedisConfig) FromENV() {
	r.Addr = os.Getenv("DOCRAY_REDIS_ADDR")
	r.Password = os.Getenv("DOCRAY_REDIS_PASSWORD")
	if dbStr := os.Getenv("DOCRAY_REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			r.DB = db
		}
	}
}

type Log struct {
	Level string `toml:"level"`
	Path  string `toml:"path"`
}

func (l *Log) FromENV() {
	l.Level = os.Getenv("DOCRAY_LOG_LEVEL")
	l.Path = os.Getenv("DOCRAY_LOG_PATH")
}

func (l *Log) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "info":
		return slog.LevelInfo
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}
