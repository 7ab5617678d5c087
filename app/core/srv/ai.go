package srv

import (
	"fmt"
	"os"
	"time"

	"github.com/docray-ai/docray/pkg/ai"
	"github.com/docray-ai/docray/pkg/ai/jina"
	"github.com/docray-ai/docray/pkg/ai/offline"
	"github.com/docray-ai/docray/pkg/ai/openai"
	"github.com/docray-ai/docray/pkg/errors"
)

const (
	PROVIDER_OPENAI  = "openai"
	PROVIDER_OFFLINE = "offline"
	PROVIDER_JINA    = "jina"
)

// Usage 指定各能力使用哪个提供方，chat/rerank 为空表示该能力不可用，
// 链路按降级路径继续工作。
type Usage struct {
	Chat      string `toml:"chat"`
	Embedding string `toml:"embedding"`
	Rerank    string `toml:"rerank"`
}

type AIConfig struct {
	Usage   Usage          `toml:"usage"`
	OpenAI  OpenAIConfig   `toml:"openai"`
	Jina    JinaConfig     `toml:"jina"`
	Offline OfflineConfig  `toml:"offline"`
	Cache   EmbedCacheSize `toml:"embed_cache"`
}

type OpenAIConfig struct {
	Token    string       `toml:"token"`
	Endpoint string       `toml:"endpoint"`
	Models   ai.ModelName `toml:"models"`
}

type JinaConfig struct {
	Token    string `toml:"token"`
	Endpoint string `toml:"endpoint"`
	Model    string `toml:"model"`
}

type OfflineConfig struct {
	Dimension int `toml:"dimension"` // 须与建表时的向量维度一致
}

// EmbedCacheSize 查询向量的进程内缓存
type EmbedCacheSize struct {
	MaxSize int `toml:"max_size"` // 默认 2048
	TTL     int `toml:"ttl"`      // 秒，默认 600
}

func (c *AIConfig) FromENV() {
	c.OpenAI.Token = os.Getenv("DOCRAY_OPENAI_TOKEN")
	c.OpenAI.Endpoint = os.Getenv("DOCRAY_OPENAI_ENDPOINT")
	c.Jina.Token = os.Getenv("DOCRAY_JINA_TOKEN")
	if c.Usage.Embedding == "" {
		c.Usage.Embedding = os.Getenv("DOCRAY_AI_EMBEDDING")
	}
	if c.Usage.Chat == "" {
		c.Usage.Chat = os.Getenv("DOCRAY_AI_CHAT")
	}
	if c.Usage.Rerank == "" {
		c.Usage.Rerank = os.Getenv("DOCRAY_AI_RERANK")
	}
}

// AI 各能力的多路选择器。chat 与 rerank 可能为 nil，调用方需判空降级。
type AI struct {
	chat      ai.ChatAI
	embed     ai.Embedder
	rerank    ai.RerankAI
	chatModel string
	embedName string
}

// SetupAI 按配置装配各能力。embedding 是唯一的硬依赖：
// 提供方在启动时可以不可达（懒加载），但必须有配置。
func SetupAI(cfg AIConfig) (*AI, error) {
	a := &AI{}

	switch cfg.Usage.Embedding {
	case PROVIDER_OPENAI:
		factory := func() (ai.Embedder, error) {
			if cfg.OpenAI.Token == "" {
				return nil, errors.New("srv.SetupAI", "openai token is empty", nil)
			}
			return openai.New(cfg.OpenAI.Token, cfg.OpenAI.Endpoint, cfg.OpenAI.Models), nil
		}
		a.embed = ai.NewLazyEmbedder(factory)
		a.embedName = cfg.OpenAI.Models.EmbeddingModel
	case PROVIDER_OFFLINE, "":
		dim := cfg.Offline.Dimension
		a.embed = offline.New(dim)
		a.embedName = offline.NAME
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Usage.Embedding)
	}

	maxSize := cfg.Cache.MaxSize
	if maxSize <= 0 {
		maxSize = 2048
	}
	ttl := time.Duration(cfg.Cache.TTL) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	a.embed = ai.NewCachedEmbedder(a.embed, maxSize, ttl)

	switch cfg.Usage.Chat {
	case PROVIDER_OPENAI:
		driver := openai.New(cfg.OpenAI.Token, cfg.OpenAI.Endpoint, cfg.OpenAI.Models)
		a.chat = driver
		a.chatModel = cfg.OpenAI.Models.ChatModel
	case "":
		// 无生成能力，问答走来源列表降级
	default:
		return nil, fmt.Errorf("unknown chat provider: %s", cfg.Usage.Chat)
	}

	switch cfg.Usage.Rerank {
	case PROVIDER_JINA:
		a.rerank = jina.New(cfg.Jina.Token, cfg.Jina.Endpoint, cfg.Jina.Model)
	case "":
		// 无重排能力，按融合得分截断
	default:
		return nil, fmt.Errorf("unknown rerank provider: %s", cfg.Usage.Rerank)
	}

	return a, nil
}

// Chat 可能返回 nil
func (a *AI) Chat() ai.ChatAI {
	return a.chat
}

func (a *AI) Embedder() ai.Embedder {
	return a.embed
}

// Rerank 可能返回 nil
func (a *AI) Rerank() ai.RerankAI {
	return a.rerank
}

func (a *AI) ChatModel() string {
	return a.chatModel
}

// EmbedModelName 写入 chunk 行，记录向量出自哪个模型
func (a *AI) EmbedModelName() string {
	return a.embedName
}
