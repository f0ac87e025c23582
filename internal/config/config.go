package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"

	BackendBadger = "badger"
	BackendMilvus = "milvus"

	DefaultConfigPath  = "configs/config_local.toml"
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
)

type MainConfig struct {
	AppName    string `toml:"appName"`
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	TLSEnabled bool   `toml:"tlsEnabled"`
	CertFile   string `toml:"certFile"`
	KeyFile    string `toml:"keyFile"`
	Debug      bool   `toml:"debug"`
}

type LogConfig struct {
	LogPath    string `toml:"logPath"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"maxSizeMB"`
	MaxBackups int    `toml:"maxBackups"`
	MaxAgeDays int    `toml:"maxAgeDays"`
	Console    bool   `toml:"console"`
}

type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
}

type MilvusConfig struct {
	Address        string `toml:"address"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	DBName         string `toml:"dbName"`
	CollectionName string `toml:"collectionName"`
	MetricType     string `toml:"metricType"`
}

type KafkaConfig struct {
	Brokers    []string `toml:"brokers"`
	ClientID   string   `toml:"clientID"`
	EventTopic string   `toml:"eventTopic"`
}

type RedisConfig struct {
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	Password         string `toml:"password"`
	DB               int    `toml:"db"`
	PoolSize         int    `toml:"poolSize"`
	MinIdleConns     int    `toml:"minIdleConns"`
	AnswerTTLSeconds int    `toml:"answerTTLSeconds"`
}

type AIEmbeddingConfig struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"apiKey"`
	BaseURL        string `toml:"baseURL"`
	Model          string `toml:"model"`
	Dimensions     int    `toml:"dimensions"`
	TimeoutSeconds int    `toml:"timeoutSeconds"`
}

// ProviderConfig 单个 LLM 服务商的接入参数
type ProviderConfig struct {
	APIKey    string `toml:"apiKey"`
	AccessKey string `toml:"accessKey"`
	SecretKey string `toml:"secretKey"`
	BaseURL   string `toml:"baseURL"`
	Region    string `toml:"region"`
	Model     string `toml:"model"`
}

type AIChatModelConfig struct {
	Provider         string         `toml:"provider"`
	Temperature      float32        `toml:"temperature"`
	MaxTokens        int            `toml:"maxTokens"`
	TimeoutSeconds   int            `toml:"timeoutSeconds"`
	RetryTimes       int            `toml:"retryTimes"`
	RetryBaseDelayMs int            `toml:"retryBaseDelayMs"`
	Groq             ProviderConfig `toml:"groq"`
	OpenAI           ProviderConfig `toml:"openai"`
	Ark              ProviderConfig `toml:"ark"`
}

type AIConfig struct {
	Embedding AIEmbeddingConfig `toml:"embedding"`
	ChatModel AIChatModelConfig `toml:"chatModel"`
}

// RAGConfig 切片、召回与存储相关参数
type RAGConfig struct {
	ChunkSize       int    `toml:"chunkSize"`
	ChunkOverlap    int    `toml:"chunkOverlap"`
	RetrieverK      int    `toml:"retrieverK"`
	PersistDir      string `toml:"persistDir"`
	UploadDir       string `toml:"uploadDir"`
	VectorBackend   string `toml:"vectorBackend"`
	KeepStagedFiles bool   `toml:"keepStagedFiles"`
	MaxUploadMB     int    `toml:"maxUploadMB"`
	ExtractWorkers  int    `toml:"extractWorkers"`
	PDFLicenseKey   string `toml:"pdfLicenseKey"`
}

type TimeoutConfig struct {
	IngestSeconds int `toml:"ingestSeconds"`
	QuerySeconds  int `toml:"querySeconds"`
	AdminSeconds  int `toml:"adminSeconds"`
}

type Config struct {
	MainConfig    `toml:"mainConfig"`
	LogConfig     `toml:"logConfig"`
	MysqlConfig   `toml:"mysqlConfig"`
	MilvusConfig  `toml:"milvusConfig"`
	KafkaConfig   `toml:"kafkaConfig"`
	RedisConfig   `toml:"redisConfig"`
	AIConfig      `toml:"aiConfig"`
	RAGConfig     `toml:"ragConfig"`
	TimeoutConfig `toml:"timeoutConfig"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		MainConfig: MainConfig{AppName: "ragbot", Host: "0.0.0.0", Port: 8000},
		LogConfig:  LogConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 30, Console: true},
		MilvusConfig: MilvusConfig{
			DBName:         "ragbot",
			CollectionName: "rag_chunks",
			MetricType:     "COSINE",
		},
		KafkaConfig: KafkaConfig{ClientID: "ragbot", EventTopic: "ragbot.events"},
		RedisConfig: RedisConfig{AnswerTTLSeconds: 600},
		AIConfig: AIConfig{
			Embedding: AIEmbeddingConfig{Provider: "local", Model: "hashing-bow", Dimensions: 384, TimeoutSeconds: 30},
			ChatModel: AIChatModelConfig{
				Provider:         ProviderGroq,
				Temperature:      0.7,
				MaxTokens:        500,
				TimeoutSeconds:   60,
				RetryTimes:       3,
				RetryBaseDelayMs: 500,
				Groq:             ProviderConfig{BaseURL: DefaultGroqBaseURL, Model: "llama3-8b-8192"},
				OpenAI:           ProviderConfig{Model: "gpt-4o-mini"},
			},
		},
		RAGConfig: RAGConfig{
			ChunkSize:      1000,
			ChunkOverlap:   100,
			RetrieverK:     3,
			PersistDir:     "./chroma_store",
			UploadDir:      "./uploaded_pdfs",
			VectorBackend:  BackendBadger,
			MaxUploadMB:    50,
			ExtractWorkers: 4,
		},
		TimeoutConfig: TimeoutConfig{IngestSeconds: 300, QuerySeconds: 60, AdminSeconds: 60},
	}
}

// Path 配置文件路径，可由 RAGBOT_CONFIG 覆盖
func Path() string {
	if p := strings.TrimSpace(os.Getenv("RAGBOT_CONFIG")); p != "" {
		return p
	}
	return DefaultConfigPath
}

// Load 依次加载：默认值 → TOML 文件 → .env → 环境变量，最后校验
func Load(path string) (*Config, error) {
	conf := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, conf); err != nil {
				return nil, fmt.Errorf("decode config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	// .env 不存在时忽略，已存在的环境变量优先
	_ = godotenv.Load()

	if err := conf.applyEnv(); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("env %s: %w", key, err))
			return
		}
		*dst = n
	}

	str("LLM_PROVIDER", &c.AIConfig.ChatModel.Provider)
	str("GROQ_API_KEY", &c.AIConfig.ChatModel.Groq.APIKey)
	str("GROQ_MODEL_NAME", &c.AIConfig.ChatModel.Groq.Model)
	str("GROQ_BASE_URL", &c.AIConfig.ChatModel.Groq.BaseURL)
	str("OPENAI_API_KEY", &c.AIConfig.ChatModel.OpenAI.APIKey)
	str("OPENAI_BASE_URL", &c.AIConfig.ChatModel.OpenAI.BaseURL)
	str("OPENAI_MODEL_NAME", &c.AIConfig.ChatModel.OpenAI.Model)
	str("ARK_API_KEY", &c.AIConfig.ChatModel.Ark.APIKey)
	str("ARK_MODEL_ID", &c.AIConfig.ChatModel.Ark.Model)

	str("EMBEDDING_PROVIDER", &c.AIConfig.Embedding.Provider)
	str("EMBEDDING_MODEL_NAME", &c.AIConfig.Embedding.Model)
	str("EMBEDDING_API_KEY", &c.AIConfig.Embedding.APIKey)
	num("EMBEDDING_DIMENSIONS", &c.AIConfig.Embedding.Dimensions)

	num("RAG_CHUNK_SIZE", &c.RAGConfig.ChunkSize)
	num("RAG_CHUNK_OVERLAP", &c.RAGConfig.ChunkOverlap)
	num("RETRIEVER_K", &c.RAGConfig.RetrieverK)
	str("PERSIST_DIR", &c.RAGConfig.PersistDir)
	str("UPLOAD_DIR", &c.RAGConfig.UploadDir)
	str("VECTOR_BACKEND", &c.RAGConfig.VectorBackend)
	str("MILVUS_ADDRESS", &c.MilvusConfig.Address)
	str("UNIPDF_LICENSE_KEY", &c.RAGConfig.PDFLicenseKey)

	num("PORT", &c.MainConfig.Port)
	return errors.Join(errs...)
}

// Validate 校验配置，未知的 LLM 服务商直接报错（启动失败）
func (c *Config) Validate() error {
	c.AIConfig.ChatModel.Provider = strings.ToLower(strings.TrimSpace(c.AIConfig.ChatModel.Provider))
	switch c.AIConfig.ChatModel.Provider {
	case ProviderGroq, ProviderOpenAI, ProviderArk:
	default:
		return fmt.Errorf("unsupported LLM provider: %q", c.AIConfig.ChatModel.Provider)
	}

	// unipdf 未授权时无法提取任何文本
	c.RAGConfig.PDFLicenseKey = strings.TrimSpace(c.RAGConfig.PDFLicenseKey)
	if c.RAGConfig.PDFLicenseKey == "" {
		return errors.New("ragConfig.pdfLicenseKey is required (or set UNIPDF_LICENSE_KEY)")
	}

	c.RAGConfig.VectorBackend = strings.ToLower(strings.TrimSpace(c.RAGConfig.VectorBackend))
	switch c.RAGConfig.VectorBackend {
	case BackendBadger:
	case BackendMilvus:
		if strings.TrimSpace(c.MilvusConfig.Address) == "" {
			return errors.New("milvus backend requires milvusConfig.address")
		}
	default:
		return fmt.Errorf("unsupported vector backend: %q", c.RAGConfig.VectorBackend)
	}

	if c.RAGConfig.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.RAGConfig.ChunkSize)
	}
	if c.RAGConfig.ChunkOverlap < 0 || c.RAGConfig.ChunkOverlap >= c.RAGConfig.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.RAGConfig.ChunkSize, c.RAGConfig.ChunkOverlap)
	}
	if c.RAGConfig.RetrieverK <= 0 {
		return fmt.Errorf("retriever k must be positive, got %d", c.RAGConfig.RetrieverK)
	}
	if strings.TrimSpace(c.RAGConfig.UploadDir) == "" {
		return errors.New("upload dir is empty")
	}
	if c.RAGConfig.VectorBackend == BackendBadger && strings.TrimSpace(c.RAGConfig.PersistDir) == "" {
		return errors.New("persist dir is empty")
	}
	if c.AIConfig.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.AIConfig.Embedding.Dimensions)
	}
	return nil
}

// ChatProvider 返回当前选中服务商的参数
func (c *Config) ChatProvider() ProviderConfig {
	switch c.AIConfig.ChatModel.Provider {
	case ProviderOpenAI:
		return c.AIConfig.ChatModel.OpenAI
	case ProviderArk:
		return c.AIConfig.ChatModel.Ark
	default:
		return c.AIConfig.ChatModel.Groq
	}
}

func seconds(n, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}

func (c *Config) IngestTimeout() time.Duration { return seconds(c.TimeoutConfig.IngestSeconds, 300) }

func (c *Config) QueryTimeout() time.Duration { return seconds(c.TimeoutConfig.QuerySeconds, 60) }

func (c *Config) AdminTimeout() time.Duration { return seconds(c.TimeoutConfig.AdminSeconds, 60) }

func (c *Config) AnswerTTL() time.Duration { return seconds(c.RedisConfig.AnswerTTLSeconds, 600) }

// MaxUploadBytes 单文件大小上限
func (c *Config) MaxUploadBytes() int64 {
	mb := c.RAGConfig.MaxUploadMB
	if mb <= 0 {
		mb = 50
	}
	return int64(mb) << 20
}
