package initial

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"RAGBot/internal/config"
	"RAGBot/internal/metrics"
	"RAGBot/internal/modules/rag/application/service"
	"RAGBot/internal/modules/rag/domain/repository"
	"RAGBot/internal/modules/rag/infrastructure/cache"
	"RAGBot/internal/modules/rag/infrastructure/chunking"
	"RAGBot/internal/modules/rag/infrastructure/embedding"
	"RAGBot/internal/modules/rag/infrastructure/llm"
	"RAGBot/internal/modules/rag/infrastructure/loader"
	"RAGBot/internal/modules/rag/infrastructure/mq"
	"RAGBot/internal/modules/rag/infrastructure/mq/kafka"
	"RAGBot/internal/modules/rag/infrastructure/persistence"
	"RAGBot/internal/modules/rag/infrastructure/pipeline"
	"RAGBot/internal/modules/rag/infrastructure/retry"
	"RAGBot/internal/modules/rag/infrastructure/staging"
	"RAGBot/internal/modules/rag/infrastructure/vectordb"
	"RAGBot/pkg/redis"
	"RAGBot/pkg/zlog"

	einoEmbedding "github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Components 进程级共享句柄：启动时构造一次，注入所有 handler，退出时 Close
type Components struct {
	Conf      *config.Config
	Embedder  einoEmbedding.Embedder
	ChatModel model.BaseChatModel
	Store     *vectordb.GuardedStore
	Staging   *staging.Store
	Pool      *ants.Pool

	DB     *gorm.DB
	Redis  *redis.Client
	Events *mq.EventEmitter

	IngestSvc service.IngestService
	QuerySvc  service.QueryService
	AdminSvc  service.AdminService
}

// NewComponents 按配置装配全部依赖；任一必需组件失败都会释放已创建的资源
func NewComponents(ctx context.Context, conf *config.Config) (comp *Components, err error) {
	if conf == nil {
		return nil, errors.New("nil config")
	}
	comp = &Components{Conf: conf}
	defer func() {
		if err != nil {
			if cerr := comp.Close(); cerr != nil {
				zlog.Warn("release components failed", zap.Error(cerr))
			}
			comp = nil
		}
	}()

	embedder, embMeta, err := embedding.NewEmbedderFromConfig(ctx, conf)
	if err != nil {
		return comp, fmt.Errorf("init embedder: %w", err)
	}
	chatConf := conf.AIConfig.ChatModel
	baseDelay := time.Duration(chatConf.RetryBaseDelayMs) * time.Millisecond
	comp.Embedder = embedding.WithRetry(embedder, retry.Policy{
		MaxAttempts: chatConf.RetryTimes,
		BaseDelay:   baseDelay,
		MaxDelay:    10 * time.Second,
		Retryable:   retry.IsTransient,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			zlog.Warn("embedding call failed, retrying",
				zap.String("provider", embMeta.Provider),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		},
	})

	chatModel, chatMeta, err := llm.NewChatModelFromConfig(ctx, conf)
	if err != nil {
		return comp, fmt.Errorf("init chat model: %w", err)
	}
	comp.ChatModel = llm.WithRetry(chatModel, chatMeta, chatConf.RetryTimes, baseDelay, metrics.LLMRetries.Inc)
	zlog.Info("ai components ready",
		zap.String("embedding_provider", embMeta.Provider),
		zap.String("embedding_model", embMeta.Model),
		zap.Int("embedding_dim", embMeta.Dim),
		zap.String("llm_provider", chatMeta.Provider),
		zap.String("llm_model", chatMeta.Model))

	inner, err := newVectorStore(ctx, conf, embMeta.Dim)
	if err != nil {
		return comp, fmt.Errorf("init vector store: %w", err)
	}
	comp.Store = vectordb.NewGuardedStore(inner)

	if comp.Staging, err = staging.NewStore(conf.RAGConfig.UploadDir, conf.MaxUploadBytes()); err != nil {
		return comp, err
	}

	workers := conf.RAGConfig.ExtractWorkers
	if workers <= 0 {
		workers = 4
	}
	if comp.Pool, err = ants.NewPool(workers); err != nil {
		return comp, fmt.Errorf("init extract pool: %w", err)
	}

	var ledger repository.UploadRepository
	if conf.MysqlConfig.Host != "" {
		if comp.DB, err = NewGormDB(conf); err != nil {
			return comp, fmt.Errorf("init mysql: %w", err)
		}
		ledger = persistence.NewUploadRepository(comp.DB)
	}

	var answerCache repository.AnswerCache
	if comp.Redis, err = NewRedisClient(ctx, conf); err != nil {
		return comp, fmt.Errorf("init redis: %w", err)
	}
	if comp.Redis != nil {
		answerCache = cache.NewRedisAnswerCache(comp.Redis, conf.AnswerTTL())
	}

	if len(conf.KafkaConfig.Brokers) > 0 {
		pub, perr := kafka.NewSaramaPublisher(kafka.PublisherConfig{
			Brokers:  conf.KafkaConfig.Brokers,
			ClientID: conf.KafkaConfig.ClientID,
		})
		if perr != nil {
			return comp, fmt.Errorf("init kafka publisher: %w", perr)
		}
		if comp.Events, err = mq.NewEventEmitter(pub, conf.KafkaConfig.EventTopic); err != nil {
			_ = pub.Close()
			return comp, err
		}
	}

	if err = comp.buildServices(ctx, ledger, answerCache); err != nil {
		return comp, err
	}
	return comp, nil
}

func (c *Components) buildServices(ctx context.Context, ledger repository.UploadRepository, answerCache repository.AnswerCache) error {
	conf := c.Conf
	dim := conf.AIConfig.Embedding.Dimensions

	batchLoader := loader.NewBatchLoader(loader.NewPDFLoader(), c.Pool)
	chunker := chunking.NewChunker(conf.RAGConfig.ChunkSize, conf.RAGConfig.ChunkOverlap)

	ingest, err := pipeline.NewIngestPipeline(batchLoader, chunker, c.Embedder, c.Store, dim)
	if err != nil {
		return fmt.Errorf("init ingest pipeline: %w", err)
	}
	retrieve, err := pipeline.NewRetrievePipeline(c.Embedder, c.Store, dim, conf.RAGConfig.RetrieverK)
	if err != nil {
		return fmt.Errorf("init retrieve pipeline: %w", err)
	}
	answer, err := pipeline.NewAnswerPipeline(c.ChatModel)
	if err != nil {
		return fmt.Errorf("init answer pipeline: %w", err)
	}

	c.IngestSvc = service.NewIngestService(c.Staging, ingest, ledger, answerCache, c.Events, conf.RAGConfig.KeepStagedFiles)
	c.QuerySvc = service.NewQueryService(retrieve, answer, answerCache, c.Store)
	c.AdminSvc = service.NewAdminService(c.Store, ledger, answerCache, c.Events)
	return nil
}

func newVectorStore(ctx context.Context, conf *config.Config, dim int) (repository.VectorStore, error) {
	switch conf.RAGConfig.VectorBackend {
	case config.BackendMilvus:
		cli, collection, err := NewMilvusClient(ctx, conf, dim)
		if err != nil {
			return nil, err
		}
		vs, err := vectordb.NewMilvusStore(cli, collection, dim, metricType(conf))
		if err != nil {
			_ = cli.Close()
			return nil, err
		}
		zlog.Info("vector store ready", zap.String("backend", "milvus"), zap.String("collection", collection))
		return vs, nil
	default:
		dir := filepath.Join(conf.RAGConfig.PersistDir, "vectors")
		vs, err := vectordb.OpenBadgerStore(dir, false)
		if err != nil {
			return nil, err
		}
		zlog.Info("vector store ready", zap.String("backend", "badger"), zap.String("dir", dir))
		return vs, nil
	}
}

// Close 逆序释放资源，汇总所有错误
func (c *Components) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Events != nil {
		errs = append(errs, c.Events.Close())
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if c.Pool != nil {
		c.Pool.Release()
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	return errors.Join(errs...)
}
