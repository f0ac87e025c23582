package initial

import (
	"context"
	"fmt"
	"strings"

	"RAGBot/internal/config"
	"RAGBot/internal/modules/rag/infrastructure/vectordb"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	defaultMilvusDB         = "ragbot"
	defaultMilvusCollection = "rag_chunks"
)

// NewMilvusClient 连接 Milvus，确保数据库、集合与向量索引存在并加载集合
func NewMilvusClient(ctx context.Context, conf *config.Config, dim int) (mclient.Client, string, error) {
	addr := strings.TrimSpace(conf.MilvusConfig.Address)
	dbName := strings.TrimSpace(conf.MilvusConfig.DBName)
	collection := strings.TrimSpace(conf.MilvusConfig.CollectionName)
	if dbName == "" {
		dbName = defaultMilvusDB
	}
	if collection == "" {
		collection = defaultMilvusCollection
	}

	defaultCli, err := mclient.NewClient(ctx, mclient.Config{
		Address:  addr,
		Username: strings.TrimSpace(conf.MilvusConfig.Username),
		Password: strings.TrimSpace(conf.MilvusConfig.Password),
		DBName:   "default",
	})
	if err != nil {
		return nil, "", err
	}
	defer defaultCli.Close()

	dbs, err := defaultCli.ListDatabases(ctx)
	if err != nil {
		return nil, "", err
	}
	exists := false
	for _, db := range dbs {
		if db.Name == dbName {
			exists = true
			break
		}
	}
	if !exists {
		if err := defaultCli.CreateDatabase(ctx, dbName); err != nil {
			return nil, "", err
		}
	}

	cli, err := mclient.NewClient(ctx, mclient.Config{
		Address:  addr,
		Username: strings.TrimSpace(conf.MilvusConfig.Username),
		Password: strings.TrimSpace(conf.MilvusConfig.Password),
		DBName:   dbName,
	})
	if err != nil {
		return nil, "", err
	}
	if err := ensureCollection(ctx, cli, collection, dim, metricType(conf)); err != nil {
		_ = cli.Close()
		return nil, "", err
	}
	if err := cli.LoadCollection(ctx, collection, false); err != nil {
		_ = cli.Close()
		return nil, "", err
	}
	return cli, collection, nil
}

func ensureCollection(ctx context.Context, cli mclient.Client, collection string, dim int, metric entity.MetricType) error {
	has, err := cli.HasCollection(ctx, collection)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	varchar := func(name string, maxLen int) *entity.Field {
		return &entity.Field{
			Name:       name,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": fmt.Sprintf("%d", maxLen)},
		}
	}
	schema := &entity.Schema{
		CollectionName: collection,
		Description:    "RAGBot document chunks",
		Fields: []*entity.Field{
			{
				Name:       vectordb.FieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       vectordb.FieldVector,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{entity.TypeParamDim: fmt.Sprintf("%d", dim)},
			},
			varchar(vectordb.FieldUserID, 128),
			varchar(vectordb.FieldSource, 512),
			{Name: vectordb.FieldPage, DataType: entity.FieldTypeInt64},
			{Name: vectordb.FieldChunkIndex, DataType: entity.FieldTypeInt64},
			varchar(vectordb.FieldFileID, 64),
			varchar(vectordb.FieldContent, 4096*4),
		},
	}
	if err := cli.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return err
	}

	idx, err := entity.NewIndexAUTOINDEX(metric)
	if err != nil {
		return err
	}
	if err := cli.CreateIndex(ctx, collection, vectordb.FieldVector, idx, false); err != nil {
		return err
	}
	// user_id 过滤走标量索引
	return cli.CreateIndex(ctx, collection, vectordb.FieldUserID, entity.NewScalarIndex(), false)
}

func metricType(conf *config.Config) entity.MetricType {
	switch strings.ToUpper(strings.TrimSpace(conf.MilvusConfig.MetricType)) {
	case "L2":
		return entity.L2
	case "IP":
		return entity.IP
	default:
		return entity.COSINE
	}
}
