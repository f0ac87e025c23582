package repository

import (
	"context"
	"strings"
)

// VectorStore 是 domain 层定义的“向量库能力抽象”。
//
// application / pipeline 只依赖本接口，infrastructure 通过适配器实现（Milvus、本地 Badger）。
// 所有检索与删除都必须带 MetadataFilter，整库删除只能走 DropCollection。

// ChunkRecord 向量写入所需的标准字段
type ChunkRecord struct {
	ID         string    `json:"id"`
	Vector     []float32 `json:"vector"`
	UserID     string    `json:"user_id"`
	Source     string    `json:"source"`
	Page       int       `json:"page"`
	ChunkIndex int       `json:"chunk_index"`
	FileID     string    `json:"file_id"`
	Content    string    `json:"content"`
}

// SearchHit 检索命中，Score 越高越相关
type SearchHit struct {
	ChunkRecord
	Score float32
}

// MetadataFilter 按元数据精确匹配，user_id 逐字节比较，不做空白归一化
type MetadataFilter struct {
	UserID string
}

// ByUser 按租户过滤
func ByUser(userID string) MetadataFilter {
	return MetadataFilter{UserID: userID}
}

// IsEmpty 空过滤条件会命中全部数据，调用方必须拒绝
func (f MetadataFilter) IsEmpty() bool {
	return strings.TrimSpace(f.UserID) == ""
}

// Match 判断记录是否满足过滤条件
func (f MetadataFilter) Match(r ChunkRecord) bool {
	if f.IsEmpty() {
		return false
	}
	return r.UserID == f.UserID
}

// exprEscaper Milvus 字符串字面量只识别 \\ 与 \" 转义，其余字符原样保留
var exprEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Expr 转换为 Milvus 布尔表达式
//
// 示例输出：
//
//	user_id == "U123"
func (f MetadataFilter) Expr() string {
	return `user_id == "` + exprEscaper.Replace(f.UserID) + `"`
}

// VectorStore 向量数据库接口
type VectorStore interface {
	Upsert(ctx context.Context, records []ChunkRecord) ([]string, error)
	// Search 返回至多 topK 条满足 filter 的记录，按 Score 降序；同分顺序由底层存储决定
	Search(ctx context.Context, vector []float32, topK int, filter MetadataFilter) ([]SearchHit, error)
	// DeleteByFilter 删除满足 filter 的全部记录，无匹配时不报错
	DeleteByFilter(ctx context.Context, filter MetadataFilter) error
	// Flush 将已写入数据持久化
	Flush(ctx context.Context) error
	// DropCollection 销毁整个集合，之后所有操作都会失败
	DropCollection(ctx context.Context) error
	Close() error
}
