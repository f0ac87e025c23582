package document

import "strconv"

// 切片元数据键，写入向量库时每个 chunk 必须携带 source/page/user_id
const (
	MetaSource     = "source"
	MetaPage       = "page"
	MetaUserID     = "user_id"
	MetaChunkIndex = "chunk_index"
	MetaFileID     = "file_id"
)

// 文件处理状态
const (
	FileStatusOK     = "ok"
	FileStatusFailed = "failed"
)

// StagedFile 已落盘到暂存目录的上传文件
type StagedFile struct {
	FileID      string
	Filename    string // 原始文件名（不含目录）
	Path        string // 暂存路径
	Size        int64
	ContentHash string
}

// FileResult 单个文件的入库结果
type FileResult struct {
	FileID   string `json:"-"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Pages    int    `json:"pages"`
	Chunks   int    `json:"chunks"`
	Error    string `json:"error,omitempty"`
	Code     int    `json:"-"`
}

func (r FileResult) OK() bool { return r.Status == FileStatusOK }

// BatchResult 一次上传的逐文件结果
type BatchResult struct {
	UserID string       `json:"user_id"`
	Files  []FileResult `json:"files"`
}

// Succeeded 成功文件数
func (b *BatchResult) Succeeded() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, f := range b.Files {
		if f.OK() {
			n++
		}
	}
	return n
}

// TotalChunks 成功写入的 chunk 总数
func (b *BatchResult) TotalChunks() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, f := range b.Files {
		if f.OK() {
			n += f.Chunks
		}
	}
	return n
}

// FirstFailure 第一个失败的文件
func (b *BatchResult) FirstFailure() (FileResult, bool) {
	if b == nil {
		return FileResult{}, false
	}
	for _, f := range b.Files {
		if !f.OK() {
			return f, true
		}
	}
	return FileResult{}, false
}

// MetaString 读取字符串类型元数据
func MetaString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// MetaInt 读取整型元数据
func MetaInt(m map[string]any, key string) (int, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case float32:
		return int(t), true
	default:
		return 0, false
	}
}
