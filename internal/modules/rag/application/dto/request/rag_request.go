package request

import "io"

// QueryRequest 问答请求
type QueryRequest struct {
	Question string `json:"question"`
	UserID   string `json:"user_id"`
}

// DeleteUserDataRequest 删除租户数据请求
type DeleteUserDataRequest struct {
	UserID string `json:"user_id"`
}

// UploadFile 单个上传文件，Open 每次返回新的读取流
type UploadFile struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}
