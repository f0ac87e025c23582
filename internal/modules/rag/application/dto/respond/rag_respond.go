package respond

import "RAGBot/internal/modules/rag/domain/document"

// SourceDocument 回答引用的来源；page 缺失时为 "N/A"
type SourceDocument struct {
	Source string `json:"source"`
	Page   any    `json:"page"`
}

type QueryRespond struct {
	Answer          string           `json:"answer"`
	SourceDocuments []SourceDocument `json:"source_documents"`
}

type UploadRespond struct {
	Message string                `json:"message"`
	Files   []document.FileResult `json:"files"`
}

type MessageRespond struct {
	Message string `json:"message"`
}

type HealthRespond struct {
	Status string `json:"status"`
}
