package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	for _, k := range []string{"LLM_PROVIDER", "RAG_CHUNK_SIZE", "RAG_CHUNK_OVERLAP", "RETRIEVER_K", "PERSIST_DIR", "UPLOAD_DIR", "GROQ_BASE_URL"} {
		t.Setenv(k, "")
	}
	t.Setenv("UNIPDF_LICENSE_KEY", "test-key")
	conf, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, ProviderGroq, conf.AIConfig.ChatModel.Provider)
	assert.Equal(t, 1000, conf.RAGConfig.ChunkSize)
	assert.Equal(t, 100, conf.RAGConfig.ChunkOverlap)
	assert.Equal(t, 3, conf.RAGConfig.RetrieverK)
	assert.Equal(t, "./chroma_store", conf.RAGConfig.PersistDir)
	assert.Equal(t, "./uploaded_pdfs", conf.RAGConfig.UploadDir)
	assert.Equal(t, DefaultGroqBaseURL, conf.ChatProvider().BaseURL)
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	p := writeConfig(t, `
[aiConfig.chatModel]
provider = "openai"
[aiConfig.chatModel.openai]
model = "gpt-4o"
[ragConfig]
chunkSize = 800
retrieverK = 5
`)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("RETRIEVER_K", "7")
	t.Setenv("UNIPDF_LICENSE_KEY", " env-key ")

	conf, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, conf.AIConfig.ChatModel.Provider)
	assert.Equal(t, "gpt-4o", conf.ChatProvider().Model)
	assert.Equal(t, "sk-test", conf.ChatProvider().APIKey)
	assert.Equal(t, 800, conf.RAGConfig.ChunkSize)
	assert.Equal(t, 7, conf.RAGConfig.RetrieverK)
	assert.Equal(t, "env-key", conf.RAGConfig.PDFLicenseKey)
}

func TestLoadRequiresPDFLicense(t *testing.T) {
	t.Setenv("UNIPDF_LICENSE_KEY", "")
	_, err := Load(writeConfig(t, "[ragConfig]\nchunkSize = 800\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNIPDF_LICENSE_KEY")

	p := writeConfig(t, "[ragConfig]\npdfLicenseKey = \"file-key\"\n")
	conf, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "file-key", conf.RAGConfig.PDFLicenseKey)
}

func TestLoadRejectsUnsupportedProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "anthropic")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported LLM provider")
}

func TestLoadRejectsBadNumber(t *testing.T) {
	t.Setenv("RAG_CHUNK_SIZE", "big")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RAG_CHUNK_SIZE")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
		errSub string
	}{
		{"ok", func(c *Config) {}, ""},
		{"provider is case insensitive", func(c *Config) { c.AIConfig.ChatModel.Provider = " OpenAI " }, ""},
		{"overlap too large", func(c *Config) { c.RAGConfig.ChunkOverlap = 1000 }, "chunk overlap"},
		{"zero k", func(c *Config) { c.RAGConfig.RetrieverK = 0 }, "retriever k"},
		{"milvus without address", func(c *Config) { c.RAGConfig.VectorBackend = "milvus" }, "milvusConfig.address"},
		{"unknown backend", func(c *Config) { c.RAGConfig.VectorBackend = "chroma" }, "vector backend"},
		{"missing pdf license", func(c *Config) { c.RAGConfig.PDFLicenseKey = "" }, "pdfLicenseKey"},
		{"blank pdf license", func(c *Config) { c.RAGConfig.PDFLicenseKey = "  " }, "pdfLicenseKey"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			c.RAGConfig.PDFLicenseKey = "test-key"
			tc.mutate(c)
			err := c.Validate()
			if tc.errSub == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errSub)
		})
	}
}

func TestTimeoutsFallBackToDefaults(t *testing.T) {
	c := Default()
	c.TimeoutConfig = TimeoutConfig{}
	assert.Equal(t, int64(60), int64(c.QueryTimeout().Seconds()))
	assert.Equal(t, int64(300), int64(c.IngestTimeout().Seconds()))
	assert.Equal(t, int64(50<<20), c.MaxUploadBytes())
}
