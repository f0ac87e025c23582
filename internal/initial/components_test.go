package initial

import (
	"context"
	"path/filepath"
	"testing"

	"RAGBot/internal/config"
	"RAGBot/internal/modules/rag/application/dto/request"
	"RAGBot/internal/modules/rag/application/service"
	"RAGBot/pkg/xerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	conf := config.Default()
	conf.AIConfig.ChatModel.Groq.APIKey = "gsk-test"
	conf.RAGConfig.PersistDir = filepath.Join(dir, "store")
	conf.RAGConfig.UploadDir = filepath.Join(dir, "uploads")
	conf.AIConfig.Embedding.Dimensions = 32
	conf.RAGConfig.PDFLicenseKey = "test-key"
	require.NoError(t, conf.Validate())
	return conf
}

func TestNewComponentsLocal(t *testing.T) {
	conf := localConfig(t)
	comp, err := NewComponents(context.Background(), conf)
	require.NoError(t, err)

	assert.NotNil(t, comp.Embedder)
	assert.NotNil(t, comp.ChatModel)
	assert.NotNil(t, comp.Store)
	assert.NotNil(t, comp.Pool)
	assert.Nil(t, comp.DB)
	assert.Nil(t, comp.Redis)
	assert.Nil(t, comp.Events)
	assert.DirExists(t, conf.RAGConfig.UploadDir)
	assert.DirExists(t, filepath.Join(conf.RAGConfig.PersistDir, "vectors"))

	ctx := context.Background()
	assert.Equal(t, service.HealthStatusOK, comp.AdminSvc.Health(ctx).Status)

	// 空租户删除是幂等的
	_, err = comp.AdminSvc.DeleteUserData(ctx, request.DeleteUserDataRequest{UserID: "nobody"})
	require.NoError(t, err)

	_, err = comp.AdminSvc.DeleteCollection(ctx)
	require.NoError(t, err)
	assert.Equal(t, service.HealthStatusDropped, comp.AdminSvc.Health(ctx).Status)

	_, err = comp.QuerySvc.Query(ctx, request.QueryRequest{Question: "q", UserID: "u1"})
	require.Error(t, err)
	assert.Equal(t, xerr.ServiceUnavailable, xerr.StatusOf(err))

	require.NoError(t, comp.Close())
}

func TestNewComponentsRejectsNilConfig(t *testing.T) {
	comp, err := NewComponents(context.Background(), nil)
	require.Error(t, err)
	assert.Nil(t, comp)
}

func TestNewComponentsReleasesOnFailure(t *testing.T) {
	conf := localConfig(t)
	conf.AIConfig.ChatModel.Groq.APIKey = ""

	comp, err := NewComponents(context.Background(), conf)
	require.Error(t, err)
	assert.Nil(t, comp)
	assert.Contains(t, err.Error(), "init chat model")
}

func TestCloseNil(t *testing.T) {
	var comp *Components
	assert.NoError(t, comp.Close())
}
