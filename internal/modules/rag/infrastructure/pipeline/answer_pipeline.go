package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"RAGBot/internal/modules/rag/domain/repository"
	"RAGBot/pkg/xerr"
	"RAGBot/pkg/zlog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

type AnswerRequest struct {
	UserID   string
	Question string
	// Hits 必须是本次检索的完整结果，调用前检索已结束
	Hits []repository.SearchHit
}

type AnswerResult struct {
	Answer     string `json:"answer"`
	GenerateMs int64  `json:"generate_ms"`
}

type answerState struct {
	Req        *AnswerRequest
	Messages   []*schema.Message
	Raw        string
	Start      time.Time
	GenerateMs int64
	Err        error
}

type answerOutput struct {
	Result *AnswerResult
	Err    error
}

// AnswerPipeline 固定提示词 + 检索片段 → 单次 LLM 调用 → 清理后的回答
type AnswerPipeline struct {
	chatModel model.BaseChatModel
	tpl       prompt.ChatTemplate

	r compose.Runnable[*AnswerRequest, *answerOutput]
}

func NewAnswerPipeline(chatModel model.BaseChatModel) (*AnswerPipeline, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is nil")
	}
	p := &AnswerPipeline{
		chatModel: chatModel,
		tpl:       prompt.FromMessages(schema.FString, schema.UserMessage(answerSystemTemplate)),
	}
	r, err := p.buildGraph(context.Background())
	if err != nil {
		return nil, fmt.Errorf("build answer graph: %w", err)
	}
	p.r = r
	return p, nil
}

func (p *AnswerPipeline) Answer(ctx context.Context, req AnswerRequest) (*AnswerResult, error) {
	out, err := p.r.Invoke(ctx, &req)
	if err != nil {
		return nil, err
	}
	if out.Err != nil {
		return nil, out.Err
	}
	return out.Result, nil
}

// buildGraph 节点顺序：BuildPrompt → ChatModel → Clean
func (p *AnswerPipeline) buildGraph(ctx context.Context) (compose.Runnable[*AnswerRequest, *answerOutput], error) {
	const (
		BuildPrompt = "BuildPrompt"
		ChatModel   = "ChatModel"
		Clean       = "Clean"
	)
	g := compose.NewGraph[*AnswerRequest, *answerOutput]()
	_ = g.AddLambdaNode(BuildPrompt, compose.InvokableLambdaWithOption(p.buildPromptNode), compose.WithNodeName(BuildPrompt))
	_ = g.AddLambdaNode(ChatModel, compose.InvokableLambdaWithOption(p.chatModelNode), compose.WithNodeName(ChatModel))
	_ = g.AddLambdaNode(Clean, compose.InvokableLambdaWithOption(p.cleanNode), compose.WithNodeName(Clean))

	_ = g.AddEdge(compose.START, BuildPrompt)
	_ = g.AddEdge(BuildPrompt, ChatModel)
	_ = g.AddEdge(ChatModel, Clean)
	_ = g.AddEdge(Clean, compose.END)
	return g.Compile(ctx, compose.WithGraphName("RAGAnswerPipeline"), compose.WithNodeTriggerMode(compose.AllPredecessor))
}

func (p *AnswerPipeline) buildPromptNode(ctx context.Context, req *AnswerRequest, _ ...any) (*answerState, error) {
	st := &answerState{Req: req, Start: time.Now()}
	if req == nil {
		st.Err = xerr.Validation("answer request is nil")
		return st, nil
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		st.Err = xerr.Validation("question is required")
		return st, nil
	}
	msgs, err := p.tpl.Format(ctx, map[string]any{
		"context":  buildContext(req.Hits),
		"question": req.Question,
	})
	if err != nil {
		st.Err = xerr.Internal("format answer prompt", err)
		return st, nil
	}
	st.Messages = msgs
	return st, nil
}

func (p *AnswerPipeline) chatModelNode(ctx context.Context, st *answerState, _ ...any) (*answerState, error) {
	if st.Err != nil {
		return st, nil
	}
	start := time.Now()
	resp, err := p.chatModel.Generate(ctx, st.Messages)
	st.GenerateMs = time.Since(start).Milliseconds()
	if err != nil {
		st.Err = xerr.Upstream(fmt.Sprintf("generate answer for user %q", st.Req.UserID), err)
		return st, nil
	}
	if resp == nil {
		st.Err = xerr.Upstream("generate answer", errors.New("chat model returned nil message"))
		return st, nil
	}
	st.Raw = resp.Content
	return st, nil
}

func (p *AnswerPipeline) cleanNode(ctx context.Context, st *answerState, _ ...any) (*answerOutput, error) {
	_ = ctx
	if st.Err != nil {
		return &answerOutput{Err: st.Err}, nil
	}
	res := &AnswerResult{Answer: cleanAnswer(st.Raw), GenerateMs: st.GenerateMs}
	zlog.Info(
		"rag answer done",
		zap.String("user_id", st.Req.UserID),
		zap.Int("context_chunks", len(st.Req.Hits)),
		zap.Int("answer_len", len(res.Answer)),
		zap.Int64("generate_ms", res.GenerateMs),
		zap.Int64("ms", time.Since(st.Start).Milliseconds()),
	)
	return &answerOutput{Result: res}, nil
}
