package pipeline

import (
	"strings"

	"RAGBot/internal/modules/rag/domain/repository"
)

// RefusalAnswer 上下文中没有答案时模型应原样返回的句子
const RefusalAnswer = "Sorry, information about that is not available at the moment."

// answerSystemTemplate 固定的客服提示词；只允许 {context} 与 {question} 两个占位符
const answerSystemTemplate = `You are a professional customer service agent, a virtual assistant who is professional, friendly and helpful.
Use the information from the context given below to answer the user's question.

Important rules:
1. When comparing prices or numbers, always do the math. If the user's budget is greater than or equal to the price of a plan, offer that plan as a possible solution.
2. Accurate answers: only use information from the "Context". If the answer is not there, politely say: "` + RefusalAnswer + `" Never make up an answer.
3. Warm language: use natural, warm and easy to understand language. Greet the user kindly.
4. Tidy format: if there is a list or a sequence of steps, use bullet points or numbers.
5. Proactive: end the answer with a positive sentence that invites further discussion, such as "Hope this helps! Is there anything else I can help you with?"
6. Short message: keep the answer brief and easy to read in a chat message.

---
Context:
{context}
---

User question:
{question}

Your answer:`

// contextSeparator 各检索片段之间的分隔
const contextSeparator = "\n\n"

// buildContext 按检索顺序拼接片段内容
func buildContext(hits []repository.SearchHit) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		c := strings.TrimSpace(h.Content)
		if c == "" {
			continue
		}
		parts = append(parts, c)
	}
	return strings.Join(parts, contextSeparator)
}

// cleanAnswer 去除首尾空白与包裹整段回答的代码块
func cleanAnswer(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") && len(s) >= 6 {
		inner := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
		// 去掉语言标记行，例如 ```markdown
		if nl := strings.IndexByte(inner, '\n'); nl >= 0 && !strings.ContainsAny(strings.TrimSpace(inner[:nl]), " \t") {
			inner = inner[nl+1:]
		}
		s = strings.TrimSpace(inner)
	}
	return s
}
