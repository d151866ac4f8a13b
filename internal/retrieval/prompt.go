package retrieval

import (
	"fmt"

	"campus-rag-go/pkg/llm"
)

// RefusalMessage 是无关问题的固定回复。
const RefusalMessage = `I'm the campus knowledge assistant, so I can only help with questions about the university. I can answer questions about:

**Academics**
- Courses, programs and departments
- Exam schedules and the academic calendar
- Admission procedures and fees

**People and places**
- Faculty details and cabin locations
- Deans, department heads and mentors
- Hostel, library and campus facilities

**Student services**
- Placements and internships
- Research and projects

Your question appears to be outside that scope. Try asking something like:
- "When does the mid-semester exam start?"
- "Where is TTS 4821's cabin?"
- "Who is the dean of the School of Computing?"`

// ErrorReply 是查询失败时返回给用户的致歉文本。
const ErrorReply = "I apologize, but I encountered an error while processing your question. Please try again later or contact the administrator if the problem persists."

const contextPrompt = `You are the campus knowledge assistant for the university. Your job is to give students, faculty and staff accurate, helpful answers about academics, procedures, policies and campus life.

## Context from university documents:
%s
## Response guidelines:
1. **Accuracy first**: base your answer on the context above
2. **Cite sources**: mention the source document when you use it (e.g. "According to [document name]...")
3. **Be complete**: give detailed, well-structured answers
4. **Organize**: use bullet points, numbered lists or sections where they help
5. **Acknowledge gaps**: if the context does not fully answer the question, say what is missing
6. **Synthesize**: combine information from several documents into one answer
7. **Professional tone**: friendly but professional
8. **Actionable**: give next steps or contacts when applicable
%s
## Avoid:
- Inventing information that is not in the context
- Vague answers; be specific with dates, numbers and procedures
- Ignoring contradictions; if documents conflict, say so`

const structuredInstructions = `
## Structured data:
- Extract EXACT values from the context (names, numbers, IDs, room numbers)
- Present them clearly, as a table or list when there are several items
- For a specific ID or number, report ALL related information found
- Do not paraphrase structured values; copy them from the context
`

const noContextPrompt = `You are the campus knowledge assistant for the university.

**Important**: no matching documents were found in the knowledge base for this question.

## Your response should:
1. Explain that this information is not in the current knowledge base
2. Share general guidance if you can, clearly marked as general
3. Suggest alternatives:
   - the official university website
   - the student's academic department
   - student services
   - asking an administrator to upload the relevant documents
4. Apologize briefly and offer to help once the documents are available

Keep a friendly, helpful tone.`

// CompletionRequest 是调用语言模型所需的全部输入。
type CompletionRequest struct {
	Messages    []llm.Message `json:"messages"`
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"maxTokens"`
}

// Params 转换为 llm 客户端的生成参数。
func (c CompletionRequest) Params() *llm.GenerationParams {
	temperature, maxTokens := c.Temperature, c.MaxTokens
	return &llm.GenerationParams{Model: c.Model, Temperature: &temperature, MaxTokens: &maxTokens}
}

// BuildCompletion 根据检索结果构造系统提示词与用户消息。
func (e *Engine) BuildCompletion(res *Result) CompletionRequest {
	var system string
	if res.HasContext() {
		extra := ""
		if isStructuredQuery(res.Query, res.HasIdentifier) {
			extra = structuredInstructions
		}
		system = fmt.Sprintf(contextPrompt, res.Context, extra)
	} else {
		system = noContextPrompt
	}
	return CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: res.Query},
		},
		Model:       e.opts.Model,
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
	}
}
