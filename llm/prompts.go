package llm

import (
	"fmt"
	"strings"

	"github.com/BaSui01/askflow/types"
)

const plannerSystemPrompt = `You are a task planner for a document question-answering agent.
Understand the user query and produce a structured task plan.
Output ONLY a JSON object with the fields:
  "topic": short name of the subject domain (Chinese allowed),
  "intent": concise natural language description of what the user wants,
  "task_plan": optional list of short step names.
Example: {"topic": "订单系统", "intent": "查询订单接口并理解参数含义", "task_plan": ["retrieve", "answer"]}`

const judgeSystemPrompt = `You are a retrieval quality auditor for a document question-answering system.
Evaluate whether the retrieved evidence is semantically relevant to the user query and the planned intent.
If the evidence is clearly from the wrong domain (for example APIs about orders while the user asks about UI layout),
prefer fixing the query (query_rewrite) over redoing the retrieval.

Output ONLY a JSON object with the fields:
- "status": "pass" when the evidence matches the query, "revise" when it is partially relevant or mismatched, "fail" when it cannot be recovered
- "reason": short justification
- "action": "redo_retriever" (same query again), "query_rewrite" (propose a better query), "stop" (give up), or null when status is "pass"
- "rewrite_query": when action is "query_rewrite", a SHORT keyword query (<= 20 Chinese characters or <= 10 English words); otherwise null`

const generatorSystemPrompt = `You answer questions using only the evidence provided.
If the evidence does not contain the answer, say so briefly. Answer in the language of the question.`

func plannerMessages(query string) []Message {
	return []Message{
		{Role: RoleSystem, Content: plannerSystemPrompt},
		{Role: RoleUser, Content: "User query:\n" + query},
	}
}

func judgeMessages(req types.JudgeRequest) []Message {
	var b strings.Builder
	fmt.Fprintf(&b, "User query:\n%s\n\n", req.Query)
	fmt.Fprintf(&b, "Task intent:\n%s (topic: %s)\n\n", req.Intent.Intent, req.Intent.Topic)
	fmt.Fprintf(&b, "Draft answer:\n%s\n\n", req.Draft)
	b.WriteString("Retrieved evidence:\n")
	writeEvidence(&b, req.Evidence)
	return []Message{
		{Role: RoleSystem, Content: judgeSystemPrompt},
		{Role: RoleUser, Content: b.String()},
	}
}

func generatorMessages(req types.GenerateRequest) []Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Question:\n%s\n\n", req.Query)
	if req.Intent.Topic != "" && req.Intent.Topic != types.UnknownTopic {
		fmt.Fprintf(&b, "Topic: %s\nIntent: %s\n\n", req.Intent.Topic, req.Intent.Intent)
	}
	b.WriteString("Evidence:\n")
	writeEvidence(&b, req.Evidence)
	return []Message{
		{Role: RoleSystem, Content: generatorSystemPrompt},
		{Role: RoleUser, Content: b.String()},
	}
}

func writeEvidence(b *strings.Builder, hits []types.Hit) {
	if len(hits) == 0 {
		b.WriteString("(no evidence)\n")
		return
	}
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(b, "[%s]\n%s\n(score=%.4f)\n", h.Title, h.Chunk, h.Score)
	}
}
