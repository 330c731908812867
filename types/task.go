package types

import "time"

// QuerySource records where a retrieval query came from.
type QuerySource string

const (
	SourceUser         QuerySource = "user"
	SourceQueryRewrite QuerySource = "query_rewrite"
)

// UnknownTopic is the planner fallback topic.
const UnknownTopic = "unknown"

// Hit is one ranked evidence item returned by retrieval.
type Hit struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Chunk string  `json:"text_chunk"`
	Score float64 `json:"score"`
}

// IntentContext 规划阶段产出的意图摘要。
type IntentContext struct {
	Topic    string   `json:"topic"`
	Intent   string   `json:"intent"`
	TaskPlan []string `json:"task_plan"`
}

// DefaultIntent is used when planning output cannot be parsed.
func DefaultIntent(query string) IntentContext {
	return IntentContext{Topic: UnknownTopic, Intent: query}
}

// Clone returns a deep copy.
func (c *IntentContext) Clone() *IntentContext {
	if c == nil {
		return nil
	}
	cp := *c
	cp.TaskPlan = cloneSlice(c.TaskPlan)
	return &cp
}

// RetrievalContext 当前检索轮次。Round 从 1 开始，只由 Query-Rewrite 推进。
type RetrievalContext struct {
	Round  int         `json:"round"`
	Query  string      `json:"query"`
	Source QuerySource `json:"query_source"`
	Hits   []Hit       `json:"retriever_hits"`
}

// Clone returns a deep copy.
func (c RetrievalContext) Clone() RetrievalContext {
	c.Hits = cloneSlice(c.Hits)
	return c
}

// RetrievalRound is an archived retrieval context. It is never mutated after
// being appended to the history.
type RetrievalRound struct {
	Round  int           `json:"round"`
	Query  string        `json:"query"`
	Source QuerySource   `json:"query_source"`
	Hits   []Hit         `json:"retriever_hits"`
	Critic *CriticResult `json:"critic,omitempty"`
}

// TaskMeta 任务元数据。
type TaskMeta struct {
	TaskID    string    `json:"task_id"`
	UserQuery string    `json:"user_query"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskMemory 按任务 ID 持久化的任务记忆，是其他组件读写的唯一事实来源。
type TaskMemory struct {
	Meta             TaskMeta         `json:"task_meta"`
	Intent           *IntentContext   `json:"intent_context,omitempty"`
	Retrieval        RetrievalContext `json:"retrieval_context"`
	RetrievalHistory []RetrievalRound `json:"retrieval_history"`
	Trace            []TraceEntry     `json:"execution_trace"`
	Critic           *CriticResult    `json:"critic_result,omitempty"`
}

// NewTaskMemory creates the memory for a fresh task at round 1.
func NewTaskMemory(taskID, query string, now time.Time) *TaskMemory {
	return &TaskMemory{
		Meta: TaskMeta{TaskID: taskID, UserQuery: query, CreatedAt: now.UTC()},
		Retrieval: RetrievalContext{
			Round:  1,
			Query:  query,
			Source: SourceUser,
		},
	}
}

// RetryCount returns the critic retry counter, 0 before the first critique.
func (m *TaskMemory) RetryCount() int {
	if m == nil || m.Critic == nil {
		return 0
	}
	return m.Critic.RetryCount
}

// Clone returns a deep copy.
func (m *TaskMemory) Clone() *TaskMemory {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Intent = m.Intent.Clone()
	cp.Retrieval = m.Retrieval.Clone()
	cp.Critic = m.Critic.Clone()
	if m.RetrievalHistory != nil {
		cp.RetrievalHistory = make([]RetrievalRound, len(m.RetrievalHistory))
		for i, r := range m.RetrievalHistory {
			r.Hits = cloneSlice(r.Hits)
			r.Critic = r.Critic.Clone()
			cp.RetrievalHistory[i] = r
		}
	}
	if m.Trace != nil {
		cp.Trace = make([]TraceEntry, len(m.Trace))
		for i, e := range m.Trace {
			cp.Trace[i] = e.Clone()
		}
	}
	return &cp
}

// TaskState 阶段之间传递的任务状态，运行期间由 Orchestrator 独占。
type TaskState struct {
	TaskID    string           `json:"task_id"`
	UserQuery string           `json:"user_query"`
	Intent    *IntentContext   `json:"intent_context,omitempty"`
	Retrieval RetrievalContext `json:"retrieval_context"`
	Answer    string           `json:"answer"`
	// TraceCount references the trace held in TaskMemory: the number of
	// entries recorded when this state was produced.
	TraceCount int           `json:"trace_count"`
	Critic     *CriticResult `json:"critic_result,omitempty"`
	// Route is the successor declared by the last completed stage.
	Route Stage `json:"route,omitempty"`
}

// NewTaskState creates the initial state for a task.
func NewTaskState(taskID, query string) *TaskState {
	return &TaskState{
		TaskID:    taskID,
		UserQuery: query,
		Retrieval: RetrievalContext{Round: 1, Query: query, Source: SourceUser},
	}
}

// Failed reports whether the task ended through the fail terminal.
func (s *TaskState) Failed() bool {
	return s.Critic.Status() == StatusFail
}

// Clone returns a deep copy.
func (s *TaskState) Clone() *TaskState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Intent = s.Intent.Clone()
	cp.Retrieval = s.Retrieval.Clone()
	cp.Critic = s.Critic.Clone()
	return &cp
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// GenerateRequest is the payload handed to the answer generation
// collaborator.
type GenerateRequest struct {
	Query    string        `json:"query"`
	Intent   IntentContext `json:"intent"`
	Evidence []Hit         `json:"evidence"`
}
