package agent

import "github.com/jaimegago/scribe/internal/llm"

// HistoryRecord captures one tool call end-to-end. Args is the
// post-parse, pre-resolve snapshot so reference placeholders stay
// visible; Value holds the raw result for downstream consumers like
// the execution cache. Records are append-only.
type HistoryRecord struct {
	CallID   string         `json:"call_id"`
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args"`
	Success  bool           `json:"success"`
	Summary  string         `json:"summary,omitempty"`
	Err      string         `json:"error,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`

	Value any `json:"-"`
}

// Session holds the state of one agentic run: the message transcript,
// the blackboard of intermediate results, and the execution history.
type Session struct {
	Messages   []llm.Message
	Blackboard *Blackboard
	History    []HistoryRecord
	Iteration  int

	// Token usage tracking
	TotalInputTokens  int
	TotalOutputTokens int
	TotalTokens       int
	LLMCalls          int
}

// NewSession creates a session with empty transcript, blackboard and
// history.
func NewSession() *Session {
	return &Session{
		Messages:   make([]llm.Message, 0),
		Blackboard: NewBlackboard(),
		History:    make([]HistoryRecord, 0),
	}
}

// AddMessage appends a message to the transcript.
func (s *Session) AddMessage(message llm.Message) {
	s.Messages = append(s.Messages, message)
}

// AddRecord appends a history record.
func (s *Session) AddRecord(record HistoryRecord) {
	s.History = append(s.History, record)
}

// Reset clears transcript, blackboard and history for a fresh run.
func (s *Session) Reset() {
	s.Messages = make([]llm.Message, 0)
	s.History = make([]HistoryRecord, 0)
	s.Blackboard.Clear()
	s.Iteration = 0
}

// AddTokenUsage accumulates usage from an LLM response.
func (s *Session) AddTokenUsage(usage llm.TokenUsage) {
	s.TotalInputTokens += usage.InputTokens
	s.TotalOutputTokens += usage.OutputTokens
	s.TotalTokens += usage.TotalTokens
	s.LLMCalls++
}
