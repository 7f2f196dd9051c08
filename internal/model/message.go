package model

import "time"

// 会话通道事件名
const (
	EventUserQuestion = "user_question"
	EventBotAnswer    = "bot_answer"
	EventHeartbeat    = "heartbeat"
)

// QuestionRequest 提问请求（一次性接口与会话通道共用）
type QuestionRequest struct {
	Question string `json:"question"`
}

// AnswerPayload 回答载荷
type AnswerPayload struct {
	Question        string        `json:"question"`
	Answer          string        `json:"answer"`
	Intent          Intent        `json:"intent"`
	MatchedQuestion string        `json:"matched_question,omitempty"`
	Events          []ScoredEvent `json:"events,omitempty"`
	AIEnhanced      bool          `json:"ai_enhanced"`
}

// ErrorPayload 错误载荷
type ErrorPayload struct {
	Error string `json:"error"`
}

// SessionMessage 会话通道消息信封
type SessionMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// InboundMessage 会话通道入站消息
type InboundMessage struct {
	Event string          `json:"event"`
	Data  QuestionRequest `json:"data"`
}

// HistoryEntry 会话历史记录
type HistoryEntry struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Intent    Intent    `json:"intent"`
	Timestamp time.Time `json:"timestamp"`
}

// FAQEntry FAQ 条目（下标即身份）
type FAQEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
