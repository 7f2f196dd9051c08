package model

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Session 会话通道连接
type Session struct {
	SessionID     string
	ClientIP      string
	Conn          *websocket.Conn
	ConnectedAt   time.Time
	LastHeartbeat time.Time
	MissedBeats   int
	mu            sync.RWMutex // 保护心跳字段
	writeMu       sync.Mutex   // 串行化写入
}

// NewSession 创建会话
func NewSession(sessionID, clientIP string, conn *websocket.Conn) *Session {
	now := time.Now()
	return &Session{
		SessionID:     sessionID,
		ClientIP:      clientIP,
		Conn:          conn,
		ConnectedAt:   now,
		LastHeartbeat: now,
	}
}

// UpdateHeartbeat 更新心跳时间
func (s *Session) UpdateHeartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastHeartbeat = time.Now()
	s.MissedBeats = 0
}

// CheckHeartbeat 心跳超时则累计丢失次数，返回当前丢失次数
func (s *Session) CheckHeartbeat(now time.Time, timeout time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.LastHeartbeat) > timeout {
		s.MissedBeats++
	}
	return s.MissedBeats
}

// ShouldBeCleaned 判断是否应该清理
func (s *Session) ShouldBeCleaned() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.MissedBeats >= 3
}

// Emit 向连接写入一个事件（线程安全）
func (s *Session) Emit(event string, data interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.Conn.WriteJSON(SessionMessage{Event: event, Data: data})
}
