package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/campverse/campverse-bot/internal/metrics"
	"github.com/campverse/campverse-bot/internal/model"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("会话不存在")

// 心跳检测参数
const (
	HeartbeatCheckInterval = 30 * time.Second
	HeartbeatTimeout       = 60 * time.Second
)

// SessionService 会话通道连接管理
type SessionService struct {
	sessions map[string]*model.Session // sessionId -> session
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewSessionService 创建会话管理服务
func NewSessionService(logger *zap.Logger) *SessionService {
	return &SessionService{
		sessions: make(map[string]*model.Session),
		logger:   logger,
	}
}

// Register 注册会话
func (s *SessionService) Register(session *model.Session) {
	s.mu.Lock()
	s.sessions[session.SessionID] = session
	count := len(s.sessions)
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	s.logger.Info("会话注册成功",
		zap.String("sessionId", session.SessionID),
		zap.String("clientIp", session.ClientIP),
		zap.Int("online", count))
}

// Get 查找会话
func (s *SessionService) Get(sessionID string) (*model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

// UpdateHeartbeat 更新心跳时间
func (s *SessionService) UpdateHeartbeat(sessionID string) error {
	session, ok := s.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	session.UpdateHeartbeat()
	s.logger.Debug("心跳已更新", zap.String("sessionId", sessionID))
	return nil
}

// Remove 移除会话
func (s *SessionService) Remove(sessionID string) {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	count := len(s.sessions)
	s.mu.Unlock()

	if ok {
		metrics.ActiveSessions.Set(float64(count))
		s.logger.Info("会话已移除", zap.String("sessionId", sessionID), zap.Int("online", count))
	}
}

// Count 在线会话数
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RunHeartbeatChecker 定时检查心跳，连续丢失 3 次的会话被关闭并移除
func (s *SessionService) RunHeartbeatChecker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweep(now, HeartbeatTimeout)
		}
	}
}

// sweep 返回本轮清理的会话数
func (s *SessionService) sweep(now time.Time, timeout time.Duration) int {
	s.mu.Lock()
	var stale []*model.Session
	for id, session := range s.sessions {
		missed := session.CheckHeartbeat(now, timeout)
		if session.ShouldBeCleaned() {
			stale = append(stale, session)
			delete(s.sessions, id)
			continue
		}
		if missed > 0 {
			s.logger.Warn("会话心跳丢失",
				zap.String("sessionId", id),
				zap.Int("missedBeats", missed))
		}
	}
	count := len(s.sessions)
	s.mu.Unlock()

	for _, session := range stale {
		s.logger.Info("清理无效会话", zap.String("sessionId", session.SessionID))
		if session.Conn != nil {
			session.Conn.Close()
		}
	}
	if len(stale) > 0 {
		metrics.ActiveSessions.Set(float64(count))
	}
	return len(stale)
}
