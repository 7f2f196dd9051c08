package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/campverse/campverse-bot/internal/metrics"
	"github.com/campverse/campverse-bot/internal/model"
	"github.com/campverse/campverse-bot/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// historyTimeout 写会话历史的超时
const historyTimeout = 2 * time.Second

// WebSocketHandler 会话通道处理器
type WebSocketHandler struct {
	sessionService *service.SessionService
	router         QuestionRouter
	history        *service.HistoryService // 可为空
	logger         *zap.Logger
}

// NewWebSocketHandler 创建会话通道处理器
func NewWebSocketHandler(sessionService *service.SessionService, router QuestionRouter,
	history *service.HistoryService, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		sessionService: sessionService,
		router:         router,
		history:        history,
		logger:         logger,
	}
}

// HandleWebSocket 会话通道入口
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket 升级失败", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxRequestBytes)

	session := model.NewSession(uuid.New().String(), c.ClientIP(), conn)
	h.sessionService.Register(session)
	defer h.sessionService.Remove(session.SessionID)

	h.logger.Info("客户端已连接",
		zap.String("sessionId", session.SessionID),
		zap.String("clientIp", session.ClientIP))

	// 读循环串行处理，同一连接上一个问题答完才读下一个
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket 读取错误", zap.String("sessionId", session.SessionID), zap.Error(err))
			}
			break
		}

		if err := h.handleMessage(c.Request.Context(), session, data); err != nil {
			h.logger.Warn("回写消息失败", zap.String("sessionId", session.SessionID), zap.Error(err))
			break
		}
	}

	h.logger.Info("客户端已断开",
		zap.String("sessionId", session.SessionID),
		zap.Duration("duration", time.Since(session.ConnectedAt)))
}

// handleMessage 处理一条入站消息，返回的错误表示连接不可写
func (h *WebSocketHandler) handleMessage(ctx context.Context, session *model.Session, data []byte) error {
	var msg model.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warn("无法解析的消息", zap.String("sessionId", session.SessionID), zap.Error(err))
		metrics.RejectedQuestionsTotal.WithLabelValues("ws", "bad_request").Inc()
		return session.Emit(model.EventBotAnswer, model.ErrorPayload{Error: "Invalid message."})
	}

	switch msg.Event {
	case model.EventUserQuestion:
		return h.handleQuestion(ctx, session, msg.Data.Question)

	case model.EventHeartbeat:
		session.UpdateHeartbeat()
		return session.Emit(model.EventHeartbeat, nil)

	default:
		h.logger.Warn("未知事件类型",
			zap.String("sessionId", session.SessionID),
			zap.String("event", msg.Event))
		return nil
	}
}

func (h *WebSocketHandler) handleQuestion(ctx context.Context, session *model.Session, question string) error {
	// 有提问同样视为存活
	session.UpdateHeartbeat()

	start := time.Now()
	payload, err := answer(ctx, h.router, question, h.logger)
	metrics.RouteDuration.WithLabelValues("ws").Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.RejectedQuestionsTotal.WithLabelValues("ws", rejectReason(err)).Inc()
		return session.Emit(model.EventBotAnswer, model.ErrorPayload{Error: service.PublicMessage(err)})
	}

	if err := session.Emit(model.EventBotAnswer, payload); err != nil {
		return err
	}
	h.recordHistory(session.SessionID, payload)
	return nil
}

func (h *WebSocketHandler) recordHistory(sessionID string, payload *model.AnswerPayload) {
	if h.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	entry := model.HistoryEntry{
		Question:  payload.Question,
		Answer:    payload.Answer,
		Intent:    payload.Intent,
		Timestamp: time.Now(),
	}
	if err := h.history.Append(ctx, sessionID, entry); err != nil {
		h.logger.Warn("保存会话历史失败", zap.String("sessionId", sessionID), zap.Error(err))
	}
}
