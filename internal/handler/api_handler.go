package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/campverse/campverse-bot/internal/metrics"
	"github.com/campverse/campverse-bot/internal/model"
	"github.com/campverse/campverse-bot/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxRequestBytes 入站请求体与会话帧的上限
const maxRequestBytes = 8 << 10

// QuestionRouter 问答路由
type QuestionRouter interface {
	Route(ctx context.Context, question string) (*model.AnswerPayload, error)
}

// EventCatalog 活动缓存
type EventCatalog interface {
	FetchEvents(ctx context.Context) ([]model.Event, error)
	Count() int
	FetchedAt() time.Time
}

// FAQCorpus FAQ 语料
type FAQCorpus interface {
	Count() int
}

// APIHandler HTTP 接口处理器
type APIHandler struct {
	serviceName string
	router      QuestionRouter
	events      EventCatalog
	faq         FAQCorpus
	enhancer    service.Enhancer
	sessions    *service.SessionService
	logger      *zap.Logger
}

// NewAPIHandler 创建 API 处理器
func NewAPIHandler(serviceName string, router QuestionRouter, events EventCatalog, faq FAQCorpus,
	enhancer service.Enhancer, sessions *service.SessionService, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		serviceName: serviceName,
		router:      router,
		events:      events,
		faq:         faq,
		enhancer:    enhancer,
		sessions:    sessions,
		logger:      logger,
	}
}

// Ask 一次性问答
func (h *APIHandler) Ask(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBytes)

	var req model.QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.RejectedQuestionsTotal.WithLabelValues("http", "too_large").Inc()
			c.JSON(http.StatusRequestEntityTooLarge, model.ErrorPayload{Error: "Question too long."})
			return
		}
		metrics.RejectedQuestionsTotal.WithLabelValues("http", "bad_request").Inc()
		c.JSON(http.StatusBadRequest, model.ErrorPayload{Error: "Invalid request body."})
		return
	}

	start := time.Now()
	payload, err := answer(c.Request.Context(), h.router, req.Question, h.logger)
	metrics.RouteDuration.WithLabelValues("http").Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.RejectedQuestionsTotal.WithLabelValues("http", rejectReason(err)).Inc()
		status := http.StatusInternalServerError
		if service.IsValidationError(err) {
			status = http.StatusBadRequest
		}
		c.JSON(status, model.ErrorPayload{Error: service.PublicMessage(err)})
		return
	}

	c.JSON(http.StatusOK, payload)
}

// RefreshEvents 立即刷新活动缓存
func (h *APIHandler) RefreshEvents(c *gin.Context) {
	events, err := h.events.FetchEvents(c.Request.Context())
	if err != nil {
		h.logger.Error("手动刷新活动失败", zap.Error(err))
		c.JSON(http.StatusBadGateway, model.ErrorPayload{Error: "Failed to refresh events."})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"count":      len(events),
		"fetched_at": h.events.FetchedAt(),
	})
}

// Health 健康检查
func (h *APIHandler) Health(c *gin.Context) {
	resp := gin.H{
		"status":      "UP",
		"service":     h.serviceName,
		"faq_entries": h.faq.Count(),
		"events":      h.events.Count(),
		"ai_enhancer": h.enhancer.Available(),
	}
	if fetchedAt := h.events.FetchedAt(); !fetchedAt.IsZero() {
		resp["events_fetched_at"] = fetchedAt
	}
	if h.sessions != nil {
		resp["online_sessions"] = h.sessions.Count()
	}
	c.JSON(http.StatusOK, resp)
}

// answer 调用路由，路由之外的 panic 同样视为内部错误
func answer(ctx context.Context, router QuestionRouter, question string, logger *zap.Logger) (payload *model.AnswerPayload, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("问答处理发生 panic", zap.Any("panic", rec), zap.Stack("stack"))
			payload, err = nil, service.ErrInternal
		}
	}()

	payload, err = router.Route(ctx, question)
	if err != nil && !service.IsValidationError(err) && !errors.Is(err, service.ErrInternal) {
		err = service.ErrInternal
	}
	return payload, err
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, service.ErrEmptyQuestion):
		return "empty"
	case errors.Is(err, service.ErrQuestionTooLong):
		return "too_long"
	default:
		return "internal"
	}
}
