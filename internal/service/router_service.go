package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/campverse/campverse-bot/internal/metrics"
	"github.com/campverse/campverse-bot/internal/model"
	"go.uber.org/zap"
)

// MaxQuestionLength 问题最大字符数（去除首尾空白后）
const MaxQuestionLength = 512

var (
	ErrEmptyQuestion   = errors.New("question cannot be empty")
	ErrQuestionTooLong = fmt.Errorf("question exceeds %d characters", MaxQuestionLength)
	ErrInternal        = errors.New("internal server error")
)

// noFAQMatchAnswer FAQ 距离超过上限时的回复
const noFAQMatchAnswer = "Sorry, I couldn't find an answer to that question. " +
	"Try rephrasing it, or ask me about upcoming events, registration, or hosting on CampVerse."

// EventSearcher 活动检索能力
type EventSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]model.ScoredEvent, error)
}

// FAQRetriever FAQ 检索能力
type FAQRetriever interface {
	Lookup(ctx context.Context, question string) (*FAQMatch, error)
	WithinRange(match *FAQMatch) bool
}

// ValidateQuestion 去除首尾空白并校验长度
func ValidateQuestion(question string) (string, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return "", ErrEmptyQuestion
	}
	if utf8.RuneCountInString(q) > MaxQuestionLength {
		return "", ErrQuestionTooLong
	}
	return q, nil
}

// IsValidationError 是否为输入校验错误
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyQuestion) || errors.Is(err, ErrQuestionTooLong)
}

// PublicMessage 返回给调用方的错误文案
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmptyQuestion):
		return "Question cannot be empty."
	case errors.Is(err, ErrQuestionTooLong):
		return "Question too long."
	default:
		return "Internal server error."
	}
}

// routeRequest 单次请求的路由状态，两级分类结果按需计算并缓存
type routeRequest struct {
	question string

	aiDone bool
	ai     IntentResult

	ruleDone       bool
	ruleIntent     model.Intent
	ruleConfidence float64
}

// routeStrategy 策略链中的一环，返回 nil 表示交给下一环
type routeStrategy struct {
	name string
	run  func(ctx context.Context, req *routeRequest) (*model.AnswerPayload, error)
}

// RouterService 问答路由：AI 增强 → 规则分类 → 固定回复 / 活动检索 / FAQ
type RouterService struct {
	classifier *IntentClassifier
	enhancer   Enhancer
	events     EventSearcher
	faq        FAQRetriever
	topK       int
	strategies []routeStrategy
	logger     *zap.Logger
}

// NewRouterService 创建路由服务
func NewRouterService(classifier *IntentClassifier, enhancer Enhancer, events EventSearcher,
	faq FAQRetriever, topK int, logger *zap.Logger) *RouterService {

	if enhancer == nil {
		enhancer = DisabledEnhancer{}
	}
	if topK <= 0 {
		topK = 5
	}

	r := &RouterService{
		classifier: classifier,
		enhancer:   enhancer,
		events:     events,
		faq:        faq,
		topK:       topK,
		logger:     logger,
	}
	r.strategies = []routeStrategy{
		{name: "ai_contextual", run: r.aiContextual},
		{name: "ai_event_search", run: r.aiEventSearch},
		{name: "ai_generate", run: r.aiGenerate},
		{name: "canned", run: r.canned},
		{name: "event_search", run: r.eventSearch},
		{name: "faq", run: r.faqLookup},
	}
	return r
}

// Route 处理一个问题；错误只可能是校验错误或 ErrInternal
func (r *RouterService) Route(ctx context.Context, question string) (payload *model.AnswerPayload, err error) {
	q, err := ValidateQuestion(question)
	if err != nil {
		r.logger.Warn("问题校验失败", zap.Error(err), zap.Int("length", utf8.RuneCountInString(question)))
		return nil, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("路由过程发生 panic", zap.Any("panic", rec), zap.String("question", q))
			payload, err = nil, ErrInternal
		}
	}()

	req := &routeRequest{question: q}
	for _, st := range r.strategies {
		p, err := st.run(ctx, req)
		if err != nil {
			r.logger.Error("路由失败",
				zap.String("branch", st.name),
				zap.String("question", q),
				zap.Error(err))
			return nil, ErrInternal
		}
		if p == nil {
			continue
		}

		p.Question = q
		metrics.QuestionsTotal.WithLabelValues(string(p.Intent), st.name).Inc()
		r.logger.Info("问题已回答",
			zap.String("branch", st.name),
			zap.String("intent", string(p.Intent)),
			zap.Bool("ai_enhanced", p.AIEnhanced),
			zap.Int("events", len(p.Events)))
		return p, nil
	}

	r.logger.Error("没有策略产出回答", zap.String("question", q))
	return nil, ErrInternal
}

func (r *RouterService) fallback(from, to string, fields ...zap.Field) {
	metrics.FallbackTotal.WithLabelValues(from, to).Inc()
	r.logger.Info("路由回退", append([]zap.Field{zap.String("from", from), zap.String("to", to)}, fields...)...)
}

// aiIntent AI 分类结果；不可用时不发起调用
func (r *RouterService) aiIntent(ctx context.Context, req *routeRequest) IntentResult {
	if req.aiDone {
		return req.ai
	}
	req.aiDone = true
	req.ai = UnknownIntentResult()

	if !r.enhancer.Available() {
		return req.ai
	}

	req.ai = r.enhancer.ClassifyIntent(ctx, req.question)
	metrics.IntentConfidence.WithLabelValues("ai").Observe(req.ai.Confidence)
	if req.ai.Intent == model.IntentUnknown {
		r.fallback("ai_classify", "rules", zap.Float64("confidence", req.ai.Confidence))
	}
	return req.ai
}

// ruleIntent 规则分类结果
func (r *RouterService) ruleIntent(req *routeRequest) (model.Intent, float64) {
	if !req.ruleDone {
		req.ruleDone = true
		req.ruleIntent, req.ruleConfidence = r.classifier.Classify(req.question)
		metrics.IntentConfidence.WithLabelValues("rules").Observe(req.ruleConfidence)
		r.logger.Info("规则分类完成",
			zap.String("intent", string(req.ruleIntent)),
			zap.Float64("confidence", req.ruleConfidence))
	}
	return req.ruleIntent, req.ruleConfidence
}

func (r *RouterService) aiContextual(ctx context.Context, req *routeRequest) (*model.AnswerPayload, error) {
	ai := r.aiIntent(ctx, req)
	if ai.Intent == model.IntentUnknown {
		return nil, nil
	}

	answer, ok := r.enhancer.ContextualResponse(ai.Intent)
	if !ok {
		return nil, nil
	}
	return &model.AnswerPayload{Answer: answer, Intent: ai.Intent, AIEnhanced: true}, nil
}

func (r *RouterService) aiEventSearch(ctx context.Context, req *routeRequest) (*model.AnswerPayload, error) {
	ai := r.aiIntent(ctx, req)
	if !ai.Intent.IsEventIntent() {
		return nil, nil
	}

	query := r.enhancer.EnhanceSearchQuery(ctx, req.question, ai.Entities)
	events, err := r.events.Search(ctx, query, r.topK)
	if err != nil {
		return nil, err
	}

	answer, ok := r.enhancer.GenerateResponse(ctx, req.question, ai.Intent, ai.Entities, events)
	if !ok {
		r.fallback("ai_generate", "event_formatter",
			zap.String("intent", string(ai.Intent)),
			zap.Float64("confidence", ai.Confidence))
		answer = FormatResponse(events)
	}

	// 意图路由用了 AI，即使文案来自模板也标记为 ai_enhanced
	return &model.AnswerPayload{Answer: answer, Intent: ai.Intent, Events: events, AIEnhanced: true}, nil
}

func (r *RouterService) aiGenerate(ctx context.Context, req *routeRequest) (*model.AnswerPayload, error) {
	ai := r.aiIntent(ctx, req)
	if ai.Intent == model.IntentUnknown || ai.Intent.IsEventIntent() {
		return nil, nil
	}

	answer, ok := r.enhancer.GenerateResponse(ctx, req.question, ai.Intent, ai.Entities, nil)
	if !ok {
		r.fallback("ai_generate", "rules",
			zap.String("intent", string(ai.Intent)),
			zap.Float64("confidence", ai.Confidence))
		return nil, nil
	}
	return &model.AnswerPayload{Answer: answer, Intent: ai.Intent, AIEnhanced: true}, nil
}

func (r *RouterService) canned(_ context.Context, req *routeRequest) (*model.AnswerPayload, error) {
	intent, _ := r.ruleIntent(req)
	answer, ok := r.classifier.ResponseForIntent(intent)
	if !ok {
		return nil, nil
	}
	return &model.AnswerPayload{Answer: answer, Intent: intent}, nil
}

func (r *RouterService) eventSearch(ctx context.Context, req *routeRequest) (*model.AnswerPayload, error) {
	intent, _ := r.ruleIntent(req)
	if !intent.IsEventIntent() {
		return nil, nil
	}

	events, err := r.events.Search(ctx, req.question, r.topK)
	if err != nil {
		return nil, err
	}
	return &model.AnswerPayload{Answer: FormatResponse(events), Intent: intent, Events: events}, nil
}

func (r *RouterService) faqLookup(ctx context.Context, req *routeRequest) (*model.AnswerPayload, error) {
	intent, confidence := r.ruleIntent(req)

	match, err := r.faq.Lookup(ctx, req.question)
	if err != nil {
		return nil, err
	}

	if !r.faq.WithinRange(match) {
		r.logger.Info("FAQ 最近邻距离超出上限",
			zap.Float64("distance", match.Distance),
			zap.String("matched", match.Entry.Question))
		return &model.AnswerPayload{Answer: noFAQMatchAnswer, Intent: intent}, nil
	}

	r.logger.Info("FAQ 命中",
		zap.String("intent", string(intent)),
		zap.Float64("confidence", confidence),
		zap.Int("row", match.Row),
		zap.Float64("distance", match.Distance),
		zap.String("matched", match.Entry.Question))

	return &model.AnswerPayload{
		Answer:          match.Entry.Answer,
		Intent:          intent,
		MatchedQuestion: match.Entry.Question,
	}, nil
}
