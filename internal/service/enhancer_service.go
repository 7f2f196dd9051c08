package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/campverse/campverse-bot/internal/model"
	"go.uber.org/zap"
)

// Completer 文本补全能力（client.LLMClient 实现）
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Enhancer 可选的生成式 AI 增强层；所有方法都不会返回错误，失败时给出哨兵值
type Enhancer interface {
	Available() bool
	ClassifyIntent(ctx context.Context, text string) IntentResult
	ContextualResponse(intent model.Intent) (string, bool)
	GenerateResponse(ctx context.Context, question string, intent model.Intent, entities model.Entities, events []model.ScoredEvent) (string, bool)
	EnhanceSearchQuery(ctx context.Context, question string, entities model.Entities) string
}

// NewEnhancer 有凭证且有补全客户端时启用 AI 增强，否则返回禁用实现
func NewEnhancer(apiKey string, completer Completer, logger *zap.Logger) Enhancer {
	if apiKey == "" || completer == nil {
		logger.Warn("未配置 AI 凭证，AI 增强已禁用")
		return DisabledEnhancer{}
	}
	logger.Info("AI 增强已启用")
	return NewGenAIEnhancer(completer, logger)
}

// DisabledEnhancer 不可用时的空实现
type DisabledEnhancer struct{}

func (DisabledEnhancer) Available() bool { return false }

func (DisabledEnhancer) ClassifyIntent(context.Context, string) IntentResult {
	return UnknownIntentResult()
}

func (DisabledEnhancer) ContextualResponse(model.Intent) (string, bool) { return "", false }

func (DisabledEnhancer) GenerateResponse(context.Context, string, model.Intent, model.Entities, []model.ScoredEvent) (string, bool) {
	return "", false
}

func (DisabledEnhancer) EnhanceSearchQuery(_ context.Context, question string, _ model.Entities) string {
	return question
}

// GenAIEnhancer 基于大模型的增强实现
type GenAIEnhancer struct {
	completer Completer
	logger    *zap.Logger
}

// NewGenAIEnhancer 创建 AI 增强服务
func NewGenAIEnhancer(completer Completer, logger *zap.Logger) *GenAIEnhancer {
	return &GenAIEnhancer{completer: completer, logger: logger}
}

// Available 是否可用
func (e *GenAIEnhancer) Available() bool {
	return true
}

// ClassifyIntent 让模型在封闭枚举中选意图并抽取实体；任何失败都返回 (unknown, 0, {})
func (e *GenAIEnhancer) ClassifyIntent(ctx context.Context, text string) IntentResult {
	reply, err := e.completer.Complete(ctx, buildClassifyPrompt(text))
	if err != nil {
		e.logger.Warn("AI 意图分类调用失败", zap.Error(err))
		return UnknownIntentResult()
	}

	result, err := ParseIntentResponse(reply)
	if err != nil {
		e.logger.Warn("AI 意图分类结果无法解析",
			zap.Error(err),
			zap.String("reply", truncateRunes(reply, 200)))
		return UnknownIntentResult()
	}

	e.logger.Info("AI 意图分类完成",
		zap.String("intent", string(result.Intent)),
		zap.Float64("confidence", result.Confidence))
	return result
}

// ContextualResponse 简单意图直接查表，不调用模型
func (e *GenAIEnhancer) ContextualResponse(intent model.Intent) (string, bool) {
	resp, ok := contextualResponses[intent]
	return resp, ok
}

// GenerateResponse 让模型生成自然语言回答，失败返回 false
func (e *GenAIEnhancer) GenerateResponse(ctx context.Context, question string, intent model.Intent,
	entities model.Entities, events []model.ScoredEvent) (string, bool) {

	reply, err := e.completer.Complete(ctx, buildGeneratePrompt(question, intent, entities, events))
	if err != nil {
		e.logger.Warn("AI 回复生成失败",
			zap.String("intent", string(intent)),
			zap.Error(err))
		return "", false
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		e.logger.Warn("AI 回复为空", zap.String("intent", string(intent)))
		return "", false
	}

	e.logger.Info("AI 回复生成完成", zap.String("intent", string(intent)))
	return reply, true
}

// EnhanceSearchQuery 把问题改写成检索关键词，失败时原样返回
func (e *GenAIEnhancer) EnhanceSearchQuery(ctx context.Context, question string, entities model.Entities) string {
	reply, err := e.completer.Complete(ctx, buildKeywordPrompt(question, entities))
	if err != nil {
		e.logger.Warn("检索关键词提取失败，使用原问题", zap.Error(err))
		return question
	}

	keywords := strings.Trim(strings.TrimSpace(reply), "\"'`")
	if keywords == "" {
		return question
	}

	e.logger.Info("检索关键词", zap.String("question", question), zap.String("keywords", keywords))
	return keywords
}

var contextualResponses = map[model.Intent]string{
	model.IntentGreeting: "Hi there! 👋 I'm CampVerseBot, your campus event assistant. I can help you discover " +
		"hackathons, workshops, seminars, and more! What are you looking for today?",
	model.IntentFarewell: "Goodbye! 👋 Feel free to come back anytime you need help finding events. Have a great day!",
	model.IntentThanks:   "You're welcome! 😊 Let me know if there's anything else I can help you with!",
}

func buildClassifyPrompt(message string) string {
	var b strings.Builder
	b.WriteString("You are an intent classifier for CampVerse, a college event discovery platform.\n\n")
	b.WriteString("Analyze the following user message and classify it into ONE of these intents:\n")
	for _, intent := range model.AllIntents {
		if intent == model.IntentUnknown {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", intent, intentDescriptions[intent])
	}
	b.WriteString("\nAlso extract any relevant entities like:\n")
	b.WriteString("- event_type: hackathon, workshop, seminar, webinar, competition, etc.\n")
	b.WriteString("- time_frame: today, tomorrow, this week, upcoming, etc.\n")
	b.WriteString("- topic: AI, ML, web development, coding, etc.\n")
	b.WriteString("- location: any mentioned location\n\n")
	fmt.Fprintf(&b, "User message: %q\n\n", message)
	b.WriteString(`Respond in this exact JSON format:
{
    "intent": "intent_name",
    "confidence": 0.95,
    "entities": {
        "event_type": null,
        "time_frame": null,
        "topic": null,
        "location": null
    },
    "reasoning": "brief explanation"
}`)
	return b.String()
}

var intentDescriptions = map[model.Intent]string{
	model.IntentGreeting:         "User says hi, hello, hey, good morning, etc.",
	model.IntentFarewell:         "User says bye, goodbye, see you, etc.",
	model.IntentThanks:           "User expresses gratitude",
	model.IntentHelp:             "User asks what the assistant can do or needs general guidance",
	model.IntentHostHelp:         "User wants to host/organize an event",
	model.IntentEventSearch:      "User is looking for events, hackathons, workshops, competitions, etc.",
	model.IntentEventDetails:     "User wants details about a specific event",
	model.IntentRegistrationHelp: "User wants help with event registration",
	model.IntentAccountHelp:      "User has account/profile related questions",
	model.IntentGeneralQuestion:  "General questions about the platform",
	model.IntentFeedback:         "User giving feedback or suggestions",
}

// maxPromptEvents 生成回复时最多带入的活动数
const maxPromptEvents = 5

func buildGeneratePrompt(question string, intent model.Intent, entities model.Entities, events []model.ScoredEvent) string {
	entitiesJSON, _ := json.Marshal(entities)

	var b strings.Builder
	b.WriteString("You are CampVerseBot, a friendly and helpful assistant for CampVerse - a college event discovery platform.\n\n")
	fmt.Fprintf(&b, "User's message: %q\n", question)
	fmt.Fprintf(&b, "Detected intent: %s\n", intent)
	fmt.Fprintf(&b, "Extracted entities: %s\n", entitiesJSON)

	if len(events) > 0 {
		b.WriteString("\nAvailable events:\n")
		for i, ev := range events {
			if i >= maxPromptEvents {
				break
			}
			eventType := ev.Type
			if eventType == "" {
				eventType = "event"
			}
			tags := ev.Tags
			if len(tags) > 3 {
				tags = tags[:3]
			}
			fmt.Fprintf(&b, "%d. %s (%s)\n   Date: %s\n   Tags: %s\n   Description: %s...\n\n",
				i+1, titleOrDefault(ev.Title, "Untitled"), eventType, eventDate(ev.Date),
				strings.Join(tags, ", "), truncateRunes(ev.Description, 100))
		}
	}

	b.WriteString(`
Guidelines:
- Be friendly, concise, and helpful
- If events are provided, recommend them naturally
- For event searches, list events with dates and brief descriptions
- Use emojis sparingly for a friendly tone
- If no events match, suggest alternative searches
- For greetings, introduce yourself briefly
- For help requests, explain what you can do
- Keep responses under 200 words unless listing multiple events

Generate a natural, helpful response:`)
	return b.String()
}

func buildKeywordPrompt(question string, entities model.Entities) string {
	entitiesJSON, _ := json.Marshal(entities)
	return fmt.Sprintf(`Extract the main search keywords from this event search query.
User message: %q
Entities detected: %s

Return only the key search terms separated by spaces (no explanation, just the keywords):`, question, entitiesJSON)
}
