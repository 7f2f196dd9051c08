package service

import (
	"regexp"
	"strings"

	"github.com/campverse/campverse-bot/internal/model"
	"go.uber.org/zap"
)

const eventNouns = `(events?|hackathons?|workshops?|competitions?|seminars?|webinars?|conferences?|meetups?|contests?|fests?|festivals?)`

// intentRule 规则级联中的一级：任一模式命中即返回该意图
type intentRule struct {
	name       string
	intent     model.Intent
	confidence float64
	patterns   []*regexp.Regexp
}

// IntentClassifier 规则级联意图分类器，顺序即优先级，先命中者胜出
type IntentClassifier struct {
	rules     []intentRule
	responses map[model.Intent]string
	logger    *zap.Logger
}

// NewIntentClassifier 创建意图分类器
func NewIntentClassifier(logger *zap.Logger) *IntentClassifier {
	return &IntentClassifier{
		rules:     defaultIntentRules(),
		responses: cannedResponses,
		logger:    logger,
	}
}

func defaultIntentRules() []intentRule {
	mustAll := func(exprs ...string) []*regexp.Regexp {
		out := make([]*regexp.Regexp, len(exprs))
		for i, e := range exprs {
			out[i] = regexp.MustCompile(e)
		}
		return out
	}

	// host_help 必须排在 event_search 之前，否则 "how do i host an event" 会被活动关键词抢走
	return []intentRule{
		{
			name: "exact_greeting", intent: model.IntentGreeting, confidence: 0.95,
			patterns: mustAll(`^(hi|hello|hey|hii|hiii|helllo|good morning|good afternoon|good evening)[\s!?.]*$`),
		},
		{
			name: "farewell", intent: model.IntentFarewell, confidence: 0.9,
			patterns: mustAll(`\b(bye|goodbye|see you|farewell|take care|good night)\b`),
		},
		{
			name: "thanks", intent: model.IntentThanks, confidence: 0.9,
			patterns: mustAll(`\b(thank|thanks|appreciate|grateful|thx)\b`),
		},
		{
			name: "host_help", intent: model.IntentHostHelp, confidence: 0.9,
			patterns: mustAll(
				`\b(host|hosting|organi[sz]e|organi[sz]ing|create|publish)\b.{0,50}\b`+eventNouns+`\b`,
				`\b(become|becoming|be)\s+(an?\s+)?(host|organi[sz]er)\b`,
				`\b(host|organi[sz]er)\s+(dashboard|account|request|eligibility|approval|application|panel|role)\b`,
				`\b(how|can|want|like)\b.{0,20}\bhost\b`,
			),
		},
		{
			name: "event_search", intent: model.IntentEventSearch, confidence: 0.85,
			patterns: mustAll(
				`\b(show|find|search|list|get|display|tell|give|want|need|looking for|any|are there)\b.{0,50}\b`+eventNouns+`\b`,
				`\b(upcoming|today|tomorrow|this week|this month|next|future|soon|latest|recent)\b.{0,50}\b`+eventNouns+`\b`,
				`\b(ai|ml|tech|coding|programming|software|web|mobile|data|science)\b.{0,50}\b`+eventNouns+`\b`,
				`\b(at|in|near|on)\b.{0,50}\b(campus|college|university)\b`,
				`^(upcoming\s+)?`+eventNouns+`[\s!?.]*$`,
			),
		},
		{
			name: "help", intent: model.IntentHelp, confidence: 0.8,
			patterns: mustAll(`\b(help|support|assist|guide|how to|how do i|what can you do|how does|what is)\b`),
		},
		{
			name: "greeting", intent: model.IntentGreeting, confidence: 0.85,
			patterns: mustAll(`\b(hi|hello|hey|good morning|good afternoon|good evening|greetings)\b`),
		},
	}
}

// Classify 对文本分类，返回意图和置信度（置信度仅供日志参考）
func (c *IntentClassifier) Classify(text string) (model.Intent, float64) {
	normalized := strings.ToLower(strings.TrimSpace(text))

	for _, rule := range c.rules {
		for _, pattern := range rule.patterns {
			if pattern.MatchString(normalized) {
				c.logger.Debug("规则命中",
					zap.String("rule", rule.name),
					zap.String("intent", string(rule.intent)),
					zap.Float64("confidence", rule.confidence))
				return rule.intent, rule.confidence
			}
		}
	}

	c.logger.Debug("未命中任何规则，归为一般问题", zap.String("text", normalized))
	return model.IntentGeneralQuestion, 0.5
}

// ResponseForIntent 固定回复查表，需要检索的意图返回 false
func (c *IntentClassifier) ResponseForIntent(intent model.Intent) (string, bool) {
	resp, ok := c.responses[intent]
	return resp, ok
}

var cannedResponses = map[model.Intent]string{
	model.IntentGreeting: "Hi! I'm CampVerseBot, here to help you discover events and answer your questions. " +
		"You can ask me about upcoming hackathons, workshops, or any other events!",
	model.IntentFarewell: "Goodbye! If you need anything else, just ask. Have a great day!",
	model.IntentThanks:   "You're welcome! If you have more questions, feel free to ask.",
	model.IntentHelp: "I can help you with:\n" +
		"• Finding events (hackathons, workshops, competitions)\n" +
		"• Answering questions about CampVerse\n" +
		"• Registration and account help\n\n" +
		"Just ask me anything!",
	model.IntentHostHelp: "Want to host an event on CampVerse? Here's how:\n" +
		"1. Request host access from your profile (a verifier reviews it)\n" +
		"2. Once approved, open the Host Dashboard and click \"Create Event\"\n" +
		"3. Fill in the title, date, description, tags and location\n" +
		"4. Submit the event for verification. It goes live after approval\n\n" +
		"You can manage registrations, co-hosts and certificates from the dashboard.",
}
