package model

import "strings"

// Intent 用户意图（封闭枚举）
type Intent string

const (
	IntentGreeting         Intent = "greeting"
	IntentFarewell         Intent = "farewell"
	IntentThanks           Intent = "thanks"
	IntentHelp             Intent = "help"
	IntentHostHelp         Intent = "host_help"
	IntentEventSearch      Intent = "event_search"
	IntentEventDetails     Intent = "event_details"
	IntentRegistrationHelp Intent = "registration_help"
	IntentAccountHelp      Intent = "account_help"
	IntentGeneralQuestion  Intent = "general_question"
	IntentFeedback         Intent = "feedback"
	IntentUnknown          Intent = "unknown"
)

// AllIntents 全部意图，顺序即提示词中的顺序
var AllIntents = []Intent{
	IntentGreeting,
	IntentFarewell,
	IntentThanks,
	IntentHelp,
	IntentHostHelp,
	IntentEventSearch,
	IntentEventDetails,
	IntentRegistrationHelp,
	IntentAccountHelp,
	IntentGeneralQuestion,
	IntentFeedback,
	IntentUnknown,
}

// ParseIntent 解析意图字符串，不在枚举内返回 false
func ParseIntent(s string) (Intent, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, intent := range AllIntents {
		if string(intent) == s {
			return intent, true
		}
	}
	return IntentUnknown, false
}

// IsEventIntent 是否需要走活动检索
func (i Intent) IsEventIntent() bool {
	return i == IntentEventSearch || i == IntentEventDetails
}

// Entities AI 抽取的实体（仅 AI 增强路径产生）
type Entities struct {
	EventType *string `json:"event_type"`
	TimeFrame *string `json:"time_frame"`
	Topic     *string `json:"topic"`
	Location  *string `json:"location"`
}

// IsEmpty 所有实体均为空
func (e Entities) IsEmpty() bool {
	return e.EventType == nil && e.TimeFrame == nil && e.Topic == nil && e.Location == nil
}
