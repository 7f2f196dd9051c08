package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/campverse/campverse-bot/internal/model"
)

// 解析失败的具体原因
var (
	ErrNoJSON        = errors.New("no JSON object in model response")
	ErrMalformedJSON = errors.New("malformed JSON in model response")
	ErrUnknownIntent = errors.New("intent outside the known set")
)

// defaultAIConfidence 模型未给出置信度时使用
const defaultAIConfidence = 0.8

// IntentResult AI 意图分类结果
type IntentResult struct {
	Intent     model.Intent
	Confidence float64
	Entities   model.Entities
}

// UnknownIntentResult 分类失败时的哨兵结果
func UnknownIntentResult() IntentResult {
	return IntentResult{Intent: model.IntentUnknown, Confidence: 0}
}

type intentResponse struct {
	Intent     string          `json:"intent"`
	Confidence *float64        `json:"confidence"`
	Entities   json.RawMessage `json:"entities"`
	Reasoning  string          `json:"reasoning"`
}

// ParseIntentResponse 从模型的自由文本中提取并解析意图 JSON，失败时返回哨兵结果和原因
func ParseIntentResponse(text string) (IntentResult, error) {
	raw, ok := extractJSONObject(text)
	if !ok {
		return UnknownIntentResult(), ErrNoJSON
	}

	var resp intentResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return UnknownIntentResult(), fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	intent, known := model.ParseIntent(resp.Intent)
	if !known || intent == model.IntentUnknown {
		return UnknownIntentResult(), fmt.Errorf("%w: %q", ErrUnknownIntent, resp.Intent)
	}

	confidence := defaultAIConfidence
	if resp.Confidence != nil {
		confidence = clamp01(*resp.Confidence)
	}

	// 实体解析失败不影响意图
	var entities model.Entities
	if len(resp.Entities) > 0 {
		_ = json.Unmarshal(resp.Entities, &entities)
	}
	entities = normalizeEntities(entities)

	return IntentResult{Intent: intent, Confidence: confidence, Entities: entities}, nil
}

// extractJSONObject 找到文本中第一个完整的 JSON 对象（忽略字符串内的括号）
func extractJSONObject(text string) (string, bool) {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	start := strings.Index(text, "{")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escape {
			escape = false
			continue
		}
		if ch == '\\' && inString {
			escape = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// normalizeEntities 空字符串和 "null" 视为未提取
func normalizeEntities(e model.Entities) model.Entities {
	norm := func(p *string) *string {
		if p == nil {
			return nil
		}
		v := strings.TrimSpace(*p)
		if v == "" || strings.EqualFold(v, "null") || strings.EqualFold(v, "none") {
			return nil
		}
		return &v
	}
	return model.Entities{
		EventType: norm(e.EventType),
		TimeFrame: norm(e.TimeFrame),
		Topic:     norm(e.Topic),
		Location:  norm(e.Location),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
