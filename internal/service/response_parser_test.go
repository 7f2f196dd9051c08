package service

import (
	"testing"

	"github.com/campverse/campverse-bot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntentResponse(t *testing.T) {
	text := "Sure! Here is the classification:\n```json\n" +
		`{"intent": "event_search", "confidence": 0.93, "entities": {"event_type": "hackathon", "time_frame": "this week", "topic": null, "location": ""}, "reasoning": "asks for {events}"}` +
		"\n```\nLet me know if you need more."

	result, err := ParseIntentResponse(text)
	require.NoError(t, err)
	assert.Equal(t, model.IntentEventSearch, result.Intent)
	assert.Equal(t, 0.93, result.Confidence)
	require.NotNil(t, result.Entities.EventType)
	assert.Equal(t, "hackathon", *result.Entities.EventType)
	require.NotNil(t, result.Entities.TimeFrame)
	assert.Equal(t, "this week", *result.Entities.TimeFrame)
	assert.Nil(t, result.Entities.Topic)
	assert.Nil(t, result.Entities.Location)
}

func TestParseIntentResponse_DefaultsAndClamp(t *testing.T) {
	result, err := ParseIntentResponse(`{"intent":"HELP"}`)
	require.NoError(t, err)
	assert.Equal(t, model.IntentHelp, result.Intent)
	assert.Equal(t, defaultAIConfidence, result.Confidence)
	assert.True(t, result.Entities.IsEmpty())

	result, err = ParseIntentResponse(`{"intent":"thanks","confidence":7}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestParseIntentResponse_Failures(t *testing.T) {
	tests := []struct {
		name string
		text string
		err  error
	}{
		{"no json", "I think this is an event search.", ErrNoJSON},
		{"unterminated", `{"intent": "greeting"`, ErrNoJSON},
		{"malformed", `{"intent": greeting}`, ErrMalformedJSON},
		{"unknown intent", `{"intent": "weather_report", "confidence": 0.9}`, ErrUnknownIntent},
		{"explicit unknown", `{"intent": "unknown", "confidence": 0.9}`, ErrUnknownIntent},
		{"empty", "", ErrNoJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseIntentResponse(tt.text)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, model.IntentUnknown, result.Intent)
			assert.Zero(t, result.Confidence)
			assert.True(t, result.Entities.IsEmpty())
		})
	}
}

func TestExtractJSONObject_BracesInStrings(t *testing.T) {
	raw, ok := extractJSONObject(`noise {"a": "}{", "b": {"c": "\"}"}} trailing }`)
	require.True(t, ok)
	assert.Equal(t, `{"a": "}{", "b": {"c": "\"}"}}`, raw)
}
