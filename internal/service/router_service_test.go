package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/campverse/campverse-bot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubEnhancer struct {
	mu            sync.Mutex
	classify      IntentResult
	generate      string
	generateOK    bool
	keywords      string
	classifyCalls int
	generateCalls int
}

func (s *stubEnhancer) Available() bool { return true }

func (s *stubEnhancer) ClassifyIntent(context.Context, string) IntentResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classifyCalls++
	return s.classify
}

func (s *stubEnhancer) ContextualResponse(intent model.Intent) (string, bool) {
	resp, ok := contextualResponses[intent]
	return resp, ok
}

func (s *stubEnhancer) GenerateResponse(context.Context, string, model.Intent, model.Entities, []model.ScoredEvent) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generateCalls++
	return s.generate, s.generateOK
}

func (s *stubEnhancer) EnhanceSearchQuery(_ context.Context, question string, _ model.Entities) string {
	if s.keywords == "" {
		return question
	}
	return s.keywords
}

type stubSearcher struct {
	events  []model.ScoredEvent
	err     error
	panics  bool
	queries []string
}

func (s *stubSearcher) Search(_ context.Context, query string, topK int) ([]model.ScoredEvent, error) {
	if s.panics {
		panic("searcher exploded")
	}
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.events) > topK {
		return s.events[:topK], nil
	}
	return s.events, nil
}

type stubFAQ struct {
	match   *FAQMatch
	inRange bool
	err     error
	calls   int
}

func (s *stubFAQ) Lookup(context.Context, string) (*FAQMatch, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.match, nil
}

func (s *stubFAQ) WithinRange(*FAQMatch) bool { return s.inRange }

func scoredSample() []model.ScoredEvent {
	events := sampleEvents()
	return []model.ScoredEvent{
		{Event: events[0], SimilarityScore: 0.9},
		{Event: events[1], SimilarityScore: 0.4},
	}
}

func defaultFAQ() *stubFAQ {
	return &stubFAQ{
		match: &FAQMatch{
			Entry:    model.FAQEntry{Question: "How do I get my participation certificate?", Answer: "From your dashboard."},
			Row:      6,
			Distance: 0.4,
		},
		inRange: true,
	}
}

func newTestRouter(enhancer Enhancer, events EventSearcher, faq FAQRetriever) *RouterService {
	return NewRouterService(NewIntentClassifier(zap.NewNop()), enhancer, events, faq, 5, zap.NewNop())
}

func TestValidateQuestion(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     string
		err      error
	}{
		{"empty", "", "", ErrEmptyQuestion},
		{"whitespace", "   \t\n", "", ErrEmptyQuestion},
		{"too long", strings.Repeat("a", MaxQuestionLength+1), "", ErrQuestionTooLong},
		{"max length", strings.Repeat("a", MaxQuestionLength), strings.Repeat("a", MaxQuestionLength), nil},
		{"multibyte counted by rune", strings.Repeat("é", MaxQuestionLength), strings.Repeat("é", MaxQuestionLength), nil},
		{"trimmed before length check", "  " + strings.Repeat("a", MaxQuestionLength) + "  ", strings.Repeat("a", MaxQuestionLength), nil},
		{"trimmed", "  hi  ", "hi", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateQuestion(tt.question)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.True(t, IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "Question cannot be empty.", PublicMessage(ErrEmptyQuestion))
	assert.Equal(t, "Question too long.", PublicMessage(ErrQuestionTooLong))
	assert.Equal(t, "Internal server error.", PublicMessage(ErrInternal))
	assert.False(t, IsValidationError(ErrInternal))
}

func TestRouter_ValidationErrors(t *testing.T) {
	faq := defaultFAQ()
	r := newTestRouter(DisabledEnhancer{}, &stubSearcher{}, faq)

	for _, q := range []string{"", "   ", strings.Repeat("x", 513)} {
		payload, err := r.Route(context.Background(), q)
		assert.Nil(t, payload)
		assert.True(t, IsValidationError(err), "question of length %d", len(q))
	}
	assert.Zero(t, faq.calls)
}

func TestRouter_CannedWithoutEnhancer(t *testing.T) {
	faq := defaultFAQ()
	r := newTestRouter(DisabledEnhancer{}, &stubSearcher{}, faq)

	payload, err := r.Route(context.Background(), "thanks so much!")
	require.NoError(t, err)

	assert.Equal(t, model.IntentThanks, payload.Intent)
	assert.Equal(t, cannedResponses[model.IntentThanks], payload.Answer)
	assert.Equal(t, "thanks so much!", payload.Question)
	assert.False(t, payload.AIEnhanced)
	assert.Empty(t, payload.Events)
	assert.Zero(t, faq.calls)
}

func TestRouter_EventSearchWithoutEnhancer(t *testing.T) {
	searcher := &stubSearcher{events: scoredSample()}
	r := newTestRouter(DisabledEnhancer{}, searcher, defaultFAQ())

	payload, err := r.Route(context.Background(), "  show me upcoming hackathons ")
	require.NoError(t, err)

	assert.Equal(t, model.IntentEventSearch, payload.Intent)
	assert.Equal(t, "show me upcoming hackathons", payload.Question)
	assert.Equal(t, FormatResponse(searcher.events), payload.Answer)
	assert.Len(t, payload.Events, 2)
	assert.False(t, payload.AIEnhanced)
	assert.Equal(t, []string{"show me upcoming hackathons"}, searcher.queries)
}

func TestRouter_EventSearchNoResults(t *testing.T) {
	r := newTestRouter(DisabledEnhancer{}, &stubSearcher{}, defaultFAQ())

	payload, err := r.Route(context.Background(), "hackathons")
	require.NoError(t, err)

	assert.Equal(t, model.IntentEventSearch, payload.Intent)
	assert.Equal(t, FormatResponse(nil), payload.Answer)
	assert.Empty(t, payload.Events)
}

func TestRouter_FAQFallback(t *testing.T) {
	faq := defaultFAQ()
	r := newTestRouter(DisabledEnhancer{}, &stubSearcher{}, faq)

	payload, err := r.Route(context.Background(), "where are certificates stored")
	require.NoError(t, err)

	assert.Equal(t, model.IntentGeneralQuestion, payload.Intent)
	assert.Equal(t, "From your dashboard.", payload.Answer)
	assert.Equal(t, "How do I get my participation certificate?", payload.MatchedQuestion)
	assert.Equal(t, "where are certificates stored", payload.Question)
	assert.False(t, payload.AIEnhanced)
	assert.Equal(t, 1, faq.calls)
}

func TestRouter_FAQOutOfRange(t *testing.T) {
	faq := defaultFAQ()
	faq.inRange = false
	r := newTestRouter(DisabledEnhancer{}, &stubSearcher{}, faq)

	payload, err := r.Route(context.Background(), "where are certificates stored")
	require.NoError(t, err)

	assert.Equal(t, noFAQMatchAnswer, payload.Answer)
	assert.Empty(t, payload.MatchedQuestion)
}

func TestRouter_AIContextual(t *testing.T) {
	enhancer := &stubEnhancer{classify: IntentResult{Intent: model.IntentGreeting, Confidence: 0.97}}
	faq := defaultFAQ()
	r := newTestRouter(enhancer, &stubSearcher{}, faq)

	payload, err := r.Route(context.Background(), "yo what's up")
	require.NoError(t, err)

	assert.Equal(t, model.IntentGreeting, payload.Intent)
	assert.Equal(t, contextualResponses[model.IntentGreeting], payload.Answer)
	assert.True(t, payload.AIEnhanced)
	assert.Equal(t, 1, enhancer.classifyCalls)
	assert.Zero(t, enhancer.generateCalls)
	assert.Zero(t, faq.calls)
}

func TestRouter_AIEventSearch(t *testing.T) {
	enhancer := &stubEnhancer{
		classify:   IntentResult{Intent: model.IntentEventSearch, Confidence: 0.9, Entities: model.Entities{Topic: strPtr("AI")}},
		generate:   "Check out the AI Hackathon!",
		generateOK: true,
		keywords:   "AI hackathon",
	}
	searcher := &stubSearcher{events: scoredSample()}
	r := newTestRouter(enhancer, searcher, defaultFAQ())

	payload, err := r.Route(context.Background(), "anything cool with AI coming up?")
	require.NoError(t, err)

	assert.Equal(t, model.IntentEventSearch, payload.Intent)
	assert.Equal(t, "Check out the AI Hackathon!", payload.Answer)
	assert.Len(t, payload.Events, 2)
	assert.True(t, payload.AIEnhanced)
	assert.Equal(t, []string{"AI hackathon"}, searcher.queries)
}

func TestRouter_AIEventSearchFormatterFallback(t *testing.T) {
	enhancer := &stubEnhancer{classify: IntentResult{Intent: model.IntentEventDetails, Confidence: 0.85}}
	searcher := &stubSearcher{events: scoredSample()}
	r := newTestRouter(enhancer, searcher, defaultFAQ())

	payload, err := r.Route(context.Background(), "tell me about the AI hackathon")
	require.NoError(t, err)

	assert.Equal(t, model.IntentEventDetails, payload.Intent)
	assert.Equal(t, FormatResponse(searcher.events), payload.Answer)
	assert.True(t, payload.AIEnhanced, "routing used AI even though text came from the formatter")
	assert.Equal(t, 1, enhancer.generateCalls)
}

func TestRouter_AIGenerate(t *testing.T) {
	enhancer := &stubEnhancer{
		classify:   IntentResult{Intent: model.IntentAccountHelp, Confidence: 0.8},
		generate:   "Open your profile settings.",
		generateOK: true,
	}
	faq := defaultFAQ()
	r := newTestRouter(enhancer, &stubSearcher{}, faq)

	payload, err := r.Route(context.Background(), "how do I change my profile photo")
	require.NoError(t, err)

	assert.Equal(t, model.IntentAccountHelp, payload.Intent)
	assert.Equal(t, "Open your profile settings.", payload.Answer)
	assert.True(t, payload.AIEnhanced)
	assert.Zero(t, faq.calls)
}

func TestRouter_AIGenerateFailureFallsBackToRules(t *testing.T) {
	enhancer := &stubEnhancer{classify: IntentResult{Intent: model.IntentHelp, Confidence: 0.8}}
	r := newTestRouter(enhancer, &stubSearcher{}, defaultFAQ())

	payload, err := r.Route(context.Background(), "what can you do")
	require.NoError(t, err)

	assert.Equal(t, model.IntentHelp, payload.Intent)
	assert.Equal(t, cannedResponses[model.IntentHelp], payload.Answer)
	assert.False(t, payload.AIEnhanced)
	assert.Equal(t, 1, enhancer.generateCalls)
}

func TestRouter_AIUnknownFallsBackToRules(t *testing.T) {
	enhancer := &stubEnhancer{classify: UnknownIntentResult()}
	faq := defaultFAQ()
	r := newTestRouter(enhancer, &stubSearcher{}, faq)

	payload, err := r.Route(context.Background(), "where are certificates stored")
	require.NoError(t, err)

	assert.Equal(t, model.IntentGeneralQuestion, payload.Intent)
	assert.Equal(t, "From your dashboard.", payload.Answer)
	assert.False(t, payload.AIEnhanced)
	assert.Equal(t, 1, enhancer.classifyCalls)
	assert.Zero(t, enhancer.generateCalls)
}

func TestRouter_GenAIEnhancerEndToEnd(t *testing.T) {
	completer := &fakeCompleter{replies: []fakeReply{{err: errFake}}}
	enhancer := NewGenAIEnhancer(completer, zap.NewNop())
	r := newTestRouter(enhancer, &stubSearcher{}, defaultFAQ())

	payload, err := r.Route(context.Background(), "thanks so much!")
	require.NoError(t, err)

	assert.Equal(t, model.IntentThanks, payload.Intent)
	assert.False(t, payload.AIEnhanced)
	assert.Equal(t, 1, completer.callCount())
}

func TestRouter_InternalErrors(t *testing.T) {
	t.Run("searcher panics", func(t *testing.T) {
		r := newTestRouter(DisabledEnhancer{}, &stubSearcher{panics: true}, defaultFAQ())

		payload, err := r.Route(context.Background(), "show me upcoming hackathons")
		assert.Nil(t, payload)
		assert.ErrorIs(t, err, ErrInternal)
	})

	t.Run("searcher fails", func(t *testing.T) {
		r := newTestRouter(DisabledEnhancer{}, &stubSearcher{err: errFake}, defaultFAQ())

		_, err := r.Route(context.Background(), "show me upcoming hackathons")
		assert.ErrorIs(t, err, ErrInternal)
	})

	t.Run("faq fails", func(t *testing.T) {
		faq := defaultFAQ()
		faq.err = ErrFAQNotLoaded
		r := newTestRouter(DisabledEnhancer{}, &stubSearcher{}, faq)

		_, err := r.Route(context.Background(), "where are certificates stored")
		assert.ErrorIs(t, err, ErrInternal)
		assert.Equal(t, "Internal server error.", PublicMessage(err))
	})
}

func TestNewRouterService_Defaults(t *testing.T) {
	searcher := &stubSearcher{events: append(scoredSample(), scoredSample()...)}
	r := NewRouterService(NewIntentClassifier(zap.NewNop()), nil, searcher, defaultFAQ(), 0, zap.NewNop())

	payload, err := r.Route(context.Background(), "hackathons")
	require.NoError(t, err)
	assert.False(t, payload.AIEnhanced)
	assert.Len(t, payload.Events, 4)
}
