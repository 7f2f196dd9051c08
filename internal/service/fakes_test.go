package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/campverse/campverse-bot/internal/model"
)

var errFake = errors.New("fake failure")

// fakeEmbedder 按文本返回固定向量，未登记的文本返回 fallback
type fakeEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	err      error
	calls    int32
}

func newFakeEmbedder(fallback []float32) *fakeEmbedder {
	return &fakeEmbedder{vectors: make(map[string][]float32), fallback: fallback}
}

func (f *fakeEmbedder) set(text string, vec []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors[strings.TrimSpace(text)] = vec
}

func (f *fakeEmbedder) lookup(text string) []float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.vectors[strings.TrimSpace(text)]; ok {
		return v
	}
	return f.fallback
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.lookup(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.lookup(text), nil
}

// fakeCompleter 依次返回预设回复
type fakeCompleter struct {
	mu      sync.Mutex
	replies []fakeReply
	prompts []string
}

type fakeReply struct {
	text string
	err  error
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if len(f.replies) == 0 {
		return "", errFake
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.text, r.err
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func strPtr(s string) *string { return &s }

func sampleEvents() []model.Event {
	return []model.Event{
		{
			ID:          "e1",
			Title:       "AI Hackathon",
			Description: "Build machine learning projects in 24 hours",
			Tags:        []string{"ai", "ml", "hackathon", "coding"},
			Type:        "hackathon",
			Date:        "2026-11-20T09:00:00.000Z",
		},
		{
			ID:          "e2",
			Title:       "Web Dev Workshop",
			Description: "Learn React from scratch",
			Tags:        []string{"web", "react"},
			Type:        "workshop",
			Date:        "2026-12-01",
		},
		{
			ID:          "e3",
			Title:       "Poetry Evening",
			Description: "Open mic for poets",
			Tags:        []string{"literature"},
			Type:        "cultural",
		},
	}
}
