package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/campverse/campverse-bot/internal/client"
	"github.com/campverse/campverse-bot/internal/config"
	"github.com/campverse/campverse-bot/internal/metrics"
	"github.com/campverse/campverse-bot/internal/model"
	"github.com/campverse/campverse-bot/internal/vectorstore"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// MinEventSimilarity 相似度不高于该值的活动不返回
const MinEventSimilarity = 0.15

// ErrEventsUnavailable 活动后端不可用
var ErrEventsUnavailable = errors.New("events backend unavailable")

// EventSnapshotStore 活动快照持久化（用于后端不可用时的冷启动）
type EventSnapshotStore interface {
	SaveEvents(ctx context.Context, events []model.Event) error
	LoadEvents(ctx context.Context) ([]model.Event, error)
}

// catalogSnapshot 活动与向量一一对应，发布后不再修改
type catalogSnapshot struct {
	events    []model.Event
	vectors   [][]float32
	fetchedAt time.Time
}

// EventService 活动目录缓存与语义检索
type EventService struct {
	backendURL string
	httpClient *http.Client
	embedder   client.Embedder
	store      EventSnapshotStore
	snapshot   atomic.Pointer[catalogSnapshot]
	group      singleflight.Group
	logger     *zap.Logger
}

// NewEventService 创建活动服务，store 可以为 nil
func NewEventService(cfg config.EventsConfig, embedder client.Embedder, store EventSnapshotStore, logger *zap.Logger) *EventService {
	s := &EventService{
		backendURL: strings.TrimRight(cfg.BackendURL, "/"),
		httpClient: &http.Client{Timeout: config.ClampTimeout(cfg.FetchTimeout)},
		embedder:   embedder,
		store:      store,
		logger:     logger,
	}
	s.snapshot.Store(&catalogSnapshot{})
	return s
}

// FetchEvents 从后端拉取活动并整体重建缓存；失败时保留旧缓存
func (s *EventService) FetchEvents(ctx context.Context) ([]model.Event, error) {
	v, err, shared := s.group.Do("fetch", func() (interface{}, error) {
		// 拉取被并发调用方共享，不受发起者取消影响，由 httpClient 超时兜底
		return s.fetch(context.WithoutCancel(ctx))
	})
	if shared {
		s.logger.Debug("复用进行中的活动刷新")
	}
	if err != nil {
		return nil, err
	}
	return v.([]model.Event), nil
}

func (s *EventService) fetch(ctx context.Context) ([]model.Event, error) {
	events, err := s.requestEvents(ctx)
	if err != nil {
		metrics.EventFetchTotal.WithLabelValues("error").Inc()
		s.logger.Error("拉取活动失败，保留现有缓存",
			zap.String("backend", s.backendURL),
			zap.Int("cached", s.Count()),
			zap.Error(err))
		return nil, err
	}

	snap, err := s.buildSnapshot(ctx, events)
	if err != nil {
		metrics.EventFetchTotal.WithLabelValues("error").Inc()
		s.logger.Error("活动向量化失败，保留现有缓存", zap.Error(err))
		return nil, err
	}
	s.publish(snap)
	metrics.EventFetchTotal.WithLabelValues("success").Inc()

	if s.store != nil {
		if err := s.store.SaveEvents(ctx, events); err != nil {
			s.logger.Warn("保存活动快照失败", zap.Error(err))
		}
	}

	s.logger.Info("活动缓存已刷新", zap.Int("count", len(events)))
	return events, nil
}

func (s *EventService) requestEvents(ctx context.Context) ([]model.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.backendURL+"/api/events", nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEventsUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrEventsUnavailable, resp.StatusCode)
	}

	var body model.EventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("解析活动响应失败: %w", err)
	}
	if body.Data.Events == nil {
		return []model.Event{}, nil
	}
	return body.Data.Events, nil
}

// buildSnapshot 为每条活动计算向量（标题 + 描述 + 标签）
func (s *EventService) buildSnapshot(ctx context.Context, events []model.Event) (*catalogSnapshot, error) {
	snap := &catalogSnapshot{events: events, fetchedAt: time.Now()}
	if len(events) == 0 {
		return snap, nil
	}

	texts := make([]string, len(events))
	for i, ev := range events {
		texts[i] = eventText(ev)
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("活动向量化失败: %w", err)
	}
	if len(vectors) != len(events) {
		return nil, fmt.Errorf("活动向量数量不一致: %d != %d", len(vectors), len(events))
	}
	snap.vectors = vectors
	return snap, nil
}

func (s *EventService) publish(snap *catalogSnapshot) {
	s.snapshot.Store(snap)
	metrics.EventCatalogSize.Set(float64(len(snap.events)))
}

// WarmStart 启动时加载活动：优先后端，失败则回退到持久化快照
func (s *EventService) WarmStart(ctx context.Context) {
	if _, err := s.FetchEvents(ctx); err == nil || s.store == nil {
		return
	}

	events, err := s.store.LoadEvents(ctx)
	if err != nil {
		s.logger.Warn("没有可用的活动快照", zap.Error(err))
		return
	}

	snap, err := s.buildSnapshot(ctx, events)
	if err != nil {
		s.logger.Warn("活动快照向量化失败", zap.Error(err))
		return
	}
	s.publish(snap)
	s.logger.Info("已从快照恢复活动缓存", zap.Int("count", len(events)))
}

// StartAutoRefresh 定时刷新活动缓存，ctx 取消后退出
func (s *EventService) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.FetchEvents(ctx)
			}
		}
	}()
}

// Search 语义检索活动：余弦相似度降序取 topK，并过滤掉相似度 <= 0.15 的结果
func (s *EventService) Search(ctx context.Context, query string, topK int) ([]model.ScoredEvent, error) {
	snap := s.snapshot.Load()
	if len(snap.events) == 0 {
		s.logger.Info("活动缓存为空，尝试同步拉取")
		s.FetchEvents(ctx)
		snap = s.snapshot.Load()
	}
	if len(snap.events) == 0 {
		s.logger.Warn("没有可用的活动")
		return []model.ScoredEvent{}, nil
	}
	if topK <= 0 {
		return []model.ScoredEvent{}, nil
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}

	type candidate struct {
		row   int
		score float64
	}
	candidates := make([]candidate, len(snap.vectors))
	for i, v := range snap.vectors {
		candidates[i] = candidate{row: i, score: vectorstore.CosineSimilarity(queryVector, v)}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]model.ScoredEvent, 0, len(candidates))
	for _, c := range candidates {
		if c.score <= MinEventSimilarity {
			continue
		}
		results = append(results, model.ScoredEvent{
			Event:           copyEvent(snap.events[c.row]),
			SimilarityScore: c.score,
		})
	}

	s.logger.Info("活动检索完成",
		zap.String("query", query),
		zap.Int("candidates", len(snap.events)),
		zap.Int("results", len(results)))

	return results, nil
}

// Count 当前缓存的活动数
func (s *EventService) Count() int {
	return len(s.snapshot.Load().events)
}

// FetchedAt 当前缓存的刷新时间（从未刷新返回零值）
func (s *EventService) FetchedAt() time.Time {
	return s.snapshot.Load().fetchedAt
}

// FormatResponse 没有 AI 生成时的模板化回复
func FormatResponse(events []model.ScoredEvent) string {
	if len(events) == 0 {
		return "Sorry, I couldn't find any events matching your query. " +
			"Try searching for something like 'hackathon', 'AI workshop', or 'coding competition'."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I found %d event(s) for you:\n\n", len(events))

	for i, ev := range events {
		fmt.Fprintf(&b, "%d. **%s**\n", i+1, titleOrDefault(ev.Title, "Untitled Event"))
		fmt.Fprintf(&b, "   📅 Date: %s\n", eventDate(ev.Date))
		if ev.Description != "" {
			fmt.Fprintf(&b, "   📝 %s\n", truncateDescription(ev.Description, 100))
		}
		if link := ev.Website(); link != "" {
			fmt.Fprintf(&b, "   🔗 [More Info](%s)\n", link)
		}
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String())
}

func eventText(ev model.Event) string {
	return ev.Title + " " + ev.Description + " " + strings.Join(ev.Tags, " ")
}

func copyEvent(ev model.Event) model.Event {
	out := ev
	if ev.Tags != nil {
		out.Tags = append([]string(nil), ev.Tags...)
	}
	if ev.Location != nil {
		loc := *ev.Location
		out.Location = &loc
	}
	if ev.SocialLinks != nil {
		links := *ev.SocialLinks
		out.SocialLinks = &links
	}
	return out
}

// eventDate 日期截断到天，缺失为 TBA
func eventDate(date string) string {
	if date == "" {
		return "TBA"
	}
	return truncateRunes(date, 10)
}

func titleOrDefault(title, fallback string) string {
	if strings.TrimSpace(title) == "" {
		return fallback
	}
	return title
}

// truncateDescription 超过 max 个字符时保留前 max-3 个并追加 "..."
func truncateDescription(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
