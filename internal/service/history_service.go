package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/campverse/campverse-bot/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	historyTTL    = 24 * time.Hour
	historyMaxLen = 20
)

// HistoryService 会话历史（Redis 列表，每个会话一个 key）
type HistoryService struct {
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewHistoryService 创建会话历史服务
func NewHistoryService(redisClient *redis.Client, logger *zap.Logger) *HistoryService {
	return &HistoryService{redisClient: redisClient, logger: logger}
}

func historyKey(sessionID string) string {
	return fmt.Sprintf("chat_history:%s", sessionID)
}

// Append 追加一条问答，只保留最近 20 条，24 小时过期
func (s *HistoryService) Append(ctx context.Context, sessionID string, entry model.HistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("序列化历史失败: %w", err)
	}

	key := historyKey(sessionID)
	pipe := s.redisClient.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -historyMaxLen, -1)
	pipe.Expire(ctx, key, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("保存历史失败: %w", err)
	}
	return nil
}

// Recent 读取最近 n 条历史（按时间顺序）
func (s *HistoryService) Recent(ctx context.Context, sessionID string, n int) ([]model.HistoryEntry, error) {
	if n <= 0 {
		return nil, nil
	}

	items, err := s.redisClient.LRange(ctx, historyKey(sessionID), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("读取历史失败: %w", err)
	}

	entries := make([]model.HistoryEntry, 0, len(items))
	for _, item := range items {
		var entry model.HistoryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			s.logger.Warn("跳过无法解析的历史记录", zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// RedisEventStore 活动快照的 Redis 实现
type RedisEventStore struct {
	redisClient *redis.Client
	key         string
}

// NewRedisEventStore 创建活动快照存储
func NewRedisEventStore(redisClient *redis.Client) *RedisEventStore {
	return &RedisEventStore{redisClient: redisClient, key: "chatbot:events:snapshot"}
}

// SaveEvents 保存活动原始列表
func (s *RedisEventStore) SaveEvents(ctx context.Context, events []model.Event) error {
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("序列化活动快照失败: %w", err)
	}
	return s.redisClient.Set(ctx, s.key, data, 0).Err()
}

// LoadEvents 读取活动原始列表
func (s *RedisEventStore) LoadEvents(ctx context.Context) ([]model.Event, error) {
	data, err := s.redisClient.Get(ctx, s.key).Bytes()
	if err != nil {
		return nil, fmt.Errorf("读取活动快照失败: %w", err)
	}

	var events []model.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("解析活动快照失败: %w", err)
	}
	return events, nil
}
