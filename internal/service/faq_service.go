package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/campverse/campverse-bot/internal/client"
	"github.com/campverse/campverse-bot/internal/model"
	"github.com/campverse/campverse-bot/internal/vectorstore"
	"go.uber.org/zap"
)

// ErrFAQNotLoaded FAQ 尚未加载
var ErrFAQNotLoaded = errors.New("faq corpus not loaded")

// faqCorpus FAQ 表与索引按行对齐，整体发布
type faqCorpus struct {
	entries []model.FAQEntry
	index   *vectorstore.FlatL2Index
}

// FAQMatch FAQ 最近邻结果
type FAQMatch struct {
	Entry    model.FAQEntry
	Row      int
	Distance float64
}

// FAQService FAQ 语料检索
type FAQService struct {
	embedder    client.Embedder
	maxDistance float64
	corpus      atomic.Pointer[faqCorpus]
	logger      *zap.Logger
}

// NewFAQService 创建 FAQ 服务，maxDistance 为 0 表示不设距离上限
func NewFAQService(embedder client.Embedder, maxDistance float64, logger *zap.Logger) *FAQService {
	return &FAQService{
		embedder:    embedder,
		maxDistance: maxDistance,
		logger:      logger,
	}
}

// LoadFAQFile 读取 JSON 数组格式的 FAQ 文件
func LoadFAQFile(path string) ([]model.FAQEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取 FAQ 文件失败: %w", err)
	}

	var entries []model.FAQEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("解析 FAQ 文件失败: %w", err)
	}
	return entries, nil
}

// Build 向量化全部 FAQ 问题并构建索引，成功后原子替换当前语料
func (s *FAQService) Build(ctx context.Context, entries []model.FAQEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("FAQ 为空: %w", vectorstore.ErrEmptyIndex)
	}

	questions := make([]string, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Question) == "" {
			return fmt.Errorf("第 %d 条 FAQ 缺少问题", i)
		}
		questions[i] = e.Question
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, questions)
	if err != nil {
		return fmt.Errorf("FAQ 向量化失败: %w", err)
	}
	if len(vectors) != len(entries) {
		return fmt.Errorf("FAQ 向量数量不一致: %d != %d", len(vectors), len(entries))
	}

	index, err := vectorstore.NewFlatL2Index(vectors)
	if err != nil {
		return fmt.Errorf("构建 FAQ 索引失败: %w", err)
	}

	s.corpus.Store(&faqCorpus{
		entries: append([]model.FAQEntry(nil), entries...),
		index:   index,
	})

	s.logger.Info("FAQ 索引已构建",
		zap.Int("count", len(entries)),
		zap.Int("dimension", index.Dimension()))
	return nil
}

// Reload 重新读取 FAQ 文件并重建索引，失败时保留旧语料
func (s *FAQService) Reload(ctx context.Context, path string) error {
	entries, err := LoadFAQFile(path)
	if err != nil {
		return err
	}
	return s.Build(ctx, entries)
}

// Lookup 返回与问题最接近的 FAQ（k=1）
func (s *FAQService) Lookup(ctx context.Context, question string) (*FAQMatch, error) {
	corpus := s.corpus.Load()
	if corpus == nil {
		return nil, ErrFAQNotLoaded
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}

	neighbors, err := corpus.index.Nearest(queryVector, 1)
	if err != nil {
		return nil, fmt.Errorf("FAQ 检索失败: %w", err)
	}
	if len(neighbors) == 0 {
		return nil, ErrFAQNotLoaded
	}

	best := neighbors[0]
	return &FAQMatch{
		Entry:    corpus.entries[best.Row],
		Row:      best.Row,
		Distance: best.Distance,
	}, nil
}

// WithinRange 距离是否在配置的上限内（上限为 0 时总是 true）
func (s *FAQService) WithinRange(match *FAQMatch) bool {
	return s.maxDistance <= 0 || match.Distance <= s.maxDistance
}

// Count FAQ 条目数
func (s *FAQService) Count() int {
	corpus := s.corpus.Load()
	if corpus == nil {
		return 0
	}
	return len(corpus.entries)
}
