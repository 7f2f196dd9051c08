package client

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/campverse/campverse-bot/internal/config"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrNoEmbedding 服务端未返回向量
var ErrNoEmbedding = errors.New("no embedding returned")

// Embedder 文本向量化接口（文档与查询分开，部分模型对两者编码不同）
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder 根据配置创建向量化客户端
func NewEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	switch cfg.Provider {
	case "local":
		return NewHashEmbedder(cfg.Dimensions), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedding provider %q 需要 apiKey", cfg.Provider)
		}
		return NewOpenAIEmbeddingClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("未知的 embedding provider: %s", cfg.Provider)
	}
}

// OpenAIEmbeddingClient OpenAI 兼容接口的 Embedding 客户端
type OpenAIEmbeddingClient struct {
	client     *openai.Client
	model      string
	dimensions int
	logger     *zap.Logger
}

// NewOpenAIEmbeddingClient 创建 Embedding 客户端
func NewOpenAIEmbeddingClient(cfg config.EmbeddingConfig, logger *zap.Logger) *OpenAIEmbeddingClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: 30 * time.Second}

	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	return &OpenAIEmbeddingClient{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      model,
		dimensions: cfg.Dimensions,
		logger:     logger,
	}
}

// EmbedDocuments 批量获取文本向量
func (c *OpenAIEmbeddingClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	c.logger.Debug("获取文本向量", zap.Int("count", len(texts)))

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(c.model),
		Dimensions: c.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrNoEmbedding, len(texts), len(resp.Data))
	}

	// 按 index 回填，保证与输入顺序一致
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index 越界: %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}

	c.logger.Debug("向量获取成功",
		zap.Int("count", len(vectors)),
		zap.Int("tokens", resp.Usage.TotalTokens))

	return vectors, nil
}

// EmbedQuery 获取查询文本的向量
func (c *OpenAIEmbeddingClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, ErrNoEmbedding
	}
	return vectors[0], nil
}

// HashEmbedder 本地特征哈希向量化（无需外部服务，词与字符三元组哈希到固定维度后归一化）
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder 创建本地向量化器
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// EmbedDocuments 批量向量化
func (e *HashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.embed(text)
	}
	return vectors, nil
}

// EmbedQuery 查询向量化
func (e *HashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float64, e.dimensions)
	for _, token := range tokenize(text) {
		e.add(vec, "w:"+token, 1.0)
		padded := "#" + token + "#"
		runes := []rune(padded)
		for i := 0; i+3 <= len(runes); i++ {
			e.add(vec, "c:"+string(runes[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, e.dimensions)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func (e *HashEmbedder) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimensions))
	if (sum>>63)&1 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
