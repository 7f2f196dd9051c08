package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/campverse/campverse-bot/internal/config"
	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	// ErrCircuitOpen 熔断器打开，直接拒绝调用
	ErrCircuitOpen = errors.New("llm circuit breaker is open")
	// ErrEmptyCompletion 模型没有返回内容
	ErrEmptyCompletion = errors.New("llm returned no choices")
)

// LLMClient OpenAI 兼容接口的文本补全客户端（不重试，失败即返回）
type LLMClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewLLMClient 创建大模型客户端
func NewLLMClient(cfg config.AIConfig, logger *zap.Logger) *LLMClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := config.ClampTimeout(cfg.Timeout)
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	c := &LLMClient{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: timeout,
		logger:  logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("LLM 熔断器状态变化",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return c
}

// Complete 单轮补全：发送 prompt，返回模型文本
func (c *LLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: 0.3,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, ErrEmptyCompletion
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", ErrCircuitOpen
		}
		return "", fmt.Errorf("llm completion failed: %w", err)
	}

	c.logger.Debug("LLM 调用完成",
		zap.String("model", c.model),
		zap.Duration("latency", time.Since(start)))

	return result.(string), nil
}

// State 熔断器状态
func (c *LLMClient) State() string {
	return c.breaker.State().String()
}
