package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campverse/campverse-bot/internal/client"
	"github.com/campverse/campverse-bot/internal/config"
	"github.com/campverse/campverse-bot/internal/handler"
	"github.com/campverse/campverse-bot/internal/middleware"
	"github.com/campverse/campverse-bot/internal/service"
	"github.com/campverse/campverse-bot/pkg/logger"
	redispkg "github.com/campverse/campverse-bot/pkg/redis"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/chatbot.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化日志
	zapLogger, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("chatbot 服务启动中...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis 可选：不可用时只是没有会话历史和活动快照
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redispkg.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			zapLogger.Warn("Redis 不可用，禁用会话历史与活动快照", zap.Error(err))
		} else {
			defer redisClient.Close()
			zapLogger.Info("Redis 连接成功", zap.String("host", cfg.Redis.Host), zap.Int("port", cfg.Redis.Port))
		}
	}

	// 初始化客户端
	embedder, err := client.NewEmbedder(cfg.Embedding, zapLogger)
	if err != nil {
		zapLogger.Fatal("初始化向量化客户端失败", zap.Error(err))
	}

	var completer service.Completer
	if cfg.AI.APIKey != "" {
		completer = client.NewLLMClient(cfg.AI, zapLogger)
	}
	enhancer := service.NewEnhancer(cfg.AI.APIKey, completer, zapLogger)

	// 初始化服务
	faqService := service.NewFAQService(embedder, cfg.FAQ.MaxDistance, zapLogger)
	if err := faqService.Reload(ctx, cfg.FAQ.Path); err != nil {
		zapLogger.Fatal("加载 FAQ 失败", zap.String("path", cfg.FAQ.Path), zap.Error(err))
	}

	var eventStore service.EventSnapshotStore
	var historyService *service.HistoryService
	if redisClient != nil {
		eventStore = service.NewRedisEventStore(redisClient)
		historyService = service.NewHistoryService(redisClient, zapLogger)
	}

	eventService := service.NewEventService(cfg.Events, embedder, eventStore, zapLogger)
	eventService.WarmStart(ctx)
	eventService.StartAutoRefresh(ctx, cfg.Events.RefreshInterval)

	classifier := service.NewIntentClassifier(zapLogger)
	router := service.NewRouterService(classifier, enhancer, eventService, faqService, cfg.Events.TopK, zapLogger)

	sessionService := service.NewSessionService(zapLogger)
	go sessionService.RunHeartbeatChecker(ctx, service.HeartbeatCheckInterval)

	// 初始化处理器
	apiHandler := handler.NewAPIHandler(cfg.Server.Name, router, eventService, faqService, enhancer, sessionService, zapLogger)
	wsHandler := handler.NewWebSocketHandler(sessionService, router, historyService, zapLogger)

	// 初始化路由
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestLogger(zapLogger), middleware.Recovery(zapLogger), middleware.CORS())

	limited := r.Group("/", middleware.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	limited.POST("/chatbot", apiHandler.Ask)
	limited.POST("/api/chatbot", apiHandler.Ask)

	// 会话通道
	r.GET("/ws", wsHandler.HandleWebSocket)

	r.POST("/api/events/refresh", apiHandler.RefreshEvents)
	r.GET("/api/health", apiHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		zapLogger.Info("chatbot 服务启动成功",
			zap.Int("port", cfg.Server.Port),
			zap.Int("faq", faqService.Count()),
			zap.Int("events", eventService.Count()),
			zap.Bool("aiEnhancer", enhancer.Available()))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("服务启动失败", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("收到退出信号，正在关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("服务关闭失败", zap.Error(err))
	}
}
