// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"campus-rag-go/internal/app"
	"campus-rag-go/internal/config"
	"campus-rag-go/internal/handler"
	"campus-rag-go/internal/middleware"
	"campus-rag-go/internal/normalizer"
	"campus-rag-go/internal/pipeline"
	"campus-rag-go/pkg/log"
	"campus-rag-go/pkg/telemetry"
	"campus-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	seedDir := flag.String("seed", "initfile", "启动时导入的文档目录")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 初始化链路追踪
	shutdownTracer, err := telemetry.InitTracer(rootCtx, cfg.Telemetry)
	if err != nil {
		log.Fatal("链路追踪初始化失败", err)
	}

	// 4. 初始化数据库、向量网关与各个服务
	a, err := app.New(rootCtx, cfg)
	if err != nil {
		log.Fatal("应用初始化失败", err)
	}
	defer a.Close()

	// 5. 启动后台 Kafka 消费者
	consumerDone := make(chan struct{})
	if consumer, err := a.NewConsumer(); err == nil {
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Kafka 消费者异常退出", err)
			}
		}()
	} else {
		close(consumerDone)
		log.Infof("异步导入未启用: %v", err)
	}

	// 6. 导入 seed 目录下的文档，已导入的内容会被跳过
	go initSeedFiles(rootCtx, *seedDir, a.Processor, int64(cfg.Ingestion.MaxFileSizeMB)<<20)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(
		otelgin.Middleware(cfg.Telemetry.ServiceName),
		middleware.RequestID(),
		middleware.RequestLogger(),
		gin.Recovery(),
	)

	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	timeout := middleware.Timeout(time.Duration(cfg.Server.RequestTimeout) * time.Second)

	chatHandler := handler.NewChatHandler(a.Chat)
	documentHandler := handler.NewDocumentHandler(a.Documents, int64(cfg.Ingestion.MaxFileSizeMB)<<20)
	conversationHandler := handler.NewConversationHandler(a.Conversations)

	var pinger handler.Pinger
	if sqlDB, err := a.DB.DB(); err == nil {
		pinger = sqlDB
	}
	r.GET("/health", handler.NewHealthHandler(pinger, cfg.Vector.Backend).Health)

	// 8. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		// 公开的问答与检索接口，携带 token 时会同步对话线程
		public := apiV1.Group("")
		public.Use(middleware.OptionalAuth(jwtManager), limiter.Middleware())
		{
			public.POST("/chat", timeout, chatHandler.Chat)
			public.GET("/chat/ws", chatHandler.Stream)
			public.GET("/search", timeout, handler.NewSearchHandler(a.Search).Search)
			public.GET("/events", timeout, handler.NewEventHandler(a.Events).ListEvents)
		}

		// 对话线程同步，需要认证
		chats := apiV1.Group("/chats")
		chats.Use(middleware.AuthMiddleware(jwtManager))
		{
			chats.GET("", conversationHandler.ListThreads)
			chats.PUT("/:id", conversationHandler.SaveThread)
			chats.DELETE("/:id", conversationHandler.DeleteThread)
		}

		// 文档管理，需要同时通过认证和管理员授权两个中间件
		documents := apiV1.Group("/documents")
		documents.Use(middleware.AuthMiddleware(jwtManager), middleware.AdminAuthMiddleware())
		{
			documents.POST("/upload", documentHandler.Upload)
			documents.GET("", documentHandler.ListDocuments)
			documents.DELETE("/:fileName", documentHandler.DeleteDocument)
			documents.GET("/download", documentHandler.DownloadURL)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	<-rootCtx.Done()
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	select {
	case <-consumerDone:
	case <-ctx.Done():
		log.Warnf("等待 Kafka 消费者退出超时")
	}
	if err := shutdownTracer(ctx); err != nil {
		log.Errorf("链路追踪关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

// initSeedFiles 扫描目录下支持的文件并通过导入流水线处理（幂等）。
func initSeedFiles(ctx context.Context, dir string, processor *pipeline.Processor, maxBytes int64) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("initSeedFiles: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	var inputs []pipeline.Input
	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if err := normalizer.Validate(info.Name(), info.Size(), maxBytes); err != nil {
			log.Infof("initSeedFiles: 跳过 %s: %v", path, err)
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("initSeedFiles: 读取文件失败: %s, err=%v", path, err)
			return nil
		}
		inputs = append(inputs, pipeline.Input{FileName: info.Name(), Data: data})
		return nil
	})
	if walkErr != nil {
		log.Warnf("initSeedFiles: 遍历目录发生错误: %v", walkErr)
	}
	if len(inputs) == 0 {
		return
	}

	run := processor.IngestBatch(ctx, inputs)
	log.Infof("initSeedFiles: 导入完成, run: %s, 成功 %d, 跳过 %d, 失败 %d",
		run.RunID, run.Summary.Succeeded, run.Summary.Skipped, run.Summary.Failed)
}
