// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"datapilot-go/internal/config"
	"datapilot-go/internal/handler"
	"datapilot-go/internal/pipeline"
	"datapilot-go/internal/report"
	"datapilot-go/internal/repository"
	"datapilot-go/internal/retrieval"
	"datapilot-go/internal/service"
	"datapilot-go/internal/transform"
	"datapilot-go/pkg/database"
	"datapilot-go/pkg/embedding"
	"datapilot-go/pkg/es"
	"datapilot-go/pkg/kafka"
	"datapilot-go/pkg/llm"
	"datapilot-go/pkg/log"
	"datapilot-go/pkg/retry"
	"datapilot-go/pkg/storage"
	"datapilot-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、MongoDB、对象存储、ES 与 Kafka
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	database.InitMongo(cfg.Database.MongoDB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)
	defer kafka.CloseProducer()

	layout := pipeline.NewLayout(cfg.Pipeline.WorkspaceDir)
	if err := layout.Ensure(); err != nil {
		log.Fatal("创建工作目录失败", err)
	}

	// 4. 初始化 Repository
	schemaRepo := repository.NewSchemaRepository(database.DB)
	logRepo := repository.NewIngestionLogRepository(database.DB)
	indexedRepo := repository.NewIndexedFileRepository(database.DB)
	collectionRepo := repository.NewCollectionRepository(database.MongoClient)
	lockRepo := repository.NewLockRepository(database.RDB)
	objectStore := storage.NewObjectStore(storage.MinioClient, cfg.MinIO.BucketName)

	// 5. 模型相关客户端
	policy := retryPolicy(cfg.Retry)
	llmClient := llm.NewClient(cfg.LLM, policy)
	embeddingClient := embedding.NewClient(cfg.Embedding, policy)
	modelEnabled := cfg.LLM.Enabled()
	if !modelEnabled {
		log.Warnf("未配置 LLM，使用确定性策略与启发式规则")
	}

	// 6. 初始化文件处理管道
	var (
		keySuggester     pipeline.KeySuggester
		featureSuggester transform.FeatureSuggester
		narrator         report.Narrator
		guided           pipeline.GuidedOptions
	)
	if modelEnabled {
		keySuggester = pipeline.NewLLMKeySuggester(llmClient)
		if cfg.Pipeline.Transform.SuggestFeatures {
			featureSuggester = transform.NewLLMFeatureSuggester(llmClient)
		}
		if cfg.Pipeline.Report.Narrate {
			narrator = report.NewLLMNarrator(llmClient)
		}
		if cfg.Pipeline.Guided.Enabled {
			guided = pipeline.GuidedOptions{
				Decider:       pipeline.NewModelDecider(llmClient),
				MaxIterations: cfg.Pipeline.Guided.MaxIterations,
				Timeout:       time.Duration(cfg.Pipeline.Guided.TimeoutSeconds) * time.Second,
			}
		}
	}

	validator := pipeline.NewValidator(schemaRepo)
	orchestrator := pipeline.NewOrchestrator(pipeline.Dependencies{
		Classifier: pipeline.NewClassifier(schemaRepo, pipeline.DefaultKeywords),
		Validator:  validator,
		Keys:       pipeline.NewKeyIdentifier(keySuggester),
		Persister:  pipeline.NewPersister(collectionRepo),
		Mover:      pipeline.NewMover(layout),
		Logs:       logRepo,
		Layout:     layout,
	}, guided)

	vectorStore := es.NewVectorStore(es.ESClient, cfg.Elasticsearch.IndexName)
	processor := pipeline.NewProcessor(
		orchestrator,
		validator,
		transform.NewTransformer(featureSuggester),
		report.NewGenerator(schemaRepo, narrator),
		retrieval.NewBuilder(embeddingClient, vectorStore, indexedRepo),
		objectStore,
		lockRepo,
		layout,
		time.Duration(cfg.Pipeline.LockTTLSeconds)*time.Second,
	)
	querier := retrieval.NewQuerier(embeddingClient, vectorStore, indexedRepo, llmClient, cfg.Query.TopK,
		retrieval.Prompt{
			Rules:        cfg.LLM.Prompt.Rules,
			RefStart:     cfg.LLM.Prompt.RefStart,
			RefEnd:       cfg.LLM.Prompt.RefEnd,
			NoResultText: cfg.LLM.Prompt.NoResultText,
		}, generationParams(cfg.LLM.Generation))

	// 7. 初始化 Service
	schemaService := service.NewSchemaService(schemaRepo)
	ingestionService := service.NewIngestionService(processor, kafka.ProduceIngestionTask, layout, cfg.Pipeline.DefaultDatabase)
	services := handler.Services{
		Ingestion: ingestionService,
		Query:     service.NewQueryService(querier),
		Schema:    schemaService,
		Catalog:   service.NewCatalogService(collectionRepo),
		Logs:      service.NewLogService(logRepo),
		Reports:   service.NewReportService(objectStore, layout, time.Duration(cfg.MinIO.PresignExpiryMinutes)*time.Minute),
	}

	// 7.1 默认库写入内置 schema，已存在的类别不覆盖
	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 30*time.Second)
	if n, err := schemaService.SeedDefaults(seedCtx, cfg.Pipeline.DefaultDatabase, cfg.Schemas.Defaults); err != nil {
		log.Errorf("写入默认 schema 失败: %v", err)
	} else if n > 0 {
		log.Infof("已为库 %s 写入 %d 个默认 schema", cfg.Pipeline.DefaultDatabase, n)
	}
	cancelSeed()

	// 8. 启动后台 Kafka 消费者
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	go kafka.StartConsumer(consumerCtx, cfg.Kafka, processor, database.RDB)

	// 8.1 导入 seed 目录中的文件，走异步入库
	go initSeedFiles(consumerCtx, cfg.Pipeline.SeedDir, cfg.Pipeline.DefaultDatabase, ingestionService)

	// 9. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	r := handler.NewRouter(services, jwtManager, cfg.Server.MaxUploadMB)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	stopConsumer()
	database.CloseMongo(ctx)
	log.Info("服务已优雅关闭")
}

func retryPolicy(cfg config.RetryConfig) retry.Policy {
	policy := retry.DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialDelayMs > 0 && cfg.MaxDelayMs > 0 {
		multiplier := cfg.Multiplier
		if multiplier < 1 {
			multiplier = 2.0
		}
		policy.Backoff = retry.ExponentialBackoff(
			time.Duration(cfg.InitialDelayMs)*time.Millisecond,
			time.Duration(cfg.MaxDelayMs)*time.Millisecond,
			multiplier, 0.1)
	}
	return policy
}

func generationParams(cfg config.LLMGenerationConfig) *llm.GenerationParams {
	var gp llm.GenerationParams
	if cfg.Temperature != 0 {
		t := cfg.Temperature
		gp.Temperature = &t
	}
	if cfg.TopP != 0 {
		p := cfg.TopP
		gp.TopP = &p
	}
	if cfg.MaxTokens != 0 {
		m := cfg.MaxTokens
		gp.MaxTokens = &m
	}
	return &gp
}

// initSeedFiles 扫描目录下受支持的表格文件，逐个投递入库任务。
// 入库是 upsert，重复导入不会产生重复文档。
func initSeedFiles(ctx context.Context, dir, dbName string, ingestion service.IngestionService) {
	if dir == "" {
		return
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("initSeedFiles: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !pipeline.SupportedExtension(info.Name()) {
			log.Infof("initSeedFiles: 不支持的文件类型，跳过: %s", path)
			return nil
		}
		taskID, err := ingestion.EnqueueLocalFile(ctx, path, dbName)
		if err != nil {
			log.Warnf("initSeedFiles: 投递失败: %s, err=%v", path, err)
			return nil
		}
		log.Infof("initSeedFiles: 已投递 %s, TaskID=%s", info.Name(), taskID)
		return nil
	})
	if walkErr != nil {
		log.Warnf("initSeedFiles: 遍历目录发生错误: %v", walkErr)
	}
}
