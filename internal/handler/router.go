package handler

import (
	"datapilot-go/internal/middleware"
	"datapilot-go/internal/service"
	"datapilot-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// Services 汇总路由需要的业务服务。
type Services struct {
	Ingestion service.IngestionService
	Query     service.QueryService
	Schema    service.SchemaService
	Catalog   service.CatalogService
	Logs      service.LogService
	Reports   service.ReportService
}

// NewRouter 注册所有 /api/v1 路由。
func NewRouter(svc Services, jwtManager *token.JWTManager, maxUploadMB int64) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	uploadHandler := NewUploadHandler(svc.Ingestion, maxUploadMB)
	queryHandler := NewQueryHandler(svc.Query)
	schemaHandler := NewSchemaHandler(svc.Schema)
	catalogHandler := NewCatalogHandler(svc.Catalog)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/upload", uploadHandler.Upload)
		apiV1.POST("/upload/async", uploadHandler.UploadAsync)

		apiV1.POST("/query", queryHandler.Query)
		apiV1.GET("/query/ws", queryHandler.Stream)
		apiV1.GET("/files", queryHandler.ListFiles)

		apiV1.GET("/schemas", schemaHandler.List)
		apiV1.GET("/schemas/:db/:category", schemaHandler.Get)
		// 修改 schema 需要管理员 token
		admin := apiV1.Group("/schemas")
		admin.Use(middleware.AdminAuthMiddleware(jwtManager))
		{
			admin.POST("", schemaHandler.Save)
			admin.DELETE("/:db/:category", schemaHandler.Delete)
		}

		apiV1.GET("/databases", catalogHandler.ListDatabases)
		apiV1.GET("/databases/:db/collections", catalogHandler.ListCollections)

		apiV1.GET("/logs", NewLogHandler(svc.Logs).GetLogs)
		apiV1.GET("/reports/download", NewReportHandler(svc.Reports).Download)
	}
	return r
}
