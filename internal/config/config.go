// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Schemas       SchemasConfig       `mapstructure:"schemas"`
	Query         QueryConfig         `mapstructure:"query"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// MaxUploadMB 限制单个上传文件的大小
	MaxUploadMB int64 `mapstructure:"max_upload_mb"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL   MySQLConfig   `mapstructure:"mysql"`
	Redis   RedisConfig   `mapstructure:"redis"`
	MongoDB MongoDBConfig `mapstructure:"mongodb"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MongoDBConfig 存储文档数据库（按类别分集合）的配置。
type MongoDBConfig struct {
	URI                   string `mapstructure:"uri"`
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	// PresignExpiryMinutes 下载链接有效期
	PresignExpiryMinutes int `mapstructure:"presign_expiry_minutes"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey         string              `mapstructure:"api_key"`
	BaseURL        string              `mapstructure:"base_url"`
	Model          string              `mapstructure:"model"`
	TimeoutSeconds int                 `mapstructure:"timeout_seconds"`
	Generation     LLMGenerationConfig `mapstructure:"generation"`
	Prompt         LLMPromptConfig     `mapstructure:"prompt"`
}

// Enabled 判断是否配置了可用的模型服务。
func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置问答的系统提示与上下文包裹格式（可选）。
type LLMPromptConfig struct {
	Rules        string `mapstructure:"rules"`
	RefStart     string `mapstructure:"ref_start"`
	RefEnd       string `mapstructure:"ref_end"`
	NoResultText string `mapstructure:"no_result_text"`
}

// RetryConfig 控制模型与 Embedding 调用的重试策略。
type RetryConfig struct {
	MaxAttempts    int     `mapstructure:"max_attempts"`
	InitialDelayMs int     `mapstructure:"initial_delay_ms"`
	MaxDelayMs     int     `mapstructure:"max_delay_ms"`
	Multiplier     float64 `mapstructure:"multiplier"`
}

// PipelineConfig 存储文件处理管道的配置。
type PipelineConfig struct {
	// WorkspaceDir 下包含 staging/organized/transformed/report 四个区域
	WorkspaceDir    string             `mapstructure:"workspace_dir"`
	DefaultDatabase string             `mapstructure:"default_database"`
	LockTTLSeconds  int                `mapstructure:"lock_ttl_seconds"`
	SeedDir         string             `mapstructure:"seed_dir"`
	Guided          GuidedConfig       `mapstructure:"guided"`
	Transform       TransformLLMConfig `mapstructure:"transform"`
	Report          ReportConfig       `mapstructure:"report"`
}

// GuidedConfig 控制模型驱动策略。
type GuidedConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	MaxIterations  int  `mapstructure:"max_iterations"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
}

// TransformLLMConfig 控制是否让模型为无内置规则的类别推断派生列。
type TransformLLMConfig struct {
	SuggestFeatures bool `mapstructure:"suggest_features"`
}

// ReportConfig 控制报告中的模型点评段落。
type ReportConfig struct {
	Narrate bool `mapstructure:"narrate"`
}

// SchemasConfig 启动时写入默认库的类别 schema（已存在则跳过）。
type SchemasConfig struct {
	Defaults map[string][]string `mapstructure:"defaults"`
}

// QueryConfig 存储检索问答的配置。
type QueryConfig struct {
	TopK int `mapstructure:"top_k"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	// 允许通过环境变量覆盖，例如 LLM_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}

func setDefaults() {
	viper.SetDefault("server.port", "8081")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.max_upload_mb", 50)
	viper.SetDefault("database.mongodb.connect_timeout_seconds", 10)
	viper.SetDefault("jwt.access_token_expire_hours", 24)
	viper.SetDefault("kafka.group_id", "datapilot-go-consumer")
	viper.SetDefault("elasticsearch.index_name", "row_vectors")
	viper.SetDefault("minio.presign_expiry_minutes", 60)
	viper.SetDefault("embedding.batch_size", 64)
	viper.SetDefault("llm.timeout_seconds", 60)
	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.initial_delay_ms", 1000)
	viper.SetDefault("retry.max_delay_ms", 10000)
	viper.SetDefault("retry.multiplier", 2.0)
	viper.SetDefault("pipeline.workspace_dir", "./data")
	viper.SetDefault("pipeline.default_database", "datapilot")
	viper.SetDefault("pipeline.lock_ttl_seconds", 600)
	viper.SetDefault("pipeline.guided.enabled", true)
	viper.SetDefault("pipeline.guided.max_iterations", 10)
	viper.SetDefault("pipeline.guided.timeout_seconds", 120)
	viper.SetDefault("query.top_k", 5)
}
