package database

import (
	"context"
	"time"

	"datapilot-go/internal/config"
	"datapilot-go/pkg/log"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoClient 是按 (database, category) 存放入库数据的文档库客户端。
var MongoClient *mongo.Client

// InitMongo 连接 MongoDB 并做一次 Ping。
func InitMongo(cfg config.MongoDBConfig) {
	timeout := time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetConnectTimeout(timeout))
	if err != nil {
		log.Fatal("failed to connect mongodb", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		log.Fatal("failed to ping mongodb", err)
	}
	MongoClient = client
	log.Info("MongoDB client connected successfully")
}

// CloseMongo 断开连接，进程退出时调用。
func CloseMongo(ctx context.Context) {
	if MongoClient == nil {
		return
	}
	if err := MongoClient.Disconnect(ctx); err != nil {
		log.Errorf("failed to disconnect mongodb: %v", err)
	}
}
