// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"datapilot-go/internal/config"
	"datapilot-go/pkg/log"
	"datapilot-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

const maxAttempts = 3

// TaskProcessor 把 Kafka 消费者与具体的管道实现解耦。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestionTask) error
}

// AttemptCounter 记录每个任务的失败次数，由 Redis 实现。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceIngestionTask 发送一个入库任务到 Kafka，文件名作为消息 key。
func ProduceIngestionTask(ctx context.Context, task tasks.IngestionTask) error {
	if producer == nil {
		return fmt.Errorf("kafka producer is not initialized")
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.FileName),
		Value: taskBytes,
	})
}

// CloseProducer 关闭生产者。
func CloseProducer() {
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
}

// StartConsumer 启动一个 Kafka 消费者来处理入库任务，ctx 取消时退出。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, counter AttemptCounter) {
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "datapilot-go-consumer"
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}
		handleMessage(ctx, r, m, processor, counter)
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}

type committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// handleMessage 成功或失败次数达到上限时提交 offset，否则不提交，让 Kafka 重新投递。
func handleMessage(ctx context.Context, r committer, m kafka.Message, processor TaskProcessor, counter AttemptCounter) {
	log.Infof("收到 Kafka 消息: offset %d", m.Offset)

	var task tasks.IngestionTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		// 消息格式错误，直接提交，避免阻塞队列
		commit(ctx, r, m)
		return
	}

	log.Infof("开始处理入库任务: TaskID=%s, FileName=%s, Database=%s", task.TaskID, task.FileName, task.Database)
	attemptsKey := fmt.Sprintf("kafka:attempts:%s", task.TaskID)
	if err := processor.Process(ctx, task); err != nil {
		log.Errorf("处理入库任务失败: TaskID=%s, Error: %v", task.TaskID, err)
		attempts, incErr := counter.Incr(ctx, attemptsKey).Result()
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
			return
		}
		_ = counter.Expire(ctx, attemptsKey, 24*time.Hour).Err()
		if attempts >= maxAttempts {
			log.Errorf("入库任务多次失败(>=%d)，提交 offset 终止重试: TaskID=%s", maxAttempts, task.TaskID)
			commit(ctx, r, m)
		}
		return
	}

	log.Infof("入库任务处理成功: TaskID=%s", task.TaskID)
	_ = counter.Del(ctx, attemptsKey).Err()
	commit(ctx, r, m)
}

func commit(ctx context.Context, r committer, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}
