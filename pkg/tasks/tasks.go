// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// IngestionTask 是一次异步入库任务：文件已写入暂存区，由消费者执行完整管道。
type IngestionTask struct {
	TaskID   string `json:"task_id"`
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	Database string `json:"database"`
}
