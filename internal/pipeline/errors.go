package pipeline

import "errors"

var (
	// ErrUnsupportedFormat 文件扩展名不是 csv/json/xlsx。
	ErrUnsupportedFormat = errors.New("unsupported file extension")
	// ErrUnclassified 文件的列与任何类别都没有交集。
	ErrUnclassified = errors.New("file does not match any category")
	// ErrSourceMissing 移动时源文件已不存在。
	ErrSourceMissing = errors.New("source does not exist")
	// ErrNoColumns 数据集没有任何列，无法选择主键。
	ErrNoColumns = errors.New("no columns available")
	// ErrUnsafeDestination 类别或文件名会让目标路径落到 organized 目录之外。
	ErrUnsafeDestination = errors.New("destination escapes organized root")
	// ErrVerification 策略声称成功，但目标路径上没有文件。
	ErrVerification = errors.New("post-move verification failed")
	// ErrFileBusy 同名文件正在另一条管道中处理。
	ErrFileBusy = errors.New("file is already being processed")
	// ErrReportUnavailable 报告生成失败，请求无法完成。
	ErrReportUnavailable = errors.New("report could not be generated")

	errIterationCap = errors.New("iteration cap exceeded")
	errIllegalStage = errors.New("illegal stage for current state")
)
