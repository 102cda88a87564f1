package pipeline

import (
	"fmt"
	"sync"
	"time"

	"datapilot-go/pkg/log"
)

// Trail 累积一次请求中逐步的处理日志，成功与失败时都会返回给调用方。
type Trail struct {
	mu    sync.Mutex
	lines []string
	now   func() time.Time
}

// NewTrail 创建一个空的 Trail。
func NewTrail() *Trail {
	return &Trail{now: time.Now}
}

// Add 追加一行，同时写入应用日志。
func (t *Trail) Add(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Infof("[Pipeline] %s", msg)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, fmt.Sprintf("[%s] %s", t.now().Format("15:04:05"), msg))
}

// Lines 返回当前所有日志行的副本。
func (t *Trail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}
