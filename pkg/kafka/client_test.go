package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"datapilot-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCounter struct {
	counts map[string]int64
	fail   bool
}

func (c *memCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if c.fail {
		cmd.SetErr(errors.New("redis down"))
		return cmd
	}
	c.counts[key]++
	cmd.SetVal(c.counts[key])
	return cmd
}

func (c *memCounter) Expire(ctx context.Context, _ string, _ time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func (c *memCounter) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(c.counts, k)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(keys)))
	return cmd
}

type memCommitter struct{ commits int }

func (m *memCommitter) CommitMessages(context.Context, ...kafka.Message) error {
	m.commits++
	return nil
}

type stubProcessor struct{ err error }

func (p stubProcessor) Process(context.Context, tasks.IngestionTask) error { return p.err }

func message(t *testing.T) kafka.Message {
	b, err := json.Marshal(tasks.IngestionTask{TaskID: "t1", FileName: "s.csv", FilePath: "/w/staging/s.csv", Database: "shop"})
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestHandleMessageSuccessCommits(t *testing.T) {
	c := &memCounter{counts: map[string]int64{"kafka:attempts:t1": 2}}
	r := &memCommitter{}
	handleMessage(context.Background(), r, message(t), stubProcessor{}, c)
	assert.Equal(t, 1, r.commits)
	assert.NotContains(t, c.counts, "kafka:attempts:t1")
}

func TestHandleMessageRetriesThenGivesUp(t *testing.T) {
	c := &memCounter{counts: map[string]int64{}}
	r := &memCommitter{}
	p := stubProcessor{err: errors.New("boom")}
	m := message(t)

	handleMessage(context.Background(), r, m, p, c)
	handleMessage(context.Background(), r, m, p, c)
	assert.Equal(t, 0, r.commits, "not committed before the attempt limit")
	handleMessage(context.Background(), r, m, p, c)
	assert.Equal(t, 1, r.commits)
}

func TestHandleMessageRedisDownDoesNotCommit(t *testing.T) {
	r := &memCommitter{}
	handleMessage(context.Background(), r, message(t), stubProcessor{err: errors.New("boom")}, &memCounter{fail: true})
	assert.Equal(t, 0, r.commits)
}

func TestHandleMessageMalformedCommits(t *testing.T) {
	r := &memCommitter{}
	handleMessage(context.Background(), r, kafka.Message{Value: []byte("{")}, stubProcessor{}, &memCounter{counts: map[string]int64{}})
	assert.Equal(t, 1, r.commits)
}
