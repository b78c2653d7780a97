package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/buruapp/buru-server/internal/errors"
)

// fakeRedis is an in-memory RedisClient.
type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Close() error { return nil }

// fakeEnqueuer records enqueued tasks. onEnqueue, when set, runs before
// the task is accepted.
type fakeEnqueuer struct {
	tasks     []*asynq.Task
	opts      [][]asynq.Option
	err       error
	onEnqueue func(task *asynq.Task)
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.onEnqueue != nil {
		f.onEnqueue(task)
	}
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(context.Context) error {
	f.calls++
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStateStore_SetGet(t *testing.T) {
	rdb := newFakeRedis()
	states := NewStateStore(rdb, testLogger())
	states.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	require.NoError(t, states.Set(ctx, "t1", StatusPending, "queued"))

	got, err := states.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, &TaskState{Status: StatusPending, Message: "queued", UpdatedAt: "2024-06-01T12:00:00Z"}, got)
	assert.Equal(t, taskStateTTL, rdb.ttls[taskMetaPrefix+"t1"])

	_, err = states.Get(ctx, "missing")
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err))

	rdb.values[taskMetaPrefix+"bad"] = "{not json"
	_, err = states.Get(ctx, "bad")
	assert.Equal(t, domainerrors.CodeInternal, domainerrors.CodeOf(err))

	rdb.setErr = errors.New("connection refused")
	err = states.Set(ctx, "t2", StatusPending, "")
	assert.Equal(t, domainerrors.CodeIO, domainerrors.CodeOf(err))

	assert.NoError(t, states.Ping(ctx))
}

func TestClient_EnqueueRefresh(t *testing.T) {
	rdb := newFakeRedis()
	enq := &fakeEnqueuer{}
	client := NewClient(enq, NewStateStore(rdb, testLogger()), "buru", testLogger())
	ctx := context.Background()

	taskID, err := client.EnqueueRefresh(ctx)
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TypeRefreshTagCounts, enq.tasks[0].Type())
	assert.JSONEq(t, `{"task_id":"`+taskID+`"}`, string(enq.tasks[0].Payload()))

	st, err := client.Status(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, st.Status)

	_, err = client.Status(ctx, "not-a-uuid")
	assert.Equal(t, domainerrors.CodeInvalidArgument, domainerrors.CodeOf(err))

	_, err = client.Status(ctx, "6f1c0f8e-2a7b-4b6f-9a43-6f3c5b2e9d10")
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err))
}

func TestClient_EnqueueFailure(t *testing.T) {
	states := NewStateStore(newFakeRedis(), testLogger())
	ctx := context.Background()

	var taskID string
	enq := &fakeEnqueuer{err: errors.New("redis down")}
	enq.onEnqueue = func(task *asynq.Task) {
		var p refreshPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &p))
		taskID = p.TaskID
	}
	client := NewClient(enq, states, "buru", testLogger())

	_, err := client.EnqueueRefresh(ctx)
	assert.Equal(t, domainerrors.CodeIO, domainerrors.CodeOf(err))

	require.NotEmpty(t, taskID)
	st, err := states.Get(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, st.Status)
	assert.Equal(t, "redis down", st.Message)
}

func TestClient_PendingRecordedBeforeEnqueue(t *testing.T) {
	states := NewStateStore(newFakeRedis(), testLogger())
	ctx := context.Background()

	var seen Status
	enq := &fakeEnqueuer{}
	enq.onEnqueue = func(task *asynq.Task) {
		var p refreshPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &p))
		st, err := states.Get(ctx, p.TaskID)
		require.NoError(t, err)
		seen = st.Status

		// A worker that starts immediately must not be overwritten.
		require.NoError(t, states.Set(ctx, p.TaskID, StatusStarted, "refreshing tag counts"))
	}
	client := NewClient(enq, states, "buru", testLogger())

	taskID, err := client.EnqueueRefresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, seen)

	st, err := states.Get(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusStarted, st.Status)
}

func TestHandler_ProcessRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		rdb := newFakeRedis()
		states := NewStateStore(rdb, testLogger())
		refresher := &fakeRefresher{}
		h := NewHandler(refresher, states, testLogger())

		err := h.ProcessRefresh(ctx, asynq.NewTask(TypeRefreshTagCounts, []byte(`{"task_id":"t1"}`)))
		require.NoError(t, err)
		assert.Equal(t, 1, refresher.calls)

		st, err := states.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, st.Status)
	})

	t.Run("failure", func(t *testing.T) {
		rdb := newFakeRedis()
		states := NewStateStore(rdb, testLogger())
		h := NewHandler(&fakeRefresher{err: errors.New("database is locked")}, states, testLogger())

		err := h.ProcessRefresh(ctx, asynq.NewTask(TypeRefreshTagCounts, []byte(`{"task_id":"t2"}`)))
		require.Error(t, err)

		st, err := states.Get(ctx, "t2")
		require.NoError(t, err)
		assert.Equal(t, StatusFailure, st.Status)
		assert.Equal(t, "database is locked", st.Message)
	})

	t.Run("malformed payload skips retry", func(t *testing.T) {
		refresher := &fakeRefresher{}
		h := NewHandler(refresher, NewStateStore(newFakeRedis(), testLogger()), testLogger())

		err := h.ProcessRefresh(ctx, asynq.NewTask(TypeRefreshTagCounts, []byte(`{`)))
		require.Error(t, err)
		assert.ErrorIs(t, err, asynq.SkipRetry)
		assert.Zero(t, refresher.calls)
	})

	t.Run("scheduled task without payload", func(t *testing.T) {
		refresher := &fakeRefresher{}
		h := NewHandler(refresher, NewStateStore(newFakeRedis(), testLogger()), testLogger())

		require.NoError(t, h.ProcessRefresh(ctx, asynq.NewTask(TypeRefreshTagCounts, nil)))
		assert.Equal(t, 1, refresher.calls)
	})
}
