package audit

import (
	"context"
	"testing"
	"time"

	"github.com/kasuganosora/questengine/model"
	"github.com/kasuganosora/questengine/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func TestNew_StartsWorker(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())
	require.NotNil(t, svc)
	svc.Stop(context.Background())
}

func TestLog_EnqueuedAndFlushed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())

	svc.Log(AuditEntry{
		TraceID:     "trace-123",
		CharacterID: "char-1",
		InstanceID:  "inst-1",
		Action:      "quest.start",
		Request:     map[string]string{"template_id": "q1"},
		Response:    map[string]bool{"ok": true},
		DurationMs:  42,
	})

	// Stop flushes remaining entries
	svc.Stop(context.Background())

	var logs []model.AuditLog
	db.Find(&logs)
	require.Len(t, logs, 1)
	assert.Equal(t, "trace-123", logs[0].TraceID)
	assert.Equal(t, "char-1", logs[0].CharacterID)
	assert.Equal(t, "inst-1", logs[0].InstanceID)
	assert.Equal(t, "quest.start", logs[0].Action)
	assert.Equal(t, 42, logs[0].DurationMs)
	assert.JSONEq(t, `{"template_id":"q1"}`, string(logs[0].Request))
}

func TestLog_MultipleLogs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())

	for i := 0; i < 10; i++ {
		svc.Log(AuditEntry{Action: "action", InstanceID: "inst-2"})
	}

	svc.Stop(context.Background())

	var count int64
	db.Model(&model.AuditLog{}).Count(&count)
	assert.Equal(t, int64(10), count)
}

func TestLog_BatchFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop(), WithBatchSize(5))

	for i := 0; i < 12; i++ {
		svc.Log(AuditEntry{Action: "batch"})
	}
	svc.Stop(context.Background())

	var count int64
	db.Model(&model.AuditLog{}).Count(&count)
	assert.Equal(t, int64(12), count)
}

func TestLog_TimerFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop(), WithFlushInterval(20*time.Millisecond))
	defer svc.Stop(context.Background())

	svc.Log(AuditEntry{Action: "timer_test"})

	require.Eventually(t, func() bool {
		var count int64
		db.Model(&model.AuditLog{}).Where("action = ?", "timer_test").Count(&count)
		return count == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStop_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())
	svc.Stop(context.Background())
	svc.Stop(context.Background()) // must not panic
}

func TestLog_NilPayloads(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())

	svc.Log(AuditEntry{Action: "no_payload"})
	svc.Stop(context.Background())

	var logs []model.AuditLog
	db.Find(&logs)
	require.Len(t, logs, 1)
	assert.Empty(t, logs[0].Request)
	assert.Empty(t, logs[0].CharacterID)
}

func TestLog_DropsWhenFull(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())

	// The queue holds 1024 entries; flooding must drop rather than block.
	for i := 0; i < 1030; i++ {
		svc.Log(AuditEntry{Action: "flood"})
	}
	svc.Stop(context.Background())
}

func TestByInstance(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())

	svc.Log(AuditEntry{Action: "quest.start", InstanceID: "a"})
	svc.Log(AuditEntry{Action: "quest.choose", InstanceID: "a"})
	svc.Log(AuditEntry{Action: "quest.start", InstanceID: "b"})
	svc.Stop(context.Background())

	logs, err := svc.ByInstance(context.Background(), "a", 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "quest.start", logs[0].Action)
	assert.Equal(t, "quest.choose", logs[1].Action)
}

func TestTraceIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", TraceID(ctx))
	assert.Equal(t, "abc", TraceID(WithTraceID(ctx, "abc")))
}
