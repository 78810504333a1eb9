package ingest

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"accontrol/internal/db"
	"accontrol/internal/events"
	"accontrol/internal/types"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *fakeClock) {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&db.RoomStatus{}, &db.RoomSettings{}, &db.GlobalPolicy{}, &db.PendingAction{}, &db.WindowEvent{},
	))

	clock := &fakeClock{now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	svc := NewService(gdb, db.NewRoomLocks(), events.NewEventBus(), clock)
	return svc, gdb, clock
}

func unexecutedActions(t *testing.T, gdb *gorm.DB, roomNumber string) []db.PendingAction {
	t.Helper()
	actions, err := db.NewPendingActionRepository(gdb).GetUnexecutedByRoom(roomNumber)
	require.NoError(t, err)
	return actions
}

func roomStatus(t *testing.T, gdb *gorm.DB, roomNumber string) *db.RoomStatus {
	t.Helper()
	status, err := db.NewRoomStatusRepository(gdb).GetByNumber(roomNumber)
	require.NoError(t, err)
	return status
}

func TestIngestFirstContact(t *testing.T) {
	svc, gdb, _ := newTestService(t)

	result, err := svc.Ingest("301", types.WindowClosed, types.ACOn, 22.0)
	require.NoError(t, err)

	assert.Equal(t, types.ACOn, result.ResultingACState)
	assert.True(t, result.Compliant)
	assert.False(t, result.HasPendingAction)

	// 首次上报同时建立状态和默认设置
	status := roomStatus(t, gdb, "301")
	assert.Equal(t, 22.0, status.CurrentTemperature)

	settings, err := db.NewSettingsRepository(gdb).GetByNumber("301")
	require.NoError(t, err)
	assert.True(t, settings.AutoShutoffEnabled)
	assert.Equal(t, 30, settings.ShutoffDelaySeconds)
}

func TestIngestWindowOpenSchedulesShutoff(t *testing.T) {
	svc, gdb, clock := newTestService(t)

	_, err := svc.Ingest("301", types.WindowClosed, types.ACOn, 22.0)
	require.NoError(t, err)

	t.Run("Schedules Delayed Shutoff", func(t *testing.T) {
		result, err := svc.Ingest("301", types.WindowOpen, types.ACOn, 22.0)
		require.NoError(t, err)

		// 延迟触发前空调保持开启
		assert.Equal(t, types.ACOn, result.ResultingACState)
		assert.True(t, result.HasPendingAction)
		require.NotNil(t, result.PendingDueAt)
		assert.Equal(t, clock.Now().Add(30*time.Second), *result.PendingDueAt)

		actions := unexecutedActions(t, gdb, "301")
		require.Len(t, actions, 1)
		assert.Equal(t, types.ActionWindowOpenShutoff, actions[0].Kind)
		assert.Equal(t, types.ACOff, actions[0].TargetACState)
	})

	t.Run("Repeated Report Does Not Duplicate", func(t *testing.T) {
		// 设备每分钟重发,同一开窗只产生一个动作
		result, err := svc.Ingest("301", types.WindowOpen, types.ACOn, 22.0)
		require.NoError(t, err)

		assert.Equal(t, "shutoff already scheduled", result.Message)
		assert.Len(t, unexecutedActions(t, gdb, "301"), 1)
	})

	t.Run("Window Close Cancels And Resumes", func(t *testing.T) {
		clock.Advance(10 * time.Second)
		result, err := svc.Ingest("301", types.WindowClosed, types.ACOff, 22.0)
		require.NoError(t, err)

		// 触发条件消失: 撤销动作并恢复制冷
		assert.Equal(t, types.ACOn, result.ResultingACState)
		assert.False(t, result.HasPendingAction)
		assert.Empty(t, unexecutedActions(t, gdb, "301"))

		status := roomStatus(t, gdb, "301")
		assert.False(t, status.HasPendingAction)
		assert.Nil(t, status.PendingActionDueAt)
	})
}

func TestIngestImmediateShutoff(t *testing.T) {
	svc, gdb, _ := newTestService(t)

	_, err := svc.Ingest("302", types.WindowClosed, types.ACOn, 22.0)
	require.NoError(t, err)
	// 延迟为0表示立即关停
	require.NoError(t, db.NewSettingsRepository(gdb).Update("302", map[string]interface{}{
		"shutoff_delay_seconds": 0,
	}))

	result, err := svc.Ingest("302", types.WindowOpen, types.ACOn, 22.0)
	require.NoError(t, err)

	assert.Equal(t, types.ACOff, result.ResultingACState)
	assert.False(t, result.HasPendingAction)
	assert.Empty(t, unexecutedActions(t, gdb, "302"))
	assert.Equal(t, types.ACOff, roomStatus(t, gdb, "302").ACState)
}

func TestIngestAutoShutoffDisabled(t *testing.T) {
	svc, gdb, _ := newTestService(t)

	_, err := svc.Ingest("303", types.WindowClosed, types.ACOn, 22.0)
	require.NoError(t, err)
	require.NoError(t, db.NewSettingsRepository(gdb).Update("303", map[string]interface{}{
		"auto_shutoff_enabled": false,
	}))

	result, err := svc.Ingest("303", types.WindowOpen, types.ACOn, 22.0)
	require.NoError(t, err)

	// 关停规则停用时只记录,不干预
	assert.Equal(t, types.ACOn, result.ResultingACState)
	assert.False(t, result.HasPendingAction)
}

func TestIngestWindowClosedResumesAC(t *testing.T) {
	svc, gdb, _ := newTestService(t)

	_, err := svc.Ingest("304", types.WindowClosed, types.ACOn, 22.0)
	require.NoError(t, err)

	t.Run("Resume Enabled", func(t *testing.T) {
		result, err := svc.Ingest("304", types.WindowClosed, types.ACOff, 22.0)
		require.NoError(t, err)
		assert.Equal(t, types.ACOn, result.ResultingACState)
	})

	t.Run("Resume Disabled", func(t *testing.T) {
		require.NoError(t, db.NewSettingsRepository(gdb).Update("304", map[string]interface{}{
			"auto_resume_on_window_close": false,
		}))
		result, err := svc.Ingest("304", types.WindowClosed, types.ACOff, 22.0)
		require.NoError(t, err)
		assert.Equal(t, types.ACOff, result.ResultingACState)
	})
}

func TestIngestComplianceTracking(t *testing.T) {
	svc, gdb, clock := newTestService(t)

	result, err := svc.Ingest("305", types.WindowClosed, types.ACOn, 30.0)
	require.NoError(t, err)
	assert.False(t, result.Compliant)
	assert.NotEmpty(t, result.Issue)

	status := roomStatus(t, gdb, "305")
	require.NotNil(t, status.NonCompliantSince)
	firstSeen := *status.NonCompliantSince
	assert.Equal(t, clock.Now(), firstSeen)

	// 持续违规不重置起始时间
	clock.Advance(time.Minute)
	_, err = svc.Ingest("305", types.WindowClosed, types.ACOn, 31.0)
	require.NoError(t, err)
	status = roomStatus(t, gdb, "305")
	require.NotNil(t, status.NonCompliantSince)
	assert.Equal(t, firstSeen, *status.NonCompliantSince)

	// 恢复合规后清除
	_, err = svc.Ingest("305", types.WindowClosed, types.ACOn, 22.0)
	require.NoError(t, err)
	status = roomStatus(t, gdb, "305")
	assert.Nil(t, status.NonCompliantSince)
	assert.Empty(t, status.ViolationKind)
}

func TestIngestAppendsEventLog(t *testing.T) {
	svc, gdb, clock := newTestService(t)

	_, err := svc.Ingest("306", types.WindowClosed, types.ACOn, 22.0)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = svc.Ingest("306", types.WindowOpen, types.ACOn, 22.0)
	require.NoError(t, err)

	logs, err := db.NewEventRepository(gdb).GetRecentByRoom("306", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	// 日志记录的是折算后的最终状态
	assert.Equal(t, types.WindowOpen, logs[0].WindowState)
}

func TestIngestInvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t)

	cases := []struct {
		name        string
		room        string
		window      types.WindowState
		ac          types.ACState
		temperature float64
	}{
		{"Missing Room", "", types.WindowClosed, types.ACOn, 22.0},
		{"Bad Window State", "301", "ajar", types.ACOn, 22.0},
		{"Bad AC State", "301", types.WindowClosed, "standby", 22.0},
		{"NaN Temperature", "301", types.WindowClosed, types.ACOn, math.NaN()},
		{"Inf Temperature", "301", types.WindowClosed, types.ACOn, math.Inf(1)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Ingest(tc.room, tc.window, tc.ac, tc.temperature)
			assert.True(t, errors.Is(err, ErrInvalidInput), "expected ErrInvalidInput, got %v", err)
		})
	}
}
