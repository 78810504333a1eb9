package reconciler

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"accontrol/internal/db"
	"accontrol/internal/events"
	"accontrol/internal/notify"
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

// recordingNotifier 记录发出的通知,供断言使用
type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *recordingNotifier) Send(roomNumber, recipient string, kind notify.NotificationKind) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, fmt.Sprintf("%s|%s|%s", roomNumber, recipient, kind))
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func newTestReconciler(t *testing.T) (*Reconciler, *gorm.DB, *fakeClock, *recordingNotifier) {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&db.RoomStatus{}, &db.RoomSettings{}, &db.GlobalPolicy{}, &db.PendingAction{}, &db.WindowEvent{},
	))

	clock := &fakeClock{now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	r := NewReconciler(gdb, db.NewRoomLocks(), events.NewEventBus(), notifier, clock, DefaultConfig)
	return r, gdb, clock, notifier
}

func seedRoom(t *testing.T, gdb *gorm.DB, roomNumber string, ac types.ACState, temperature float64) {
	t.Helper()
	require.NoError(t, gdb.Create(&db.RoomStatus{
		RoomNumber:         roomNumber,
		CurrentTemperature: temperature,
		WindowState:        types.WindowClosed,
		ACState:            ac,
	}).Error)
	_, err := db.NewSettingsRepository(gdb).CreateDefault(roomNumber)
	require.NoError(t, err)
}

func seedAction(t *testing.T, gdb *gorm.DB, roomNumber string, dueAt time.Time) db.PendingAction {
	t.Helper()
	action := db.PendingAction{
		ActionID:      uuid.NewString(),
		RoomNumber:    roomNumber,
		TargetACState: types.ACOff,
		ScheduledAt:   dueAt,
		Kind:          types.ActionWindowOpenShutoff,
	}
	require.NoError(t, gdb.Create(&action).Error)
	require.NoError(t, gdb.Model(&db.RoomStatus{}).
		Where("room_number = ?", roomNumber).
		Updates(map[string]interface{}{
			"has_pending_action":    true,
			"pending_action_due_at": dueAt,
		}).Error)
	return action
}

func TestExecuteDueActions(t *testing.T) {
	r, gdb, clock, _ := newTestReconciler(t)
	seedRoom(t, gdb, "401", types.ACOn, 22.0)
	seedAction(t, gdb, "401", clock.Now().Add(-time.Second))

	require.NoError(t, r.ExecuteDueActions())

	status, err := db.NewRoomStatusRepository(gdb).GetByNumber("401")
	require.NoError(t, err)
	assert.Equal(t, types.ACOff, status.ACState)
	assert.False(t, status.HasPendingAction)
	assert.Nil(t, status.PendingActionDueAt)

	count, err := db.NewPendingActionRepository(gdb).CountUnexecuted("401")
	require.NoError(t, err)
	assert.Zero(t, count)

	// 执行结果写入事件日志
	logs, err := db.NewEventRepository(gdb).GetRecentByRoom("401", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, types.ACOff, logs[0].ACState)
}

func TestExecuteLeavesFutureActions(t *testing.T) {
	r, gdb, clock, _ := newTestReconciler(t)
	seedRoom(t, gdb, "402", types.ACOn, 22.0)
	seedAction(t, gdb, "402", clock.Now().Add(time.Minute))

	require.NoError(t, r.ExecuteDueActions())

	status, err := db.NewRoomStatusRepository(gdb).GetByNumber("402")
	require.NoError(t, err)
	assert.Equal(t, types.ACOn, status.ACState)
	assert.True(t, status.HasPendingAction)
}

func TestExecuteSendsNotification(t *testing.T) {
	r, gdb, clock, notifier := newTestReconciler(t)
	seedRoom(t, gdb, "403", types.ACOn, 22.0)
	require.NoError(t, db.NewSettingsRepository(gdb).Update("403", map[string]interface{}{
		"notify_email": "guest@example.com",
	}))
	seedAction(t, gdb, "403", clock.Now().Add(-time.Second))

	require.NoError(t, r.ExecuteDueActions())

	// 通知在提交后异步派发
	require.Eventually(t, func() bool {
		return notifier.count() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestEscalateViolations(t *testing.T) {
	r, gdb, clock, _ := newTestReconciler(t)
	seedRoom(t, gdb, "404", types.ACOn, 30.0) // 默认策略允许18-26

	t.Run("First Detection Records Since", func(t *testing.T) {
		require.NoError(t, r.EscalateViolations())

		status, err := db.NewRoomStatusRepository(gdb).GetByNumber("404")
		require.NoError(t, err)
		require.NotNil(t, status.NonCompliantSince)
		assert.Equal(t, clock.Now(), *status.NonCompliantSince)
		assert.False(t, status.HasPendingAction)
	})

	t.Run("Below Threshold Does Nothing", func(t *testing.T) {
		clock.Advance(5 * time.Second)
		require.NoError(t, r.EscalateViolations())

		status, err := db.NewRoomStatusRepository(gdb).GetByNumber("404")
		require.NoError(t, err)
		assert.False(t, status.HasPendingAction)
	})

	t.Run("Past Threshold Forces Shutoff", func(t *testing.T) {
		clock.Advance(6 * time.Second)
		require.NoError(t, r.EscalateViolations())

		status, err := db.NewRoomStatusRepository(gdb).GetByNumber("404")
		require.NoError(t, err)
		assert.True(t, status.HasPendingAction)

		actions, err := db.NewPendingActionRepository(gdb).GetUnexecutedByRoom("404")
		require.NoError(t, err)
		require.Len(t, actions, 1)
		assert.Equal(t, types.ActionTempViolationShutoff, actions[0].Kind)

		// 立即到期,下个执行周期生效
		require.NoError(t, r.ExecuteDueActions())
		status, err = db.NewRoomStatusRepository(gdb).GetByNumber("404")
		require.NoError(t, err)
		assert.Equal(t, types.ACOff, status.ACState)
	})
}

func TestEscalateClearsRecoveredRoom(t *testing.T) {
	r, gdb, clock, _ := newTestReconciler(t)
	seedRoom(t, gdb, "405", types.ACOn, 22.0)
	since := clock.Now().Add(-time.Minute)
	require.NoError(t, gdb.Model(&db.RoomStatus{}).
		Where("room_number = ?", "405").
		Updates(map[string]interface{}{
			"non_compliant_since": since,
			"violation_kind":      "above-maximum",
		}).Error)

	require.NoError(t, r.EscalateViolations())

	status, err := db.NewRoomStatusRepository(gdb).GetByNumber("405")
	require.NoError(t, err)
	assert.Nil(t, status.NonCompliantSince)
	assert.Empty(t, status.ViolationKind)
	assert.False(t, status.HasPendingAction)
}

func TestApplyScheduledShutoff(t *testing.T) {
	r, gdb, clock, _ := newTestReconciler(t)
	require.NoError(t, gdb.Create(&db.GlobalPolicy{
		PolicyActive:           true,
		MinAllowedTemp:         18.0,
		MaxAllowedTemp:         26.0,
		ScheduledShutoffActive: true,
		ShutoffTime:            "22:00",
		StartupTime:            "07:00",
	}).Error)

	seedRoom(t, gdb, "406", types.ACOn, 22.0)
	seedRoom(t, gdb, "407", types.ACOn, 22.0)
	require.NoError(t, db.NewSettingsRepository(gdb).Update("407", map[string]interface{}{
		"schedule_override": true,
	}))
	seedRoom(t, gdb, "408", types.ACOff, 22.0)

	t.Run("Outside Window Does Nothing", func(t *testing.T) {
		// 周一中午
		require.NoError(t, r.ApplyScheduledShutoff())
		count, err := db.NewPendingActionRepository(gdb).CountUnexecuted("406")
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("Inside Window Schedules With Grace", func(t *testing.T) {
		clock.now = time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC) // 周一23:00
		require.NoError(t, r.ApplyScheduledShutoff())

		actions, err := db.NewPendingActionRepository(gdb).GetUnexecutedByRoom("406")
		require.NoError(t, err)
		require.Len(t, actions, 1)
		assert.Equal(t, types.ActionScheduledShutoff, actions[0].Kind)
		assert.Equal(t, clock.Now().Add(r.config.ShutoffGrace), actions[0].ScheduledAt)

		// 豁免房间和已关机房间不受影响
		count, err := db.NewPendingActionRepository(gdb).CountUnexecuted("407")
		require.NoError(t, err)
		assert.Zero(t, count)
		count, err = db.NewPendingActionRepository(gdb).CountUnexecuted("408")
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("Rerun Does Not Duplicate", func(t *testing.T) {
		require.NoError(t, r.ApplyScheduledShutoff())
		count, err := db.NewPendingActionRepository(gdb).CountUnexecuted("406")
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Weekend Skipped By Default", func(t *testing.T) {
		seedRoom(t, gdb, "409", types.ACOn, 22.0)
		clock.now = time.Date(2026, 3, 7, 23, 0, 0, 0, time.UTC) // 周六23:00
		require.NoError(t, r.ApplyScheduledShutoff())

		count, err := db.NewPendingActionRepository(gdb).CountUnexecuted("409")
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestRefreshMetrics(t *testing.T) {
	r, gdb, clock, _ := newTestReconciler(t)
	seedRoom(t, gdb, "410", types.ACOn, 22.0)

	eventRepo := db.NewEventRepository(gdb)
	base := clock.Now().Add(-time.Hour)
	for i := 0; i < 40; i++ {
		require.NoError(t, eventRepo.Append(&db.WindowEvent{
			RoomNumber:  "410",
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			WindowState: types.WindowOpen,
			ACState:     types.ACOn,
			Temperature: 22.0,
			Compliant:   true,
		}))
	}

	require.NoError(t, r.RefreshMetrics())

	settings, err := db.NewSettingsRepository(gdb).GetByNumber("410")
	require.NoError(t, err)
	assert.Equal(t, 40.0, settings.WindowOpenMinutes24h)
	assert.Equal(t, 0.0, settings.AvgTemperatureDeviation)
	assert.Equal(t, 80.0, settings.ComplianceScore)
}
