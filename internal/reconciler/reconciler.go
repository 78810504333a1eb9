// internal/reconciler/reconciler.go
// Package reconciler 实现四个独立定时的后台对账任务:
// 到期动作执行、计划关停、持续违规升级、合规指标刷新
// 每个房间的更新在房间锁加事务内完成,单个房间失败不影响其余房间
package reconciler

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"accontrol/internal/db"
	"accontrol/internal/events"
	"accontrol/internal/logger"
	"accontrol/internal/notify"
	"accontrol/internal/policy"
	"accontrol/internal/types"
)

// Config 对账任务配置
type Config struct {
	PendingInterval    time.Duration // 到期动作扫描周期
	ScheduleInterval   time.Duration // 计划关停扫描周期
	ViolationInterval  time.Duration // 违规升级扫描周期
	MetricsInterval    time.Duration // 指标刷新周期
	ShutoffGrace       time.Duration // 计划关停的宽限时间
	ViolationThreshold time.Duration // 持续违规多久后强制关停
}

// DefaultConfig 默认配置
var DefaultConfig = Config{
	PendingInterval:    3 * time.Second,
	ScheduleInterval:   time.Minute,
	ViolationInterval:  5 * time.Second,
	MetricsInterval:    time.Hour,
	ShutoffGrace:       30 * time.Second,
	ViolationThreshold: 10 * time.Second,
}

// Reconciler 后台对账器
type Reconciler struct {
	db           *gorm.DB
	locks        *db.RoomLocks
	statusRepo   db.IRoomStatusRepository
	settingsRepo db.ISettingsRepository
	policyRepo   db.IPolicyRepository
	actionRepo   db.IPendingActionRepository
	eventRepo    db.IEventRepository
	bus          *events.EventBus
	notifier     notify.Notifier
	clock        types.Clock
	config       Config
	stopChan     chan struct{}
	wg           sync.WaitGroup
}

func NewReconciler(gdb *gorm.DB, locks *db.RoomLocks, bus *events.EventBus, notifier notify.Notifier, clock types.Clock, config Config) *Reconciler {
	return &Reconciler{
		db:           gdb,
		locks:        locks,
		statusRepo:   db.NewRoomStatusRepository(gdb),
		settingsRepo: db.NewSettingsRepository(gdb),
		policyRepo:   db.NewPolicyRepository(gdb),
		actionRepo:   db.NewPendingActionRepository(gdb),
		eventRepo:    db.NewEventRepository(gdb),
		bus:          bus,
		notifier:     notifier,
		clock:        clock,
		config:       config,
		stopChan:     make(chan struct{}),
	}
}

// Start 启动全部后台任务
func (r *Reconciler) Start() {
	r.runLoop(r.config.PendingInterval, "pending-actions", r.ExecuteDueActions)
	r.runLoop(r.config.ScheduleInterval, "scheduled-shutoff", r.ApplyScheduledShutoff)
	r.runLoop(r.config.ViolationInterval, "violation-escalation", r.EscalateViolations)
	r.runLoop(r.config.MetricsInterval, "metrics-refresh", r.RefreshMetrics)
	logger.Info("Reconciler started")
}

// Stop 停止全部后台任务
func (r *Reconciler) Stop() {
	close(r.stopChan)
	r.wg.Wait()
	logger.Info("Reconciler stopped")
}

func (r *Reconciler) runLoop(interval time.Duration, name string, task func() error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := task(); err != nil {
					logger.Error("task %s failed: %v", name, err)
				}
			case <-r.stopChan:
				return
			}
		}
	}()
}

// ExecuteDueActions 执行所有到期未执行的延迟动作,按到期时间先后
func (r *Reconciler) ExecuteDueActions() error {
	now := r.clock.Now()
	due, err := r.actionRepo.GetDue(now)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	globalPolicy, err := r.policyRepo.Get()
	if err != nil {
		return err
	}

	for _, action := range due {
		if err := r.executeAction(action, globalPolicy, now); err != nil {
			logger.Error("failed to execute action %s for room %s: %v", action.ActionID, action.RoomNumber, err)
		}
	}
	return nil
}

// executeAction 原子地执行单个动作:应用目标状态、记日志、标记已执行、维护房间标志
func (r *Reconciler) executeAction(action db.PendingAction, globalPolicy *db.GlobalPolicy, now time.Time) error {
	var notifyEmail string
	executed := false

	err := r.locks.WithLock(action.RoomNumber, func() error {
		return r.db.Transaction(func(tx *gorm.DB) error {
			// 事务内重读,动作可能已被撤销
			var current db.PendingAction
			if err := tx.Where("action_id = ?", action.ActionID).First(&current).Error; err != nil {
				return err
			}
			if current.Executed {
				return nil
			}

			var status db.RoomStatus
			if err := tx.Where("room_number = ?", action.RoomNumber).First(&status).Error; err != nil {
				return err
			}

			status.ACState = action.TargetACState
			if err := tx.Model(&db.PendingAction{}).
				Where("action_id = ?", action.ActionID).
				Update("executed", true).Error; err != nil {
				return err
			}

			// 维护标志与行的双重表示: 无剩余未执行动作时清除标志
			var remaining []db.PendingAction
			if err := tx.Where("room_number = ? AND executed = ?", action.RoomNumber, false).
				Order("scheduled_at ASC").
				Find(&remaining).Error; err != nil {
				return err
			}
			if len(remaining) == 0 {
				status.HasPendingAction = false
				status.PendingActionDueAt = nil
			} else {
				status.HasPendingAction = true
				status.PendingActionDueAt = &remaining[0].ScheduledAt
			}

			status.LastUpdated = now
			if err := tx.Save(&status).Error; err != nil {
				return err
			}

			compliance, evalErr := policy.Evaluate(status.CurrentTemperature, globalPolicy)
			if evalErr != nil {
				compliance = policy.ComplianceResult{Compliant: true}
			}
			logEntry := db.WindowEvent{
				RoomNumber:  action.RoomNumber,
				Timestamp:   now,
				WindowState: status.WindowState,
				ACState:     status.ACState,
				Temperature: status.CurrentTemperature,
				Compliant:   compliance.Compliant,
				Issue:       compliance.Issue,
			}
			if err := tx.Create(&logEntry).Error; err != nil {
				return err
			}

			var settings db.RoomSettings
			if err := tx.Where("room_number = ?", action.RoomNumber).First(&settings).Error; err == nil {
				if settings.EmailNotifications {
					notifyEmail = settings.NotifyEmail
				}
			}

			executed = true
			return nil
		})
	})
	if err != nil || !executed {
		return err
	}

	logger.Info("executed %s for room %s: AC -> %s", action.Kind, action.RoomNumber, action.TargetACState)
	r.bus.Publish(events.Event{
		Type:       events.EventActionExecuted,
		RoomNumber: action.RoomNumber,
		Timestamp:  now,
		Data: events.ActionEventData{
			ActionID:      action.ActionID,
			RoomNumber:    action.RoomNumber,
			Kind:          action.Kind,
			TargetACState: action.TargetACState,
			ScheduledAt:   action.ScheduledAt,
		},
	})

	// 通知在状态提交后派发,失败只记日志
	if notifyEmail != "" {
		kind := notificationKind(action.Kind)
		go func() {
			if err := r.notifier.Send(action.RoomNumber, notifyEmail, kind); err != nil {
				logger.Warn("notification for room %s failed: %v", action.RoomNumber, err)
			}
		}()
	}
	return nil
}

// ApplyScheduledShutoff 在计划关停时段内为仍在运行的房间安排关停
func (r *Reconciler) ApplyScheduledShutoff() error {
	globalPolicy, err := r.policyRepo.Get()
	if err != nil {
		return err
	}
	if !globalPolicy.ScheduledShutoffActive {
		return nil
	}

	now := r.clock.Now()
	if policy.IsWeekend(now) && !globalPolicy.ApplyOnWeekends {
		return nil
	}

	inWindow, err := policy.InShutoffWindow(globalPolicy.ShutoffTime, globalPolicy.StartupTime, now)
	if err != nil {
		return err
	}
	if !inWindow {
		return nil
	}

	rooms, err := r.statusRepo.GetACOnRooms()
	if err != nil {
		return err
	}

	for _, room := range rooms {
		if room.HasPendingAction {
			continue
		}
		settings, err := r.settingsRepo.GetByNumber(room.RoomNumber)
		if err != nil {
			logger.Error("scheduled shutoff: settings for room %s: %v", room.RoomNumber, err)
			continue
		}
		if settings.ScheduleOverride {
			continue
		}
		if err := r.scheduleShutoff(room.RoomNumber, types.ActionScheduledShutoff, now.Add(r.config.ShutoffGrace), now); err != nil {
			logger.Error("scheduled shutoff for room %s: %v", room.RoomNumber, err)
		}
	}
	return nil
}

// EscalateViolations 跟踪持续温度违规,超过阈值后强制关停
func (r *Reconciler) EscalateViolations() error {
	globalPolicy, err := r.policyRepo.Get()
	if err != nil {
		return err
	}

	rooms, err := r.statusRepo.GetACOnRooms()
	if err != nil {
		return err
	}

	now := r.clock.Now()
	for _, room := range rooms {
		if err := r.escalateRoom(room.RoomNumber, globalPolicy, now); err != nil {
			logger.Error("violation escalation for room %s: %v", room.RoomNumber, err)
		}
	}
	return nil
}

func (r *Reconciler) escalateRoom(roomNumber string, globalPolicy *db.GlobalPolicy, now time.Time) error {
	var violated *events.ViolationEventData
	var cleared bool

	err := r.locks.WithLock(roomNumber, func() error {
		return r.db.Transaction(func(tx *gorm.DB) error {
			var status db.RoomStatus
			if err := tx.Where("room_number = ?", roomNumber).First(&status).Error; err != nil {
				return err
			}
			if status.ACState != types.ACOn || status.HasPendingAction {
				return nil
			}

			compliance, err := policy.Evaluate(status.CurrentTemperature, globalPolicy)
			if err != nil {
				return err
			}

			if compliance.Compliant {
				if status.NonCompliantSince != nil {
					status.NonCompliantSince = nil
					status.ViolationKind = ""
					cleared = true
					return tx.Save(&status).Error
				}
				return nil
			}

			if status.NonCompliantSince == nil {
				since := now
				status.NonCompliantSince = &since
				status.ViolationKind = compliance.Kind
				return tx.Save(&status).Error
			}

			if now.Sub(*status.NonCompliantSince) < r.config.ViolationThreshold {
				return nil
			}

			// 违规持续超过阈值,创建立即执行的强制关停
			dueAt := now
			action := db.PendingAction{
				ActionID:      uuid.NewString(),
				RoomNumber:    roomNumber,
				TargetACState: types.ACOff,
				ScheduledAt:   dueAt,
				Kind:          types.ActionTempViolationShutoff,
			}
			if err := tx.Create(&action).Error; err != nil {
				return err
			}
			status.HasPendingAction = true
			status.PendingActionDueAt = &dueAt
			if err := tx.Save(&status).Error; err != nil {
				return err
			}

			violated = &events.ViolationEventData{
				RoomNumber:  roomNumber,
				Issue:       compliance.Issue,
				Since:       *status.NonCompliantSince,
				Temperature: status.CurrentTemperature,
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	if violated != nil {
		logger.Warn("room %s non-compliant since %v, forcing shutoff", roomNumber, violated.Since)
		r.bus.Publish(events.Event{
			Type:       events.EventPolicyViolation,
			RoomNumber: roomNumber,
			Timestamp:  now,
			Data:       *violated,
		})
	}
	if cleared {
		r.bus.Publish(events.Event{
			Type:       events.EventViolationCleared,
			RoomNumber: roomNumber,
			Timestamp:  now,
		})
	}
	return nil
}

// RefreshMetrics 重算所有房间过去24小时的合规指标
func (r *Reconciler) RefreshMetrics() error {
	globalPolicy, err := r.policyRepo.Get()
	if err != nil {
		return err
	}

	rooms, err := r.statusRepo.GetAll()
	if err != nil {
		return err
	}

	now := r.clock.Now()
	since := now.Add(-24 * time.Hour)
	for _, room := range rooms {
		entries, err := r.eventRepo.GetSince(room.RoomNumber, since)
		if err != nil {
			logger.Error("metrics refresh: events for room %s: %v", room.RoomNumber, err)
			continue
		}

		openMinutes := windowOpenMinutes(entries)
		deviation := avgTemperatureDeviation(entries, globalPolicy)
		score := complianceScore(openMinutes, deviation)

		if err := r.settingsRepo.UpdateMetrics(room.RoomNumber, openMinutes, deviation, score); err != nil {
			if errors.Is(err, db.ErrRoomNotFound) {
				continue // 房间尚无设置行
			}
			logger.Error("metrics refresh: update for room %s: %v", room.RoomNumber, err)
			continue
		}

		r.bus.Publish(events.Event{
			Type:       events.EventMetricsUpdate,
			RoomNumber: room.RoomNumber,
			Timestamp:  now,
			Data: events.MetricsEventData{
				RoomNumber:              room.RoomNumber,
				WindowOpenMinutes24h:    openMinutes,
				AvgTemperatureDeviation: deviation,
				ComplianceScore:         score,
			},
		})
	}
	return nil
}

// scheduleShutoff 为房间创建延迟关停动作并维护状态标志
func (r *Reconciler) scheduleShutoff(roomNumber string, kind types.ActionKind, dueAt, now time.Time) error {
	var scheduled *events.ActionEventData

	err := r.locks.WithLock(roomNumber, func() error {
		return r.db.Transaction(func(tx *gorm.DB) error {
			var status db.RoomStatus
			if err := tx.Where("room_number = ?", roomNumber).First(&status).Error; err != nil {
				return err
			}
			// 持锁后复查,入库路径可能已抢先创建
			if status.HasPendingAction || status.ACState != types.ACOn {
				return nil
			}

			action := db.PendingAction{
				ActionID:      uuid.NewString(),
				RoomNumber:    roomNumber,
				TargetACState: types.ACOff,
				ScheduledAt:   dueAt,
				Kind:          kind,
			}
			if err := tx.Create(&action).Error; err != nil {
				return err
			}

			status.HasPendingAction = true
			status.PendingActionDueAt = &dueAt
			if err := tx.Save(&status).Error; err != nil {
				return err
			}

			scheduled = &events.ActionEventData{
				ActionID:      action.ActionID,
				RoomNumber:    roomNumber,
				Kind:          kind,
				TargetACState: types.ACOff,
				ScheduledAt:   dueAt,
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	if scheduled != nil {
		logger.Info("scheduled %s for room %s at %v", kind, roomNumber, dueAt.Format(time.TimeOnly))
		r.bus.Publish(events.Event{
			Type:       events.EventActionScheduled,
			RoomNumber: roomNumber,
			Timestamp:  now,
			Data:       *scheduled,
		})
	}
	return nil
}

func notificationKind(kind types.ActionKind) notify.NotificationKind {
	switch kind {
	case types.ActionScheduledShutoff:
		return notify.KindScheduledShutoff
	case types.ActionTempViolationShutoff:
		return notify.KindTempViolation
	default:
		return notify.KindWindowOpenShutoff
	}
}
