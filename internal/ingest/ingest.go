// internal/ingest/ingest.go
// Package ingest 实现遥测入库:把设备上报折算为权威房间状态,
// 必要时立即关停或创建延迟关停动作,并追加事件日志
package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"accontrol/internal/db"
	"accontrol/internal/events"
	"accontrol/internal/logger"
	"accontrol/internal/policy"
	"accontrol/internal/types"
)

// ErrInvalidInput 遥测输入校验失败
var ErrInvalidInput = errors.New("invalid telemetry input")

// Result 遥测入库结果,返回给设备
type Result struct {
	RoomNumber       string        `json:"room_number"`
	ResultingACState types.ACState `json:"resulting_ac_state"`
	HasPendingAction bool          `json:"has_pending_action"`
	PendingDueAt     *time.Time    `json:"pending_due_at,omitempty"`
	Compliant        bool          `json:"compliant"`
	Issue            string        `json:"issue,omitempty"`
	Message          string        `json:"message"`
}

// Service 遥测入库服务
type Service struct {
	db         *gorm.DB
	locks      *db.RoomLocks
	policyRepo db.IPolicyRepository
	bus        *events.EventBus
	clock      types.Clock
}

func NewService(gdb *gorm.DB, locks *db.RoomLocks, bus *events.EventBus, clock types.Clock) *Service {
	return &Service{
		db:         gdb,
		locks:      locks,
		policyRepo: db.NewPolicyRepository(gdb),
		bus:        bus,
		clock:      clock,
	}
}

// Ingest 处理一次设备上报
// 单个房间的状态读改写和日志追加在房间锁加事务内完成,
// 持久化失败时整体回滚,设备下个周期重发即可
func (s *Service) Ingest(roomNumber string, windowState types.WindowState, acState types.ACState, temperature float64) (*Result, error) {
	if roomNumber == "" {
		return nil, fmt.Errorf("%w: missing room number", ErrInvalidInput)
	}
	if !windowState.Valid() {
		return nil, fmt.Errorf("%w: unknown window state %q", ErrInvalidInput, windowState)
	}
	if !acState.Valid() {
		return nil, fmt.Errorf("%w: unknown ac state %q", ErrInvalidInput, acState)
	}

	// 策略读取允许滞后一个周期,放在锁外
	globalPolicy, err := s.policyRepo.Get()
	if err != nil {
		return nil, err
	}

	compliance, err := policy.Evaluate(temperature, globalPolicy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var result *Result
	var pending []events.Event

	err = s.locks.WithLock(roomNumber, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			var txErr error
			result, pending, txErr = s.apply(tx, roomNumber, windowState, acState, temperature, compliance)
			return txErr
		})
	})
	if err != nil {
		return nil, err
	}

	// 事件在事务提交后发布,通知派发不阻塞状态变更
	for _, event := range pending {
		s.bus.Publish(event)
	}

	return result, nil
}

// apply 在事务内执行状态机转移,返回结果和待发布事件
func (s *Service) apply(tx *gorm.DB, roomNumber string, windowState types.WindowState, acState types.ACState, temperature float64, compliance policy.ComplianceResult) (*Result, []events.Event, error) {
	now := s.clock.Now()

	status, err := s.loadOrCreateStatus(tx, roomNumber, now)
	if err != nil {
		return nil, nil, err
	}
	settings, err := s.loadOrCreateSettings(tx, roomNumber)
	if err != nil {
		return nil, nil, err
	}

	prevWindow := status.WindowState
	resultingAC := acState
	message := "status recorded"
	var pending []events.Event

	switch {
	// 窗户关闭且存在未执行动作: 撤销全部动作,触发条件已消失
	case windowState == types.WindowClosed && status.HasPendingAction:
		cancelled, err := s.cancelPendingActions(tx, roomNumber)
		if err != nil {
			return nil, nil, err
		}
		status.HasPendingAction = false
		status.PendingActionDueAt = nil
		message = "pending shutoff cancelled"
		if acState == types.ACOff && settings.AutoResumeOnWindowClose {
			resultingAC = types.ACOn
			message = "pending shutoff cancelled, AC resumed"
		}
		for _, action := range cancelled {
			pending = append(pending, events.Event{
				Type:       events.EventActionCancelled,
				RoomNumber: roomNumber,
				Timestamp:  now,
				Data: events.ActionEventData{
					ActionID:      action.ActionID,
					RoomNumber:    roomNumber,
					Kind:          action.Kind,
					TargetACState: action.TargetACState,
					ScheduledAt:   action.ScheduledAt,
				},
			})
		}

	// 开窗且空调运行: 按设置立即关停或延迟关停
	case windowState == types.WindowOpen && acState == types.ACOn && settings.AutoShutoffEnabled:
		if status.HasPendingAction {
			// 已有待执行关停,不重复创建
			resultingAC = types.ACOn
			message = "shutoff already scheduled"
			break
		}
		if settings.ShutoffDelaySeconds > 0 {
			dueAt := now.Add(time.Duration(settings.ShutoffDelaySeconds) * time.Second)
			action := db.PendingAction{
				ActionID:      uuid.NewString(),
				RoomNumber:    roomNumber,
				TargetACState: types.ACOff,
				ScheduledAt:   dueAt,
				Kind:          types.ActionWindowOpenShutoff,
			}
			if err := tx.Create(&action).Error; err != nil {
				return nil, nil, err
			}
			status.HasPendingAction = true
			status.PendingActionDueAt = &dueAt
			resultingAC = types.ACOn // 动作触发前保持开启
			message = fmt.Sprintf("window open, AC shutoff scheduled in %ds", settings.ShutoffDelaySeconds)
			pending = append(pending, events.Event{
				Type:       events.EventActionScheduled,
				RoomNumber: roomNumber,
				Timestamp:  now,
				Data: events.ActionEventData{
					ActionID:      action.ActionID,
					RoomNumber:    roomNumber,
					Kind:          action.Kind,
					TargetACState: action.TargetACState,
					ScheduledAt:   dueAt,
				},
			})
		} else {
			resultingAC = types.ACOff
			message = "window open, AC turned off"
			data := events.ShutoffEventData{
				RoomNumber:  roomNumber,
				Kind:        types.ActionWindowOpenShutoff,
				Temperature: temperature,
			}
			if settings.EmailNotifications {
				data.NotifyEmail = settings.NotifyEmail
			}
			pending = append(pending, events.Event{
				Type:       events.EventAutoShutoff,
				RoomNumber: roomNumber,
				Timestamp:  now,
				Data:       data,
			})
		}

	// 窗户关闭且空调关闭: 恢复制冷
	case windowState == types.WindowClosed && acState == types.ACOff && settings.AutoResumeOnWindowClose:
		resultingAC = types.ACOn
		message = "window closed, AC resumed"
		pending = append(pending, events.Event{
			Type:       events.EventAutoResume,
			RoomNumber: roomNumber,
			Timestamp:  now,
		})
	}

	// 合规跟踪: 违规即置位,恢复即清除
	if compliance.Compliant {
		status.NonCompliantSince = nil
		status.ViolationKind = ""
	} else if status.NonCompliantSince == nil {
		since := now
		status.NonCompliantSince = &since
		status.ViolationKind = compliance.Kind
	}

	status.CurrentTemperature = temperature
	status.WindowState = windowState
	status.ACState = resultingAC
	status.LastUpdated = now
	if err := tx.Save(status).Error; err != nil {
		return nil, nil, err
	}

	// 事件日志记录折算后的最终状态
	event := db.WindowEvent{
		RoomNumber:  roomNumber,
		Timestamp:   now,
		WindowState: windowState,
		ACState:     resultingAC,
		Temperature: temperature,
		Compliant:   compliance.Compliant,
		Issue:       compliance.Issue,
	}
	if err := tx.Create(&event).Error; err != nil {
		return nil, nil, err
	}

	pending = append(pending, events.Event{
		Type:       events.EventTelemetryReceived,
		RoomNumber: roomNumber,
		Timestamp:  now,
		Data: events.TelemetryEventData{
			RoomNumber:  roomNumber,
			WindowState: windowState,
			ACState:     resultingAC,
			Temperature: temperature,
			Compliant:   compliance.Compliant,
			Issue:       compliance.Issue,
		},
	})
	if prevWindow != windowState {
		eventType := events.EventWindowClosed
		if windowState == types.WindowOpen {
			eventType = events.EventWindowOpened
		}
		pending = append(pending, events.Event{
			Type:       eventType,
			RoomNumber: roomNumber,
			Timestamp:  now,
		})
	}

	logger.Debug("telemetry for room %s: window=%s ac=%s->%s temp=%.1f compliant=%v",
		roomNumber, windowState, acState, resultingAC, temperature, compliance.Compliant)

	return &Result{
		RoomNumber:       roomNumber,
		ResultingACState: resultingAC,
		HasPendingAction: status.HasPendingAction,
		PendingDueAt:     status.PendingActionDueAt,
		Compliant:        compliance.Compliant,
		Issue:            compliance.Issue,
		Message:          message,
	}, pending, nil
}

// loadOrCreateStatus 读取房间状态,未知房间首次上报时创建
func (s *Service) loadOrCreateStatus(tx *gorm.DB, roomNumber string, now time.Time) (*db.RoomStatus, error) {
	var status db.RoomStatus
	err := tx.Where("room_number = ?", roomNumber).First(&status).Error
	if err == nil {
		return &status, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	status = db.RoomStatus{
		RoomNumber:  roomNumber,
		WindowState: types.WindowClosed,
		ACState:     types.ACOff,
		LastUpdated: now,
	}
	if err := tx.Create(&status).Error; err != nil {
		return nil, err
	}
	logger.Info("room %s registered on first contact", roomNumber)
	return &status, nil
}

// loadOrCreateSettings 读取房间设置,缺失时写入默认值
func (s *Service) loadOrCreateSettings(tx *gorm.DB, roomNumber string) (*db.RoomSettings, error) {
	var settings db.RoomSettings
	err := tx.Where("room_number = ?", roomNumber).First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	settings = db.RoomSettings{
		RoomNumber:              roomNumber,
		MaxTemperature:          24.0,
		AutoShutoffEnabled:      true,
		ShutoffDelaySeconds:     30,
		ForceOnEnabled:          true,
		AutoResumeOnWindowClose: true,
		EmailNotifications:      true,
		ComplianceScore:         100.0,
	}
	if err := tx.Create(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

// cancelPendingActions 将房间所有未执行动作标记为已执行且不生效
func (s *Service) cancelPendingActions(tx *gorm.DB, roomNumber string) ([]db.PendingAction, error) {
	var actions []db.PendingAction
	if err := tx.Where("room_number = ? AND executed = ?", roomNumber, false).Find(&actions).Error; err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, nil
	}
	err := tx.Model(&db.PendingAction{}).
		Where("room_number = ? AND executed = ?", roomNumber, false).
		Update("executed", true).Error
	if err != nil {
		return nil, err
	}
	return actions, nil
}
