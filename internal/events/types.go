package events

import (
	"time"

	"accontrol/internal/types"
)

// EventType 事件类型定义
type EventType int

const (
	// 系统事件
	EventSystemStartup EventType = iota
	EventSystemShutdown
	EventPolicyChanged

	// 遥测与状态事件
	EventTelemetryReceived
	EventWindowOpened
	EventWindowClosed
	EventAutoShutoff
	EventAutoResume

	// 延迟动作事件
	EventActionScheduled
	EventActionExecuted
	EventActionCancelled

	// 合规事件
	EventPolicyViolation
	EventViolationCleared
	EventMetricsUpdate
)

// Event 事件结构
type Event struct {
	Type       EventType   `json:"type"`
	RoomNumber string      `json:"room_number"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       interface{} `json:"data"`
}

// Handler 事件处理函数类型
type Handler func(Event)

// Subscription 事件订阅信息
type Subscription struct {
	EventType EventType
	Handler   Handler
}

// TelemetryEventData 遥测入库产生的事件数据
type TelemetryEventData struct {
	RoomNumber  string            `json:"room_number"`
	WindowState types.WindowState `json:"window_state"`
	ACState     types.ACState     `json:"ac_state"`
	Temperature float64           `json:"temperature"`
	Compliant   bool              `json:"compliant"`
	Issue       string            `json:"issue,omitempty"`
}

// ActionEventData 延迟动作相关事件数据
type ActionEventData struct {
	ActionID      string           `json:"action_id"`
	RoomNumber    string           `json:"room_number"`
	Kind          types.ActionKind `json:"kind"`
	TargetACState types.ACState    `json:"target_ac_state"`
	ScheduledAt   time.Time        `json:"scheduled_at"`
}

// ShutoffEventData 立即关停事件数据,订阅方用它触发通知
type ShutoffEventData struct {
	RoomNumber  string           `json:"room_number"`
	Kind        types.ActionKind `json:"kind"`
	NotifyEmail string           `json:"notify_email,omitempty"`
	Temperature float64          `json:"temperature"`
}

// ViolationEventData 合规违规事件数据
type ViolationEventData struct {
	RoomNumber  string    `json:"room_number"`
	Issue       string    `json:"issue"`
	Since       time.Time `json:"since"`
	Temperature float64   `json:"temperature"`
}

// MetricsEventData 指标刷新事件数据
type MetricsEventData struct {
	RoomNumber              string  `json:"room_number"`
	WindowOpenMinutes24h    float64 `json:"window_open_minutes_24h"`
	AvgTemperatureDeviation float64 `json:"avg_temperature_deviation"`
	ComplianceScore         float64 `json:"compliance_score"`
}

// EventNames 提供事件类型的字符串表示
var EventNames = map[EventType]string{
	EventSystemStartup:     "SystemStartup",
	EventSystemShutdown:    "SystemShutdown",
	EventPolicyChanged:     "PolicyChanged",
	EventTelemetryReceived: "TelemetryReceived",
	EventWindowOpened:      "WindowOpened",
	EventWindowClosed:      "WindowClosed",
	EventAutoShutoff:       "AutoShutoff",
	EventAutoResume:        "AutoResume",
	EventActionScheduled:   "ActionScheduled",
	EventActionExecuted:    "ActionExecuted",
	EventActionCancelled:   "ActionCancelled",
	EventPolicyViolation:   "PolicyViolation",
	EventViolationCleared:  "ViolationCleared",
	EventMetricsUpdate:     "MetricsUpdate",
}
