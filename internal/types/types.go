// internal/types/types.go

package types

import "time"

// WindowState 窗户状态
type WindowState string

const (
	WindowOpen   WindowState = "open"
	WindowClosed WindowState = "closed"
)

// ACState 空调电源状态
type ACState string

const (
	ACOn  ACState = "on"
	ACOff ACState = "off"
)

// Command 设备执行前上报的控制命令
type Command string

const (
	CommandPower    Command = "POWER"
	CommandTempUp   Command = "TEMP_UP"
	CommandTempDown Command = "TEMP_DOWN"
	CommandReport   Command = "REPORT"
)

// ActionKind 延迟动作类型
type ActionKind string

const (
	ActionWindowOpenShutoff    ActionKind = "window-open-shutoff"
	ActionScheduledShutoff     ActionKind = "scheduled-shutoff"
	ActionTempViolationShutoff ActionKind = "temperature-violation-shutoff"
)

// AlternativeKind 替代动作类型
type AlternativeKind string

const (
	AlternativeReportStatus AlternativeKind = "report-status"
	AlternativeClampTo      AlternativeKind = "clamp-to"
	AlternativeForceOff     AlternativeKind = "force-off"
	AlternativeForceOn      AlternativeKind = "force-on"
)

// AlternativeAction 准入拒绝时建议设备执行的替代动作
type AlternativeAction struct {
	Kind  AlternativeKind `json:"kind"`
	Value float64         `json:"value,omitempty"` // clamp-to时的目标温度
}

// Valid 校验窗户状态取值
func (w WindowState) Valid() bool {
	return w == WindowOpen || w == WindowClosed
}

// Valid 校验空调状态取值
func (a ACState) Valid() bool {
	return a == ACOn || a == ACOff
}

// Valid 校验命令取值
func (c Command) Valid() bool {
	switch c {
	case CommandPower, CommandTempUp, CommandTempDown, CommandReport:
		return true
	}
	return false
}

// Clock 时钟源,后台任务和测试通过它获取当前时间
type Clock interface {
	Now() time.Time
}

// SystemClock 系统时钟
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
