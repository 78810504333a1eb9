package db

import (
	"time"

	"accontrol/internal/types"
)

// 房间状态表,每个房间一行,保存设备最近一次上报折算出的权威状态
type RoomStatus struct {
	ID                 int               `gorm:"primaryKey"`
	RoomNumber         string            `gorm:"type:varchar(10);uniqueIndex"`
	CurrentTemperature float64           `gorm:"type:float"`
	WindowState        types.WindowState `gorm:"type:varchar(10);default:closed"`
	ACState            types.ACState     `gorm:"type:varchar(10);default:off"`
	HasPendingAction   bool              `gorm:"default:false"`
	PendingActionDueAt *time.Time        `gorm:"type:datetime"`
	NonCompliantSince  *time.Time        `gorm:"type:datetime"`
	ViolationKind      string            `gorm:"type:varchar(50)"`
	LastUpdated        time.Time         `gorm:"type:datetime"`
}

// 房间策略设置表
type RoomSettings struct {
	ID                      int     `gorm:"primaryKey"`
	RoomNumber              string  `gorm:"type:varchar(10);uniqueIndex"`
	MaxTemperature          float64 `gorm:"default:24"`
	AutoShutoffEnabled      bool    `gorm:"default:true"`
	ShutoffDelaySeconds     int     `gorm:"default:30"` // 取值范围[0,300]
	SettingsLocked          bool    `gorm:"default:false"`
	TempLimitLocked         bool    `gorm:"default:false"`
	ForceOnEnabled          bool    `gorm:"default:true"`
	ScheduleOverride        bool    `gorm:"default:false"`
	AutoResumeOnWindowClose bool    `gorm:"default:true"`
	EmailNotifications      bool    `gorm:"default:true"`
	NotifyEmail             string  `gorm:"type:varchar(120)"`
	WindowOpenMinutes24h    float64 `gorm:"column:window_open_minutes_24h;default:0"`
	AvgTemperatureDeviation float64 `gorm:"default:0"`
	ComplianceScore         float64 `gorm:"default:100"`
}

// 全局策略表,单例
type GlobalPolicy struct {
	ID                       int     `gorm:"primaryKey"`
	PolicyActive             bool    `gorm:"default:true"`
	MinAllowedTemp           float64 `gorm:"default:18"`
	MaxAllowedTemp           float64 `gorm:"default:26"`
	ScheduledShutoffActive   bool    `gorm:"default:false"`
	ShutoffTime              string  `gorm:"type:varchar(5);default:'22:00'"` // HH:MM,可跨午夜
	StartupTime              string  `gorm:"type:varchar(5);default:'07:00'"`
	ApplyOnWeekends          bool    `gorm:"default:false"`
	EnergyConservationActive bool    `gorm:"default:false"`
	ConservationThreshold    float64 `gorm:"default:24"`
}

// 延迟动作表,由遥测入库或后台任务创建,后台任务执行或撤销
type PendingAction struct {
	ID            int              `gorm:"primaryKey"`
	ActionID      string           `gorm:"type:varchar(36);uniqueIndex"`
	RoomNumber    string           `gorm:"type:varchar(10);index"`
	TargetACState types.ACState    `gorm:"type:varchar(10)"`
	ScheduledAt   time.Time        `gorm:"type:datetime"`
	Kind          types.ActionKind `gorm:"type:varchar(50)"`
	Executed      bool             `gorm:"default:false"`
	CreatedAt     time.Time        `gorm:"autoCreateTime"`
}

// 窗户事件日志表,只追加,用于审计与合规指标计算
type WindowEvent struct {
	ID          int               `gorm:"primaryKey"`
	RoomNumber  string            `gorm:"type:varchar(10);index"`
	Timestamp   time.Time         `gorm:"type:datetime;index"`
	WindowState types.WindowState `gorm:"type:varchar(10)"`
	ACState     types.ACState     `gorm:"type:varchar(10)"`
	Temperature float64           `gorm:"type:float"`
	Compliant   bool              `gorm:"default:true"`
	Issue       string            `gorm:"type:varchar(255)"`
}
