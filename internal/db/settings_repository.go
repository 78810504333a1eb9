package db

import (
	"errors"

	"gorm.io/gorm"
)

// ISettingsRepository 房间设置仓库接口
type ISettingsRepository interface {
	GetByNumber(roomNumber string) (*RoomSettings, error)
	CreateDefault(roomNumber string) (*RoomSettings, error)
	Update(roomNumber string, updates map[string]interface{}) error
	UpdateMetrics(roomNumber string, windowOpenMinutes, avgDeviation, score float64) error
}

type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) ISettingsRepository {
	return &SettingsRepository{db: db}
}

// GetByNumber 获取房间设置
func (r *SettingsRepository) GetByNumber(roomNumber string) (*RoomSettings, error) {
	var settings RoomSettings
	err := r.db.Where("room_number = ?", roomNumber).First(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &settings, nil
}

// CreateDefault 为首次上报的房间创建默认设置
func (r *SettingsRepository) CreateDefault(roomNumber string) (*RoomSettings, error) {
	settings := RoomSettings{
		RoomNumber:              roomNumber,
		MaxTemperature:          24.0,
		AutoShutoffEnabled:      true,
		ShutoffDelaySeconds:     30,
		ForceOnEnabled:          true,
		AutoResumeOnWindowClose: true,
		EmailNotifications:      true,
		ComplianceScore:         100.0,
	}
	if err := r.db.Create(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

// Update 更新指定字段
func (r *SettingsRepository) Update(roomNumber string, updates map[string]interface{}) error {
	result := r.db.Model(&RoomSettings{}).
		Where("room_number = ?", roomNumber).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// UpdateMetrics 刷新滚动合规指标
func (r *SettingsRepository) UpdateMetrics(roomNumber string, windowOpenMinutes, avgDeviation, score float64) error {
	return r.db.Model(&RoomSettings{}).
		Where("room_number = ?", roomNumber).
		Updates(map[string]interface{}{
			"window_open_minutes_24h":   windowOpenMinutes,
			"avg_temperature_deviation": avgDeviation,
			"compliance_score":          score,
		}).Error
}
