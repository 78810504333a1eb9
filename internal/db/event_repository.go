package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// IEventRepository 窗户事件日志仓库接口,只追加
type IEventRepository interface {
	Append(event *WindowEvent) error
	GetRecentByRoom(roomNumber string, limit int) ([]WindowEvent, error)
	GetSince(roomNumber string, since time.Time) ([]WindowEvent, error)
}

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) IEventRepository {
	return &EventRepository{db: db}
}

// Append 追加一条事件日志
func (r *EventRepository) Append(event *WindowEvent) error {
	return r.db.Create(event).Error
}

// GetRecentByRoom 获取房间最近的事件,按时间倒序
func (r *EventRepository) GetRecentByRoom(roomNumber string, limit int) ([]WindowEvent, error) {
	var events []WindowEvent
	err := r.db.Where("room_number = ?", roomNumber).
		Order("timestamp DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %v", err)
	}
	return events, nil
}

// GetSince 获取房间自某时刻起的事件,按时间升序,用于指标计算
func (r *EventRepository) GetSince(roomNumber string, since time.Time) ([]WindowEvent, error) {
	var events []WindowEvent
	err := r.db.Where("room_number = ? AND timestamp >= ?", roomNumber, since).
		Order("timestamp ASC").
		Find(&events).Error
	return events, err
}
