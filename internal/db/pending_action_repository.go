package db

import (
	"time"

	"gorm.io/gorm"
)

// IPendingActionRepository 延迟动作仓库接口
type IPendingActionRepository interface {
	Create(action *PendingAction) error
	GetUnexecutedByRoom(roomNumber string) ([]PendingAction, error)
	GetDue(now time.Time) ([]PendingAction, error)
	CountUnexecuted(roomNumber string) (int64, error)
}

type PendingActionRepository struct {
	db *gorm.DB
}

func NewPendingActionRepository(db *gorm.DB) IPendingActionRepository {
	return &PendingActionRepository{db: db}
}

// Create 创建延迟动作
func (r *PendingActionRepository) Create(action *PendingAction) error {
	return r.db.Create(action).Error
}

// GetUnexecutedByRoom 获取房间所有未执行的动作
func (r *PendingActionRepository) GetUnexecutedByRoom(roomNumber string) ([]PendingAction, error) {
	var actions []PendingAction
	err := r.db.Where("room_number = ? AND executed = ?", roomNumber, false).
		Order("scheduled_at ASC").
		Find(&actions).Error
	return actions, err
}

// GetDue 获取所有到期未执行的动作,按到期时间升序
func (r *PendingActionRepository) GetDue(now time.Time) ([]PendingAction, error) {
	var actions []PendingAction
	err := r.db.Where("executed = ? AND scheduled_at <= ?", false, now).
		Order("scheduled_at ASC").
		Find(&actions).Error
	return actions, err
}

// CountUnexecuted 统计房间未执行的动作数
func (r *PendingActionRepository) CountUnexecuted(roomNumber string) (int64, error) {
	var count int64
	err := r.db.Model(&PendingAction{}).
		Where("room_number = ? AND executed = ?", roomNumber, false).
		Count(&count).Error
	return count, err
}
