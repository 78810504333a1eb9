package db

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// IRoomStatusRepository 房间状态仓库接口
type IRoomStatusRepository interface {
	GetByNumber(roomNumber string) (*RoomStatus, error)
	GetAll() ([]RoomStatus, error)
	GetACOnRooms() ([]RoomStatus, error)
	Save(status *RoomStatus) error
}

type RoomStatusRepository struct {
	db *gorm.DB
}

func NewRoomStatusRepository(db *gorm.DB) IRoomStatusRepository {
	return &RoomStatusRepository{db: db}
}

// GetByNumber 通过房间号获取房间状态
func (r *RoomStatusRepository) GetByNumber(roomNumber string) (*RoomStatus, error) {
	var status RoomStatus
	err := r.db.Where("room_number = ?", roomNumber).First(&status).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &status, nil
}

// GetAll 获取所有房间状态
func (r *RoomStatusRepository) GetAll() ([]RoomStatus, error) {
	var rooms []RoomStatus
	if err := r.db.Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %v", err)
	}
	return rooms, nil
}

// GetACOnRooms 获取所有空调开启的房间
func (r *RoomStatusRepository) GetACOnRooms() ([]RoomStatus, error) {
	var rooms []RoomStatus
	err := r.db.Where("ac_state = ?", "on").Find(&rooms).Error
	return rooms, err
}

// Save 保存整行房间状态
func (r *RoomStatusRepository) Save(status *RoomStatus) error {
	return r.db.Save(status).Error
}
